// Package identity turns identity provider accounts into user profiles.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medifind/pkg/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

var ErrUnknownUser = errors.New("unknown user")

// Provider returns the profile of an authenticated account.
type Provider interface {
	Profile(ctx context.Context, uid string) (models.User, error)
	PasswordResetLink(ctx context.Context, email string) (string, error)
}

type authClient interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	PasswordResetLink(ctx context.Context, email string) (string, error)
}

// Firebase reads accounts through the Firebase Auth admin API.
type Firebase struct {
	client authClient
}

func NewFirebase(ctx context.Context, app *firebase.App) (*Firebase, *auth.Client, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error getting Auth client: %w", err)
	}
	return &Firebase{client: client}, client, nil
}

func (f *Firebase) Profile(ctx context.Context, uid string) (models.User, error) {
	record, err := f.client.GetUser(ctx, uid)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return models.User{}, ErrUnknownUser
		}
		return models.User{}, fmt.Errorf("failed to get account %s: %w", uid, err)
	}

	u := models.User{
		ID:    record.UID,
		Name:  record.DisplayName,
		Email: record.Email,
		Phone: record.PhoneNumber,
	}
	if record.UserMetadata != nil && record.UserMetadata.CreationTimestamp > 0 {
		u.CreatedAt = time.UnixMilli(record.UserMetadata.CreationTimestamp)
	}
	if u.Name == "" {
		u.Name = u.Email
	}
	return u, nil
}

func (f *Firebase) PasswordResetLink(ctx context.Context, email string) (string, error) {
	link, err := f.client.PasswordResetLink(ctx, email)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return "", ErrUnknownUser
		}
		return "", fmt.Errorf("failed to create password reset link: %w", err)
	}
	return link, nil
}

// Anonymous builds minimal profiles from the user id alone. Development only.
type Anonymous struct {
	Now func() time.Time
}

func (a Anonymous) Profile(_ context.Context, uid string) (models.User, error) {
	if uid == "" {
		return models.User{}, ErrUnknownUser
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return models.User{ID: uid, Name: uid, CreatedAt: now()}, nil
}

func (Anonymous) PasswordResetLink(context.Context, string) (string, error) {
	return "", errors.New("password reset is not available without an identity provider")
}
