package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medifind/internal/clinic"
	"medifind/pkg/models"

	"github.com/sirupsen/logrus"
)

// SignIn loads the remote profile of uid, creating it from the identity provider on first
// sign in, caches it and pulls the user's consultations and prescriptions.
func (a *App) SignIn(ctx context.Context, uid, email string) (*models.User, error) {
	if uid == "" {
		return nil, ErrNotSignedIn
	}

	user, err := a.Clinic.GetUser(ctx, uid)
	if errors.Is(err, clinic.ErrUserNotFound) {
		user, err = a.createProfile(ctx, uid, email)
	}
	if err != nil {
		return nil, err
	}

	if current := a.Cache.User(); current != nil && current.ID != user.ID {
		if err := a.clearSession(ctx); err != nil {
			return nil, err
		}
	}
	if err := a.Cache.SetUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to cache user: %w", err)
	}
	a.Log.WithFields(logrus.Fields{"user_id": user.ID}).Info("✅ Signed in")

	if err := a.SyncConsultations(ctx); err != nil {
		a.Log.WithError(err).Warn("⚠️ Failed to sync consultations after sign in")
	}
	if err := a.SyncPrescriptions(ctx); err != nil {
		a.Log.WithError(err).Warn("⚠️ Failed to sync prescriptions after sign in")
	}
	return user, nil
}

func (a *App) createProfile(ctx context.Context, uid, email string) (*models.User, error) {
	profile, err := a.Identity.Profile(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile.Email == "" {
		profile.Email = email
	}
	if profile.Name == "" {
		profile.Name = profile.Email
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = a.now()
	}
	if err := a.Clinic.SaveUser(ctx, profile); err != nil {
		return nil, err
	}
	a.Log.WithField("user_id", uid).Info("🆕 User profile created")
	return &profile, nil
}

// SignOut clears the session. Local history, favorites and reminders are kept.
func (a *App) SignOut(ctx context.Context) error {
	if a.Cache.User() == nil {
		return nil
	}
	return a.clearSession(ctx)
}

func (a *App) clearSession(ctx context.Context) error {
	for _, c := range a.Cache.Consultations() {
		a.Notifier.CancelConsultationReminder(c.ID)
	}
	if err := a.Cache.Logout(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	a.Log.Info("👋 Signed out")
	return nil
}

// CurrentUser returns the signed-in user.
func (a *App) CurrentUser() (*models.User, error) {
	return a.currentUser()
}

// RegisterPushToken stores the device token of the signed-in user remotely and in the cache.
func (a *App) RegisterPushToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: push token is required", ErrInvalidInput)
	}
	return a.setPushToken(ctx, token)
}

// ClearPushToken forgets token when it is still the registered one. It is called when the
// push service reports the token as no longer valid.
func (a *App) ClearPushToken(ctx context.Context, token string) error {
	user, err := a.currentUser()
	if err != nil {
		return err
	}
	if user.FCMToken != token {
		return nil
	}
	return a.setPushToken(ctx, "")
}

func (a *App) setPushToken(ctx context.Context, token string) error {
	user, err := a.currentUser()
	if err != nil {
		return err
	}
	if err := a.Clinic.UpdatePushToken(ctx, user.ID, token); err != nil {
		return err
	}
	user.FCMToken = token
	return a.Cache.SetUser(ctx, user)
}

// PushToken returns the device token of the signed-in user, or "" when there is none.
func (a *App) PushToken() string {
	if u := a.Cache.User(); u != nil {
		return u.FCMToken
	}
	return ""
}

func (a *App) PasswordResetLink(ctx context.Context, email string) (string, error) {
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return a.Identity.PasswordResetLink(ctx, email)
}

func (a *App) SetDarkMode(ctx context.Context, on bool) error {
	return a.Cache.SetDarkMode(ctx, on)
}
