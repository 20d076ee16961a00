package app

import (
	"context"
	"fmt"
	"strings"

	"medifind/pkg/models"
)

// SearchMedicine looks a medicine up and records it at the front of the search history.
func (a *App) SearchMedicine(ctx context.Context, name string) (*models.Medicine, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: medicine name is required", ErrInvalidInput)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.LookupTimeout)
	defer cancel()

	m, err := a.Drugs.Search(lookupCtx, name)
	if err != nil {
		return nil, err
	}

	m.IsFavorite = a.Cache.IsFavorite(m.ID)
	if m.Timestamp.IsZero() {
		m.Timestamp = a.now()
	}
	if err := a.Cache.AddToHistory(ctx, *m); err != nil {
		return nil, fmt.Errorf("failed to record search: %w", err)
	}
	return m, nil
}

// AskAI answers a free-text question about a medicine.
func (a *App) AskAI(ctx context.Context, medicine, question string) (string, error) {
	if strings.TrimSpace(medicine) == "" {
		return "", fmt.Errorf("%w: medicine name is required", ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, a.AITimeout)
	defer cancel()
	return a.Assistant.AskAboutMedicine(ctx, medicine, question)
}

func (a *App) ToggleFavorite(ctx context.Context, m models.Medicine) (bool, error) {
	if m.ID == "" {
		return false, fmt.Errorf("%w: medicine id is required", ErrInvalidInput)
	}
	return a.Cache.ToggleFavorite(ctx, m)
}

func (a *App) RemoveFromHistory(ctx context.Context, medicineID string) error {
	return a.Cache.RemoveFromHistory(ctx, medicineID)
}

func (a *App) ClearHistory(ctx context.Context) error {
	return a.Cache.ClearHistory(ctx)
}
