package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"regdesk/internal/catalog/models"
)

// Putter accepts catalog entries.
type Putter interface {
	Put(ctx context.Context, e *models.Event) error
}

// LoadSeed reads a JSON array of events from path and stores each one.
// It returns the number of events loaded.
func LoadSeed(ctx context.Context, path string, dst Putter) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read catalog seed: %w", err)
	}
	var events []*models.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return 0, fmt.Errorf("decode catalog seed: %w", err)
	}
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return 0, fmt.Errorf("catalog seed entry %d: %w", i, err)
		}
	}
	for _, e := range events {
		if err := dst.Put(ctx, e); err != nil {
			return 0, fmt.Errorf("store catalog entry %s: %w", e.ID, err)
		}
	}
	return len(events), nil
}
