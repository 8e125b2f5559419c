package storage

import (
	"context"

	"listings-pipeline/models"
)

// GoldWriter is the interface any Gold sink must satisfy.
type GoldWriter interface {
	Write(ctx context.Context, listings []*models.FeatureListing) error
	Close() error
}
