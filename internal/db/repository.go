package db

import (
	"errors"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a lookup matches no row. Callers on
// the ingestion and scheduler paths treat it as a skip signal, not a
// failure to propagate.
var ErrNotFound = errors.New("not found")

// Repository handles all database operations for the gateway.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

// NewRepository creates a new repository.
func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}
