package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/tinyco/harvest/configs"
)

// Stores holds the two long-lived store handles for one run. Both are opened
// at startup, shared across every (symbol, timeframe) iteration, and closed
// once at the end.
type Stores struct {
	// Relational holds the structured candles table.
	Relational *Postgres

	// Document holds the raw per-series collections and the watermark.
	Document *Mongo
}

// NewStores connects both stores. A failure of either leaves nothing open.
func NewStores(ctx context.Context, cfg *configs.AppConfig, logger *logrus.Entry) (*Stores, error) {
	pg, err := NewPostgres(cfg.PostgresDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	mg, err := NewMongo(ctx, cfg.MongoURI, cfg.MongoDB, logger)
	if err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	return &Stores{
		Relational: pg,
		Document:   mg,
	}, nil
}

// Close releases both connections.
func (s *Stores) Close(ctx context.Context) {
	if s.Relational != nil {
		_ = s.Relational.Close()
	}
	if s.Document != nil {
		_ = s.Document.Close(ctx)
	}
}
