// Package storage provides the two persistence adapters: Postgres for
// structured candle rows and MongoDB for raw time-indexed retention.
package storage

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tinyco/harvest/internal/instruments"
	"github.com/tinyco/harvest/internal/models"
)

// CandleRow is one row of the candles table. The primary key mixes the
// symbol and timeframe ids into the candle open timestamp, so re-inserting
// the same candle is a conflict and gets skipped.
type CandleRow struct {
	ID          int64   `gorm:"column:id;primaryKey"`
	SymbolID    int     `gorm:"column:symbol_id"`
	TimeframeID int     `gorm:"column:timeframe_id"`
	Ctm         int64   `gorm:"column:ctm"`
	CtmString   string  `gorm:"column:ctm_string"`
	Open        float64 `gorm:"column:open"`
	Close       float64 `gorm:"column:close"`
	High        float64 `gorm:"column:high"`
	Low         float64 `gorm:"column:low"`
	Vol         float64 `gorm:"column:vol"`
}

// TableName maps CandleRow onto the candles table.
func (CandleRow) TableName() string {
	return "candles"
}

// RowsFromCandles converts broker candles to table rows for one series.
func RowsFromCandles(symbolID, timeframeID int, candles []models.Candle) []CandleRow {
	rows := make([]CandleRow, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, CandleRow{
			ID:          instruments.CandleID(symbolID, timeframeID, c.Ctm),
			SymbolID:    symbolID,
			TimeframeID: timeframeID,
			Ctm:         c.Ctm,
			CtmString:   c.CtmString,
			Open:        c.Open,
			Close:       c.Close,
			High:        c.High,
			Low:         c.Low,
			Vol:         c.Vol,
		})
	}
	return rows
}

// Postgres is the relational store adapter.
type Postgres struct {
	db     *gorm.DB
	logger *logrus.Entry
}

// NewPostgres opens a connection and verifies it with a ping.
func NewPostgres(dsn string, logger *logrus.Entry) (*Postgres, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Postgres{
		db:     db,
		logger: logger.WithField("service", "postgres"),
	}, nil
}

// UpsertCandles bulk-inserts candles for one series. Rows whose primary key
// already exists are skipped, never overwritten; the batch itself is never
// rejected for a duplicate. Returns the number of rows actually written.
func (p *Postgres) UpsertCandles(ctx context.Context, symbolID, timeframeID int, candles []models.Candle) (int64, error) {
	rows := RowsFromCandles(symbolID, timeframeID, candles)
	if len(rows) == 0 {
		return 0, nil
	}

	res := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	if res.Error != nil {
		return 0, fmt.Errorf("upsert candles: %w", res.Error)
	}

	p.logger.Debugf("candles nInserted: %d", res.RowsAffected)
	return res.RowsAffected, nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
