// Package collector implements the fetch-and-store cycle: the backfill
// watermark per (symbol, timeframe) series and the orchestrator that drives
// one cycle against the broker and both stores.
package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const (
	// WatermarkCollection is the shared document collection holding one
	// watermark record per series.
	WatermarkCollection = "candles_time"

	dateLayout = "2006-01-02"
)

// timeframe30Floor is the known upstream data-availability boundary for the
// 30-minute timeframe: the broker has nothing older than this.
var timeframe30Floor = time.Date(2023, 7, 21, 0, 0, 0, 0, time.UTC)

// Watermark tracks backfill progress for one (symbol, timeframe) series.
// LastBackdate starts at today and walks backward toward MaxBackdate as
// backfill steps succeed; once it reaches MaxBackdate the series is
// exhausted and backfill fetches are skipped.
type Watermark struct {
	Symbol    string
	Timeframe int

	// SeriesName doubles as the document collection name for raw candles
	// and the watermark record key.
	SeriesName string

	// MaxBackdate is the earliest date this series may backfill to.
	MaxBackdate time.Time

	// LastBackdate is the anchor date of the next backfill fetch.
	LastBackdate time.Time
}

// NewWatermark initializes a watermark for the given instant. The backfill
// horizon scales with the timeframe: 12 days of history per timeframe minute.
func NewWatermark(symbol string, timeframe int, now time.Time) *Watermark {
	today := dateOf(now)
	maxBackdate := today.AddDate(0, 0, -12*timeframe)
	if timeframe == 30 && maxBackdate.Before(timeframe30Floor) {
		maxBackdate = timeframe30Floor
	}

	return &Watermark{
		Symbol:       symbol,
		Timeframe:    timeframe,
		SeriesName:   seriesName(symbol, timeframe),
		MaxBackdate:  maxBackdate,
		LastBackdate: today,
	}
}

// Load overwrites LastBackdate from the stored watermark record, if one
// exists. Read failures and malformed stored dates are absorbed: the
// initialized default (today) stands and the series simply re-backfills,
// which is safe because all writes are idempotent.
func (w *Watermark) Load(ctx context.Context, store DocumentStore, logger *logrus.Entry) {
	docs, err := store.FindAll(ctx, WatermarkCollection)
	if err != nil {
		logger.Warnf("Watermark load for %s failed: %v", w.SeriesName, err)
		return
	}

	for _, doc := range docs {
		if doc["candles"] != w.SeriesName {
			continue
		}
		raw, _ := doc["last_backdate"].(string)
		parsed, err := time.ParseInLocation(dateLayout, raw, time.UTC)
		if err != nil {
			logger.Warnf("Watermark for %s has malformed last_backdate %q, keeping %s",
				w.SeriesName, raw, w.LastBackdate.Format(dateLayout))
			return
		}
		w.LastBackdate = parsed
		return
	}
}

// Persist upserts the watermark record keyed by series name.
func (w *Watermark) Persist(ctx context.Context, store DocumentStore) error {
	doc := bson.M{
		"_id":           w.SeriesName,
		"candles":       w.SeriesName,
		"last_backdate": w.LastBackdate.Format(dateLayout),
	}
	_, err := store.UpsertOne(ctx, WatermarkCollection, bson.M{"candles": w.SeriesName}, doc)
	return err
}

// HasBackfillRemaining reports whether the series still has history to fetch.
func (w *Watermark) HasBackfillRemaining() bool {
	return w.MaxBackdate.Before(w.LastBackdate)
}

// seriesName derives the logical series identifier, also used as the raw
// candle collection name.
func seriesName(symbol string, timeframe int) string {
	return fmt.Sprintf("real_%s_%d", symbol, timeframe)
}

// dateOf truncates an instant to its UTC calendar date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
