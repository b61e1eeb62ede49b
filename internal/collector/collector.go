package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/tinyco/harvest/configs"
	"github.com/tinyco/harvest/internal/instruments"
	"github.com/tinyco/harvest/internal/models"
)

// sanityCutoff guards against spurious or zero candle timestamps: a backfill
// batch whose earliest open time predates this never advances the watermark.
var sanityCutoff = time.Date(2020, 7, 1, 0, 0, 0, 0, time.UTC)

// ChartSource fetches a window of candles anchored at a timestamp.
type ChartSource interface {
	GetChartRange(ctx context.Context, symbol string, timeframe int, ts time.Time, window int) ([]models.Candle, error)
}

// RelationalStore persists structured candle rows.
type RelationalStore interface {
	UpsertCandles(ctx context.Context, symbolID, timeframeID int, candles []models.Candle) (int64, error)
}

// DocumentStore persists raw candle documents and the watermark records.
type DocumentStore interface {
	FindAll(ctx context.Context, collection string) ([]bson.M, error)
	UpsertOne(ctx context.Context, collection string, filter, doc bson.M) (int64, error)
	InsertMany(ctx context.Context, collection string, docs []any) (int64, error)
}

// Collector drives one fetch-and-store cycle per (symbol, timeframe) pair.
// Execution is strictly sequential: one pair is fully processed before the
// next begins.
type Collector struct {
	broker     ChartSource
	relational RelationalStore
	document   DocumentStore
	registry   *instruments.Registry
	cfg        configs.CollectorConfig
	logger     *logrus.Entry

	// now is the clock, injectable for tests.
	now func() time.Time
}

// New creates a collector over an authenticated broker session and connected
// stores, all owned by the caller for the run's lifetime.
func New(
	broker ChartSource,
	relational RelationalStore,
	document DocumentStore,
	registry *instruments.Registry,
	cfg configs.CollectorConfig,
	logger *logrus.Entry,
) *Collector {
	return &Collector{
		broker:     broker,
		relational: relational,
		document:   document,
		registry:   registry,
		cfg:        cfg,
		logger:     logger.WithField("service", "collector"),
		now:        time.Now,
	}
}

// Run processes each pair in order with the configured delay between them.
// Broker failures degrade to empty fetches inside Collect; store failures
// are fatal for the run.
func (c *Collector) Run(ctx context.Context, pairs []instruments.Pair) error {
	for i, pair := range pairs {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.SymbolDelay):
			}
		}
		if err := c.Collect(ctx, pair.Symbol, pair.Timeframe); err != nil {
			return fmt.Errorf("collect %s_%d: %w", pair.Symbol, pair.Timeframe, err)
		}
	}
	return nil
}

// Collect executes one cycle for a series: fetch the present window, take one
// backfill step if history remains, write both stores, and advance the
// watermark when the backfill landed.
func (c *Collector) Collect(ctx context.Context, symbol string, timeframe int) error {
	symbolID, ok := c.registry.SymbolID(symbol)
	if !ok {
		return fmt.Errorf("unknown symbol %q", symbol)
	}
	timeframeID, ok := c.registry.TimeframeID(timeframe)
	if !ok {
		return fmt.Errorf("unknown timeframe %d", timeframe)
	}

	c.logger.Debugf("Initialize watermark (%s, %d)", symbol, timeframe)
	wm := NewWatermark(symbol, timeframe, c.now())
	wm.Load(ctx, c.document, c.logger)

	candles := c.fetchPresent(ctx, wm)
	backfill := c.fetchBackfill(ctx, wm)
	candles = append(candles, backfill...)

	// No new data: no writes, watermark untouched.
	if len(candles) == 0 {
		return nil
	}

	pgRows, err := c.relational.UpsertCandles(ctx, symbolID, timeframeID, candles)
	if err != nil {
		return err
	}

	docs := make([]any, len(candles))
	for i, candle := range candles {
		docs[i] = candle
	}
	nInserted, err := c.document.InsertMany(ctx, wm.SeriesName, docs)
	if err != nil {
		c.logger.Errorf("Document insert for %s failed: %v", wm.SeriesName, err)
		nInserted = -1
	}

	oldenTs := earliestCtm(backfill)
	if nInserted >= 0 && oldenTs > 0 && time.UnixMilli(oldenTs).After(sanityCutoff) {
		wm.LastBackdate = dateOf(time.UnixMilli(oldenTs)).AddDate(0, 0, 1)
		if err := wm.Persist(ctx, c.document); err != nil {
			c.logger.Errorf("Watermark persist for %s failed: %v", wm.SeriesName, err)
		}
	}

	c.logger.Infof("Collect %s_%d: PG %d ticks, Mongo %d ticks, Backdate: %s",
		symbol, timeframe, pgRows, nInserted, wm.LastBackdate.Format(dateLayout))
	return nil
}

// fetchPresent requests the most recent window anchored at now. A broker
// failure degrades to an empty batch; the cycle continues with whatever it has.
func (c *Collector) fetchPresent(ctx context.Context, wm *Watermark) []models.Candle {
	candles, err := c.broker.GetChartRange(ctx, wm.Symbol, wm.Timeframe, c.now(), c.cfg.PresentWindow)
	if err != nil {
		c.logger.Warnf("Present fetch for %s failed: %v", wm.SeriesName, err)
		return nil
	}
	return candles
}

// fetchBackfill requests one step of history anchored at the watermark's
// midnight, after a cooldown that throttles the broker. Skipped entirely once
// the series is exhausted.
func (c *Collector) fetchBackfill(ctx context.Context, wm *Watermark) []models.Candle {
	if !wm.HasBackfillRemaining() {
		return nil
	}

	select {
	case <-ctx.Done():
		return nil
	case <-time.After(c.cfg.BackfillCooldown):
	}

	candles, err := c.broker.GetChartRange(ctx, wm.Symbol, wm.Timeframe, wm.LastBackdate, c.cfg.BackfillWindow)
	if err != nil {
		c.logger.Warnf("Backfill fetch for %s failed: %v", wm.SeriesName, err)
		return nil
	}
	return candles
}

// earliestCtm returns the smallest open time in the batch, or 0 when empty.
func earliestCtm(candles []models.Candle) int64 {
	var earliest int64
	for _, c := range candles {
		if earliest == 0 || c.Ctm < earliest {
			earliest = c.Ctm
		}
	}
	return earliest
}
