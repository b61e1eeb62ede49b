// Package models defines the data records shared between the broker client
// and the storage layer.
package models

import (
	"fmt"
	"math"
	"time"
)

// Candle represents a single OHLC bar as the broker reports it.
// Ctm (candle open time, epoch milliseconds) is the natural key of a
// (symbol, timeframe) series and is never mutated after receipt.
type Candle struct {
	// Ctm is the candle open time in epoch milliseconds.
	Ctm int64 `json:"ctm" bson:"_id"`

	// CtmString is the broker's display form of the open time.
	CtmString string `json:"ctmString" bson:"ctmString"`

	// Open is the opening price of the candle.
	Open float64 `json:"open" bson:"open"`

	// Close is the closing price of the candle.
	Close float64 `json:"close" bson:"close"`

	// High is the highest price during the candle period.
	High float64 `json:"high" bson:"high"`

	// Low is the lowest price during the candle period.
	Low float64 `json:"low" bson:"low"`

	// Vol is the trading volume during the candle period.
	Vol float64 `json:"vol" bson:"vol"`
}

// OpenTime returns the candle open time as UTC.
func (c Candle) OpenTime() time.Time {
	return time.UnixMilli(c.Ctm).UTC()
}

// Validate rejects candles with a missing key or corrupted numeric data.
func (c Candle) Validate() error {
	if c.Ctm <= 0 {
		return fmt.Errorf("invalid ctm: %d", c.Ctm)
	}

	// NaN/Inf indicates corrupted upstream data
	for _, v := range []float64{c.Open, c.Close, c.High, c.Low, c.Vol} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("corrupted numeric data in candle %d", c.Ctm)
		}
	}
	return nil
}
