package broker

import (
	"context"
	"time"

	"github.com/tinyco/harvest/internal/models"
)

// chartRangeArguments is the getChartRangeRequest payload. A negative Ticks
// value requests that many candles of history before the anchor.
type chartRangeArguments struct {
	Info chartRangeInfo `json:"info"`
}

type chartRangeInfo struct {
	Symbol string `json:"symbol"`
	Period int    `json:"period"`
	Start  int64  `json:"start"`
	End    int64  `json:"end"`
	Ticks  int    `json:"ticks"`
}

// chartRangeResult is the returnData of getChartRangeRequest.
type chartRangeResult struct {
	Digits    int             `json:"digits"`
	RateInfos []models.Candle `json:"rateInfos"`
}

// GetChartRange fetches up to window candles for symbol at the given
// timeframe (minutes), anchored at ts. The broker interprets the negative
// tick count as "the window ending at the anchor".
//
// Candles that fail validation are dropped with a warning rather than
// poisoning the batch.
func (c *Client) GetChartRange(ctx context.Context, symbol string, timeframe int, ts time.Time, window int) ([]models.Candle, error) {
	req := command{
		Command: "getChartRangeRequest",
		Arguments: chartRangeArguments{
			Info: chartRangeInfo{
				Symbol: symbol,
				Period: timeframe,
				Start:  ts.UnixMilli(),
				End:    ts.UnixMilli(),
				Ticks:  -window,
			},
		},
	}

	var result chartRangeResult
	if err := c.execute(ctx, req, &result); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(result.RateInfos))
	for _, candle := range result.RateInfos {
		if err := candle.Validate(); err != nil {
			c.logger.Warnf("Dropping candle for %s_%d: %v", symbol, timeframe, err)
			continue
		}
		candles = append(candles, candle)
	}

	c.logger.Infof("Got %s_%d %d ticks from %d", symbol, timeframe, len(candles), ts.UnixMilli())
	return candles, nil
}
