// Package instruments holds the static instrument registry: which symbols and
// timeframes are collected, and the numeric ids used to key relational rows.
package instruments

// Pair is one (symbol, timeframe) series to collect. Timeframe is in minutes.
type Pair struct {
	Symbol    string
	Timeframe int
}

// Registry is an immutable instrument configuration. Build it once with
// NewRegistry and pass it to the collector; it is never mutated afterwards.
type Registry struct {
	symbolIDs    map[string]int
	timeframeIDs map[int]int

	// Default is the wide collection list used by a normal run.
	Default []Pair

	// Subscribe is the narrow list used by the subscribe mode.
	Subscribe []Pair
}

// NewRegistry returns the production instrument registry.
func NewRegistry() *Registry {
	return &Registry{
		symbolIDs: map[string]int{
			"GOLD":     1,
			"GOLD.FUT": 2,
			"BITCOIN":  3,
			"EURUSD":   4,
			"OIL.WTI":  5,
			"USDJPY":   6,
		},
		timeframeIDs: map[int]int{
			1: 0, 5: 1, 15: 2, 30: 3, 60: 4, 240: 5, 1440: 6, 10080: 7, 43200: 8,
		},
		Default: []Pair{
			{"GOLD", 5}, {"GOLD", 15}, {"GOLD", 30}, {"GOLD", 60},
			{"GOLD.FUT", 15}, {"GOLD.FUT", 30}, {"GOLD.FUT", 60},
			{"OIL.WTI", 15}, {"OIL.WTI", 30}, {"OIL.WTI", 60},
			{"USDJPY", 15}, {"USDJPY", 30}, {"USDJPY", 60},
			{"EURUSD", 15}, {"EURUSD", 30}, {"EURUSD", 60},
		},
		Subscribe: []Pair{
			{"GOLD", 240},
		},
	}
}

// SymbolID returns the numeric id for a symbol.
func (r *Registry) SymbolID(symbol string) (int, bool) {
	id, ok := r.symbolIDs[symbol]
	return id, ok
}

// TimeframeID returns the numeric id for a timeframe in minutes.
func (r *Registry) TimeframeID(timeframe int) (int, bool) {
	id, ok := r.timeframeIDs[timeframe]
	return id, ok
}

// CandleID derives the relational primary key for one candle. The
// symbol/timeframe offset stays under 70 while ctm values are spaced at
// least a minute apart, so ids never collide across series.
func CandleID(symbolID, timeframeID int, ctm int64) int64 {
	return int64(symbolID)*10 + int64(timeframeID) + ctm
}
