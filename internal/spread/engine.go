// Package spread searches a symbol's top-of-book across exchanges for the
// best cross-exchange buy-low/sell-high opportunity above threshold.
package spread

import (
	"math"
	"sync/atomic"

	"github.com/arbisniper/quantengine/internal/bookstore"
)

// Opportunity is a directed cross-exchange arbitrage candidate.
type Opportunity struct {
	Symbol       string
	BuyExchange  string
	SellExchange string
	BuyPrice     float64
	SellPrice    float64
	Profit       float64
	SpreadPct    float64
}

// Engine enumerates directed exchange pairs for a symbol and picks the
// best opportunity above thresholdPct. It holds a non-owning reference to
// the book store; it never mutates it.
type Engine struct {
	store            *bookstore.Store
	thresholdPct     float64
	signalsGenerated atomic.Uint64
}

// New creates a spread Engine reading from store, gating signals at
// thresholdPct (percent, e.g. 0.5 means 0.5%).
func New(store *bookstore.Store, thresholdPct float64) *Engine {
	return &Engine{store: store, thresholdPct: thresholdPct}
}

// Find returns the best opportunity for symbol as of nowMs, or false if
// fewer than two exchanges have a fresh quote or nothing clears
// threshold. The maximum is taken over raw, unrounded spread_pct; the
// returned Opportunity's fields are rounded for display (profit/prices to
// 2dp, spread_pct to 4dp). Ties between pairs with identical spread_pct
// are broken by map iteration order and are implementation-defined.
func (e *Engine) Find(symbol string, nowMs int64) (Opportunity, bool) {
	exchanges := e.store.Snapshot(symbol, nowMs)
	if len(exchanges) < 2 {
		return Opportunity{}, false
	}

	var (
		best      Opportunity
		bestFound bool
		maxSpread = math.Inf(-1)
	)

	for buyEx, buyLevel := range exchanges {
		for sellEx, sellLevel := range exchanges {
			if buyEx == sellEx {
				continue
			}

			buyPrice := buyLevel.Ask
			sellPrice := sellLevel.Bid
			profit := sellPrice - buyPrice
			spreadPct := (profit / buyPrice) * 100

			if spreadPct > maxSpread {
				maxSpread = spreadPct
				best = Opportunity{
					Symbol:       symbol,
					BuyExchange:  buyEx,
					SellExchange: sellEx,
					BuyPrice:     round2(buyPrice),
					SellPrice:    round2(sellPrice),
					Profit:       round2(profit),
					SpreadPct:    round4(spreadPct),
				}
				bestFound = true
			}
		}
	}

	if !bestFound || maxSpread <= e.thresholdPct {
		return Opportunity{}, false
	}

	e.signalsGenerated.Add(1)
	return best, true
}

// Stats is the externally observable summary of engine state.
type Stats struct {
	ThresholdPct     float64
	SignalsGenerated uint64
}

// Stats reports the configured threshold and cumulative signal count.
func (e *Engine) Stats() Stats {
	return Stats{
		ThresholdPct:     e.thresholdPct,
		SignalsGenerated: e.signalsGenerated.Load(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
