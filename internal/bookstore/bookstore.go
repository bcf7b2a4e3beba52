// Package bookstore holds the latest synthesized top-of-book price per
// (exchange, symbol), with staleness filtering applied at read time.
package bookstore

import (
	"sync/atomic"
	"time"
)

// syntheticSpreadEpsilon is the half-width of the symmetric bid/ask band
// synthesized around each reported trade price. This is a core design
// constant, not a tuning knob: changing it changes the engine's semantics.
const syntheticSpreadEpsilon = 1e-4

// PriceLevel is an immutable-after-construction top-of-book snapshot for
// one (exchange, symbol) pair.
type PriceLevel struct {
	Bid  float64
	Ask  float64
	TsMs int64
}

type key struct {
	exchange string
	symbol   string
}

// Store is the in-memory top-of-book view. It is owned by exactly one
// writer (the pipeline driver); readers run on the same logical task, so
// no internal synchronization is required. updateCount is an atomic, but
// Stats also reads the unsynchronized exchanges map, so it is not safe to
// call concurrently with Update.
type Store struct {
	maxAge      time.Duration
	entries     map[key]PriceLevel
	exchanges   map[string]struct{}
	updateCount atomic.Uint64
}

// New creates a Store with the given staleness threshold.
func New(maxAge time.Duration) *Store {
	return &Store{
		maxAge:    maxAge,
		entries:   make(map[key]PriceLevel),
		exchanges: make(map[string]struct{}),
	}
}

// Update records a trade price observation for (exchange, symbol).
//
// If no entry exists yet, it is created. Otherwise the update is rejected
// (returns false, store unchanged) when tsMs is strictly older than the
// currently stored timestamp; equal timestamps are accepted and overwrite,
// preserving monotonicity without requiring strict inequality.
func (s *Store) Update(exchange, symbol string, price float64, tsMs int64) bool {
	k := key{exchange, symbol}

	if current, ok := s.entries[k]; ok && tsMs < current.TsMs {
		return false
	}

	buffer := price * syntheticSpreadEpsilon
	s.entries[k] = PriceLevel{
		Bid:  price - buffer,
		Ask:  price + buffer,
		TsMs: tsMs,
	}
	s.exchanges[exchange] = struct{}{}
	s.updateCount.Add(1)
	return true
}

// Get returns the exact stored entry for (exchange, symbol), with no
// staleness filtering applied.
func (s *Store) Get(exchange, symbol string) (PriceLevel, bool) {
	level, ok := s.entries[key{exchange, symbol}]
	return level, ok
}

// Snapshot returns every exchange with a non-stale entry for symbol, as a
// freshly built map. nowMs is the caller's local wall-clock reading so
// tests can control it deterministically.
func (s *Store) Snapshot(symbol string, nowMs int64) map[string]PriceLevel {
	out := make(map[string]PriceLevel)
	for k, level := range s.entries {
		if k.symbol != symbol {
			continue
		}
		if nowMs-level.TsMs > s.maxAge.Milliseconds() {
			continue
		}
		out[k.exchange] = level
	}
	return out
}

// Stats is the externally observable summary of store state.
type Stats struct {
	Exchanges    []string
	SymbolsCount int
	Updates      uint64
}

// Stats reports the distinct exchanges seen and the cumulative update
// count. SymbolsCount mirrors the source engine's get_stats(), which
// counts the outer exchange dict rather than distinct symbols; preserved
// here for parity rather than "fixed" into a differently-named field.
func (s *Store) Stats() Stats {
	exchanges := make([]string, 0, len(s.exchanges))
	for e := range s.exchanges {
		exchanges = append(exchanges, e)
	}
	return Stats{
		Exchanges:    exchanges,
		SymbolsCount: len(s.exchanges),
		Updates:      s.updateCount.Load(),
	}
}
