// Package signalsink publishes arbitrage signals to the downstream broker
// and maintains a bounded, time-sorted recent-signal history.
package signalsink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbisniper/quantengine/internal/monitoring"
	"github.com/arbisniper/quantengine/internal/spread"
)

// historyKey is the well-known sorted-set key backing the recent-signal
// history, scored by signal timestamp.
const historyKey = "signals:history"

// historyLimit is the maximum number of entries retained in the history,
// trimmed on every publish.
const historyLimit = 1000

// Signal is the externally visible record published on the broker topic
// and inserted into the history store.
type Signal struct {
	Type           string  `json:"type"`
	Action         string  `json:"action"`
	Symbol         string  `json:"symbol"`
	SpreadPct      float64 `json:"spread_pct"`
	BuyPrice       float64 `json:"buy_price"`
	SellPrice      float64 `json:"sell_price"`
	ProfitEstimate float64 `json:"profit_estimate"`
	TimestampMs    int64   `json:"timestamp"`
}

// buildSignal constructs the egress record for opp. action uppercases
// only the exchange tokens; timestampMs is the sink's own wall-clock
// reading at publish time, not the producer timestamp.
func buildSignal(opp spread.Opportunity, timestampMs int64) Signal {
	return Signal{
		Type:           "ARBITRAGE_OPPORTUNITY",
		Action:         fmt.Sprintf("BUY_%s_SELL_%s", strings.ToUpper(opp.BuyExchange), strings.ToUpper(opp.SellExchange)),
		Symbol:         opp.Symbol,
		SpreadPct:      opp.SpreadPct,
		BuyPrice:       opp.BuyPrice,
		SellPrice:      opp.SellPrice,
		ProfitEstimate: opp.Profit,
		TimestampMs:    timestampMs,
	}
}

// Sink publishes signals to Redis PUB/SUB and the bounded history.
type Sink struct {
	client  *redis.Client
	channel string
	logger  *monitoring.Logger

	signalCount atomic.Uint64

	// nowMs is overridable in tests.
	nowMs func() int64
}

// New creates a Sink bound to redisURL, publishing on channel.
func New(redisURL, channel string, logger *monitoring.Logger) (*Sink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("signalsink: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	return &Sink{
		client:  client,
		channel: channel,
		logger:  logger,
		nowMs:   func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Connect verifies the broker is reachable. A failure here is fatal at
// startup per the driver's state machine.
func (s *Sink) Connect(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("signalsink: connect: %w", err)
	}
	return nil
}

// Publish builds a Signal from opp, serializes it, broadcasts it on the
// configured channel, and inserts it into the bounded history. A
// serialize failure is logged and ends the publish, since there is no
// payload to send. Broadcast, history insert and history trim are each
// attempted independently: a failure in one is logged and does not
// prevent the others from running. Nothing is retried and Publish always
// returns nil; signalCount increments once per attempt regardless of
// partial broker failures.
func (s *Sink) Publish(ctx context.Context, opp spread.Opportunity) error {
	s.signalCount.Add(1)

	signal := buildSignal(opp, s.nowMs())

	payload, err := json.Marshal(signal)
	if err != nil {
		monitoring.PublishErrors.WithLabelValues("serialize").Inc()
		s.logger.Error("signalsink: serialize failed", err, nil)
		return nil
	}

	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		monitoring.PublishErrors.WithLabelValues("broadcast").Inc()
		s.logger.Error("signalsink: broadcast failed", err, nil)
	}

	if err := s.client.ZAdd(ctx, historyKey, redis.Z{
		Score:  float64(signal.TimestampMs),
		Member: payload,
	}).Err(); err != nil {
		monitoring.PublishErrors.WithLabelValues("history_insert").Inc()
		s.logger.Error("signalsink: history insert failed", err, nil)
	}

	if err := s.client.ZRemRangeByRank(ctx, historyKey, 0, -historyLimit-1).Err(); err != nil {
		monitoring.PublishErrors.WithLabelValues("history_trim").Inc()
		s.logger.Error("signalsink: history trim failed", err, nil)
	}

	monitoring.SignalsPublished.Inc()
	s.logger.SignalLog(signal.Action, signal.Symbol, signal.SpreadPct, signal.ProfitEstimate, nil)

	return nil
}

// Stats is the externally observable summary of sink state.
type Stats struct {
	SignalsPublished uint64
	Channel          string
}

// Stats reports the cumulative publish-attempt count and configured channel.
func (s *Sink) Stats() Stats {
	return Stats{
		SignalsPublished: s.signalCount.Load(),
		Channel:          s.channel,
	}
}

// Close releases the underlying broker connection.
func (s *Sink) Close() error {
	return s.client.Close()
}
