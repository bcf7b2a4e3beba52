package signalsink

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/arbisniper/quantengine/internal/monitoring"
	"github.com/arbisniper/quantengine/internal/spread"
)

func TestBuildSignalFormat(t *testing.T) {
	opp := spread.Opportunity{
		Symbol:       "BTC/USDT",
		BuyExchange:  "a",
		SellExchange: "b",
		BuyPrice:     100.01,
		SellPrice:    100.99,
		Profit:       0.98,
		SpreadPct:    0.9789,
	}

	signal := buildSignal(opp, 1234)

	if signal.Type != "ARBITRAGE_OPPORTUNITY" {
		t.Errorf("Type = %q", signal.Type)
	}
	if signal.Action != "BUY_A_SELL_B" {
		t.Errorf("Action = %q, want BUY_A_SELL_B", signal.Action)
	}
	if signal.Symbol != "BTC/USDT" {
		t.Errorf("Symbol = %q", signal.Symbol)
	}
	if signal.TimestampMs != 1234 {
		t.Errorf("TimestampMs = %d, want 1234 (sink's own clock, not the producer's)", signal.TimestampMs)
	}
}

func TestBuildSignalSerializesToWireFormat(t *testing.T) {
	opp := spread.Opportunity{Symbol: "X", BuyExchange: "a", SellExchange: "b", BuyPrice: 1, SellPrice: 2, Profit: 1, SpreadPct: 100}
	signal := buildSignal(opp, 999)

	data, err := json.Marshal(signal)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"type", "action", "symbol", "spread_pct", "buy_price", "sell_price", "profit_estimate", "timestamp"} {
		if _, ok := generic[field]; !ok {
			t.Errorf("missing field %q in serialized signal: %s", field, data)
		}
	}
}

// TestPublishAgainstLiveRedis exercises the full publish path (broadcast +
// bounded history insert) against a real Redis instance. It is skipped
// when no broker is reachable, since this module does not ship a fake.
func TestPublishAgainstLiveRedis(t *testing.T) {
	sink, err := New("redis://127.0.0.1:6379", "arbitrage:signals:test", monitoring.NewLogger("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer sink.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := sink.Connect(ctx); err != nil {
		t.Skipf("no redis reachable at 127.0.0.1:6379: %v", err)
	}

	opp := spread.Opportunity{Symbol: "BTC/USDT", BuyExchange: "a", SellExchange: "b", BuyPrice: 100, SellPrice: 101, Profit: 1, SpreadPct: 1}
	if err := sink.Publish(context.Background(), opp); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got := sink.Stats().SignalsPublished; got != 1 {
		t.Errorf("SignalsPublished = %d, want 1", got)
	}
}
