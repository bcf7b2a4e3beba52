// Package pipeline implements the hot loop that sequences ingest, book
// update, spread scan, and signal publish, with per-message error
// containment and a cooperative shutdown state machine.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbisniper/quantengine/internal/bookstore"
	"github.com/arbisniper/quantengine/internal/ingress"
	"github.com/arbisniper/quantengine/internal/monitoring"
	"github.com/arbisniper/quantengine/internal/signalsink"
	"github.com/arbisniper/quantengine/internal/spread"
)

// State is a step in the driver's lifecycle state machine.
type State int

const (
	Init State = iota
	Connecting
	Running
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Connecting:
		return "connecting"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Driver owns the book store and drives the ingest → update → scan →
// publish sequence. It is the only writer of the book store; the spread
// engine holds a non-owning read reference to the same store.
type Driver struct {
	store   *bookstore.Store
	engine  *spread.Engine
	ingress *ingress.Client
	sink    *signalsink.Sink
	logger  *monitoring.Logger
	runID   string

	mu    sync.RWMutex
	state State

	debugEvery uint64
}

// New constructs a Driver wiring the given components. debugEvery, if
// nonzero, makes the driver log a book snapshot for the current message's
// symbol whenever the store's cumulative successful update count reaches a
// multiple of debugEvery; stale or undecodable messages do not count.
func New(store *bookstore.Store, engine *spread.Engine, ing *ingress.Client, sink *signalsink.Sink, logger *monitoring.Logger, debugEvery uint64) *Driver {
	return &Driver{
		store:      store,
		engine:     engine,
		ingress:    ing,
		sink:       sink,
		logger:     logger,
		runID:      uuid.New().String(),
		state:      Init,
		debugEvery: debugEvery,
	}
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// State returns the driver's current lifecycle state.
func (d *Driver) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Run transitions the driver through its full lifecycle: connects the
// broker and ingress, then drives the hot loop until ctx is cancelled or
// a fatal transport error occurs, then drains. It returns Cancelled after
// a clean cancellation, a wrapped broker or ingress connect error if
// startup fails, and the ingress.TransportFatal that ended the read loop
// otherwise. ProcessError is never returned (it's handled internally per
// message).
func (d *Driver) Run(ctx context.Context) error {
	d.setState(Connecting)
	d.logger.Info("pipeline: starting", map[string]interface{}{"run_id": d.runID})

	if err := d.sink.Connect(ctx); err != nil {
		d.setState(Closed)
		d.logger.Error("pipeline: broker connect failed, exiting", err, map[string]interface{}{"run_id": d.runID})
		return fmt.Errorf("pipeline: broker connect: %w", err)
	}

	if err := d.ingress.Connect(ctx); err != nil {
		d.setState(Closed)
		_ = d.sink.Close()
		d.logger.Error("pipeline: ingress connect failed, exiting", err, map[string]interface{}{"run_id": d.runID})
		return fmt.Errorf("pipeline: ingress connect: %w", err)
	}

	d.setState(Running)
	d.logger.Info("pipeline: running", map[string]interface{}{"run_id": d.runID})

	runErr := d.ingress.Run(ctx, d.handleMessage, d.handleDecodeError)

	d.setState(Draining)
	d.drain()
	d.setState(Closed)

	if runErr == context.Canceled || runErr == context.DeadlineExceeded {
		d.logger.Info("pipeline: shutdown complete", map[string]interface{}{"run_id": d.runID})
		return Cancelled
	}
	return runErr
}

func (d *Driver) drain() {
	if err := d.ingress.Close(); err != nil {
		d.logger.Warn("pipeline: ingress close error", map[string]interface{}{"error": err.Error()})
	}
	if err := d.sink.Close(); err != nil {
		d.logger.Warn("pipeline: sink close error", map[string]interface{}{"error": err.Error()})
	}
}

// handleMessage runs the per-message algorithm: update → scan → publish.
// Any unexpected panic from the three stages is recovered, logged, and
// counted as a skip, so one bad message never kills the hot loop.
func (d *Driver) handleMessage(msg ingress.Message) {
	defer func() {
		if r := recover(); r != nil {
			monitoring.MessagesSkipped.WithLabelValues("panic").Inc()
			d.logger.Error("pipeline: recovered from panic processing message", fmt.Errorf("%v", r), map[string]interface{}{
				"exchange": msg.Exchange, "symbol": msg.Symbol,
			})
		}
	}()

	monitoring.MessagesReceived.Inc()
	receiveTime := time.Now()

	updateStart := time.Now()
	updated := d.store.Update(msg.Exchange, msg.Symbol, msg.Price, msg.TsMs)
	monitoring.StageLatency.WithLabelValues("update").Observe(msMetric(time.Since(updateStart)))

	if !updated {
		monitoring.MessagesSkipped.WithLabelValues("stale").Inc()
		return
	}

	monitoring.BookSize.Set(float64(len(d.store.Stats().Exchanges)))

	if d.debugEvery > 0 && d.store.Stats().Updates%d.debugEvery == 0 {
		d.logBookSnapshot(msg.Symbol)
	}

	scanStart := time.Now()
	opp, found := d.engine.Find(msg.Symbol, time.Now().UnixMilli())
	monitoring.StageLatency.WithLabelValues("scan").Observe(msMetric(time.Since(scanStart)))

	if !found {
		return
	}

	publishStart := time.Now()
	if err := d.sink.Publish(context.Background(), opp); err != nil {
		pErr := &ProcessError{Stage: "publish", Err: err}
		monitoring.MessagesSkipped.WithLabelValues("publish_error").Inc()
		d.logger.Error("pipeline: publish failed", pErr, map[string]interface{}{"symbol": msg.Symbol})
		return
	}
	monitoring.StageLatency.WithLabelValues("publish").Observe(msMetric(time.Since(publishStart)))
	monitoring.StageLatency.WithLabelValues("end_to_end").Observe(msMetric(time.Since(receiveTime)))
}

func (d *Driver) handleDecodeError(err error) {
	monitoring.MessagesSkipped.WithLabelValues("decode").Inc()
	d.logger.SkipLog("decode error", "ingress", err, nil)
}

func (d *Driver) logBookSnapshot(symbol string) {
	snap := d.store.Snapshot(symbol, time.Now().UnixMilli())
	prices := make(map[string]string, len(snap))
	for ex, level := range snap {
		prices[ex] = fmt.Sprintf("%.2f-%.2f", level.Bid, level.Ask)
	}
	d.logger.Debug("pipeline: book snapshot", map[string]interface{}{"symbol": symbol, "prices": prices})
}

func msMetric(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
