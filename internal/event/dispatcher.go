package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"daraja-mcp/internal/logcontext"
	"daraja-mcp/internal/message"
	"github.com/VictoriaMetrics/metrics"
)

const (
	DefaultParallelism = 16
	DefaultSinkTimeout = 5 * time.Second
)

// Sink consumes stored payment events. Handle runs off the request path.
type Sink interface {
	Name() string
	Handle(ctx context.Context, e message.PaymentEvent) error
}

// Dispatcher fans events out to sinks in the background. At most parallelism
// deliveries run at once; when all slots are busy the delivery is dropped and
// counted instead of waiting.
type Dispatcher struct {
	sinks   []Sink
	sem     chan struct{}
	timeout time.Duration
	logger  *slog.Logger

	// mu orders wg.Add against Close so no delivery starts after Wait begins.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(parallelism int, logger *slog.Logger, sinks ...Sink) *Dispatcher {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Dispatcher{
		sinks:   sinks,
		sem:     make(chan struct{}, parallelism),
		timeout: DefaultSinkTimeout,
		logger:  logger,
	}
}

func (d *Dispatcher) Sinks() int {
	return len(d.sinks)
}

// Dispatch never blocks. Events arriving after Close are dropped.
func (d *Dispatcher) Dispatch(ctx context.Context, e message.PaymentEvent) {
	// detach from the request so sinks outlive the acknowledgment
	ctx = context.WithoutCancel(ctx)
	ctx = logcontext.AppendCtx(ctx, slog.String("eventId", e.ID.String()))

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		for _, sink := range d.sinks {
			d.logger.WarnContext(ctx, "Dispatcher closed, dropping event", "sink", sink.Name())
			sinkCounter(sink.Name(), "closed").Inc()
		}
		return
	}

	for _, sink := range d.sinks {
		select {
		case d.sem <- struct{}{}:
		default:
			d.logger.WarnContext(ctx, "Sink saturated, dropping event", "sink", sink.Name())
			sinkCounter(sink.Name(), "dropped").Inc()
			continue
		}

		d.wg.Add(1)
		go func(sink Sink) {
			defer d.wg.Done()
			defer func() { <-d.sem }()

			sinkCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			startTime := time.Now()
			if err := sink.Handle(sinkCtx, e); err != nil {
				d.logger.ErrorContext(sinkCtx, "Error handling event", "sink", sink.Name(), "error", err)
				sinkCounter(sink.Name(), "error").Inc()
				return
			}

			d.logger.DebugContext(sinkCtx, "Event handled", "sink", sink.Name())
			sinkCounter(sink.Name(), "success").Inc()
			sinkDurationHistogram(sink.Name()).Update(float64(time.Since(startTime).Milliseconds()))
		}(sink)
	}
}

// Close stops accepting events and blocks until every started delivery has finished.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
}

func sinkCounter(sink, result string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`sink_total{sink=%q,result=%q}`, sink, result))
}

func sinkDurationHistogram(sink string) *metrics.Histogram {
	return metrics.GetOrCreateHistogram(fmt.Sprintf(`sink_duration_milliseconds{sink=%q}`, sink))
}
