package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tunevault/service_layer/internal/metrics"
	"github.com/tunevault/service_layer/pkg/logger"
)

// Dispatcher funnels every mutating submission from the process signer
// through one worker goroutine, so transactions reach the node strictly
// ordered and sequence conflicts between concurrent callers cannot occur.
// Read-only calls bypass the queue.
type Dispatcher struct {
	client  *Client
	signer  *Signer
	limiter *rate.Limiter
	queue   chan submission
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	log     *logger.Logger
}

type submission struct {
	ctx    context.Context
	call   *MoveCall
	result chan outcome
}

type outcome struct {
	res *TxResult
	err error
}

// DispatcherConfig holds dispatcher settings.
type DispatcherConfig struct {
	SubmitRatePerSec float64
	QueueDepth       int
}

// NewDispatcher creates and starts the dispatcher worker.
func NewDispatcher(client *Client, signer *Signer, cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("ledger-dispatch")
	}
	ratePerSec := cfg.SubmitRatePerSec
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 64
	}

	d := &Dispatcher{
		client:  client,
		signer:  signer,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		queue:   make(chan submission, depth),
		done:    make(chan struct{}),
		log:     log,
	}
	go d.run()
	return d
}

// Execute signs and submits a call, blocking until the ordered queue has
// processed it. Mutating submissions are never retried: an ambiguous failure
// must be resolved by the caller, not by blind re-submission.
func (d *Dispatcher) Execute(ctx context.Context, call *MoveCall) (*TxResult, error) {
	sub := submission{ctx: ctx, call: call, result: make(chan outcome, 1)}

	// Enqueue under the read lock: Close flips closed before the worker
	// drains, so a submission that makes it into the queue is always
	// answered, by the worker or by the shutdown drain.
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil, fmt.Errorf("ledger dispatcher closed")
	}
	select {
	case d.queue <- sub:
		d.mu.RUnlock()
	case <-ctx.Done():
		d.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case out := <-sub.result:
		// An in-flight submission racing Close still reports its real
		// outcome here; shutdown never mislabels a committed transaction.
		return out.res, out.err
	case <-ctx.Done():
		// The submission may still execute; the caller's saga cursor or
		// reservation must account for that.
		return nil, ctx.Err()
	}
}

// Inspect runs a read-only simulation. It does not pass through the queue.
func (d *Dispatcher) Inspect(ctx context.Context, call *MoveCall) ([]byte, error) {
	return d.client.DevInspect(ctx, call, d.signer.Address())
}

// Close stops the worker. Pending submissions receive an outcome before the
// worker exits; later Execute calls fail immediately.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.done)
}

func (d *Dispatcher) run() {
	for {
		select {
		case <-d.done:
			d.drain()
			return
		case sub := <-d.queue:
			sub.result <- d.submit(sub)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case sub := <-d.queue:
			sub.result <- outcome{err: fmt.Errorf("ledger dispatcher closed")}
		default:
			return
		}
	}
}

func (d *Dispatcher) submit(sub submission) outcome {
	if err := sub.ctx.Err(); err != nil {
		return outcome{err: err}
	}
	if err := d.limiter.Wait(sub.ctx); err != nil {
		return outcome{err: err}
	}

	txBytes, err := encodeCall(sub.call)
	if err != nil {
		return outcome{err: err}
	}
	signature := d.signer.Sign(txBytes)

	start := time.Now()
	res, err := d.client.ExecuteSigned(sub.ctx, txBytes, signature)
	if err != nil {
		metrics.ObserveLedgerCall(sub.call.Target(), "error", time.Since(start))
		d.log.WithError(err).Warnf("submission %s failed", sub.call.Target())
		return outcome{err: err}
	}
	if !res.Succeeded() {
		metrics.ObserveLedgerCall(sub.call.Target(), "rejected", time.Since(start))
		d.log.Warnf("submission %s rejected: %s", sub.call.Target(), res.Status)
	} else {
		metrics.ObserveLedgerCall(sub.call.Target(), "ok", time.Since(start))
		d.log.WithField("digest", res.Digest).Debugf("submitted %s", sub.call.Target())
	}
	return outcome{res: res}
}
