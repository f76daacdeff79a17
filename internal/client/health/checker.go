// Package health probes the backend over the standard gRPC health protocol
// and turns the answers into an online/offline signal for the client.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/gophjournal/internal/common"
	"github.com/dmitrijs2005/gophjournal/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name the backend registers.
const ServiceName = common.HealthServiceName

type Checker struct {
	conn    *grpc.ClientConn
	client  healthpb.HealthClient
	timeout time.Duration
}

// NewChecker prepares a client for addr. No connection is made until the
// first Check.
func NewChecker(addr string, timeout time.Duration) (*Checker, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("health client: %w", err)
	}
	return &Checker{conn: conn, client: healthpb.NewHealthClient(conn), timeout: timeout}, nil
}

// Check returns nil when the backend reports SERVING, and an error wrapping
// common.ErrRemoteUnavailable otherwise.
func (c *Checker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrRemoteUnavailable, err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: status %s", common.ErrRemoteUnavailable, resp.GetStatus())
	}
	return nil
}

func (c *Checker) Close() error {
	return c.conn.Close()
}

// Prober is anything that can tell whether the backend is reachable.
type Prober interface {
	Check(ctx context.Context) error
}

// Watcher polls a Prober and reports transitions. While offline, probes are
// spaced with exponential backoff capped at the regular interval.
type Watcher struct {
	prober   Prober
	interval time.Duration
	logger   logging.Logger

	mu       sync.RWMutex
	online   bool
	onChange func(online bool)
}

func NewWatcher(p Prober, interval time.Duration, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{prober: p, interval: interval, logger: logger}
}

// OnChange registers the transition callback. It runs on the watcher
// goroutine.
func (w *Watcher) OnChange(fn func(online bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

func (w *Watcher) Online() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.online
}

// SetOnline records connectivity learned elsewhere, e.g. from a login.
func (w *Watcher) SetOnline(online bool) {
	w.set(online)
}

func (w *Watcher) set(online bool) {
	w.mu.Lock()
	changed := w.online != online
	w.online = online
	fn := w.onChange
	w.mu.Unlock()

	if changed && fn != nil {
		fn(online)
	}
}

// Probe runs a single check and records the result.
func (w *Watcher) Probe(ctx context.Context) bool {
	err := w.prober.Check(ctx)
	if err != nil {
		w.logger.Debug(ctx, "backend unreachable", "error", err)
	}
	w.set(err == nil)
	return err == nil
}

func (w *Watcher) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.interval / 8
	if b.InitialInterval <= 0 {
		b.InitialInterval = w.interval
	}
	b.MaxInterval = w.interval
	b.MaxElapsedTime = 0
	return b
}

// Run probes until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	b := w.newBackOff()
	for {
		next := w.interval
		if w.Probe(ctx) {
			b.Reset()
		} else {
			next = b.NextBackOff()
		}

		t := time.NewTimer(next)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}
