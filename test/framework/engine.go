package framework

import (
	"context"
	"sync"

	"github.com/fenwick-quant/soakctl/pkg/artifacts"
	"github.com/fenwick-quant/soakctl/pkg/engine"
)

// Handle wraps a running Engine with the lifecycle control an integration
// test needs: Stop cancels the run's context, Wait blocks until Run
// returns, and Store gives read access to whatever artifacts the run wrote
// so far.
type Handle struct {
	cfg    engine.Config
	cancel context.CancelFunc

	mu   sync.Mutex
	err  error
	done chan struct{}
}

// SpawnEngine constructs an Engine from cfg and starts Run in a background
// goroutine. t.Helper()/t.Fatalf() report a construction failure
// immediately; Run's own error (if any) is available from Wait.
func SpawnEngine(t TestingT, cfg engine.Config) *Handle {
	t.Helper()

	e, err := engine.New(cfg)
	if err != nil {
		t.Fatalf("framework: engine.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{cfg: cfg, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		runErr := e.Run(ctx)
		h.mu.Lock()
		h.err = runErr
		h.mu.Unlock()
	}()

	return h
}

// Stop cancels the run's context. It does not block; call Wait to observe
// completion.
func (h *Handle) Stop() {
	h.cancel()
}

// Wait blocks until Run has returned and reports its error, if any.
func (h *Handle) Wait() error {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Store opens a fresh artifacts.Store over the run's artifacts directory.
// Safe to call while the run is still in progress: artifacts.Store only
// ever appends or write-once-creates files, so a concurrent reader sees a
// prefix of the final tree, never a torn file.
func (h *Handle) Store() (*artifacts.Store, error) {
	return artifacts.New(h.cfg.ArtifactsDir)
}
