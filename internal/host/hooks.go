package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/oshokin/offline-packager/internal/asset"
	"github.com/oshokin/offline-packager/internal/logger"
)

// EmitFunc runs once per build pass with the finalized, not yet written
// outputs. It must call done exactly once, possibly from another goroutine.
type EmitFunc func(ctx context.Context, outputs *asset.OutputSet, done func(error))

// Hooks is the extension point plugins register with.
type Hooks interface {
	// TapEmit registers fn to run at the emit stage under the given plugin name.
	TapEmit(name string, fn EmitFunc)
}

// errNilEmitFunc is returned when a tap was registered without a callback.
var errNilEmitFunc = errors.New("emit callback is not set")

// tap is a registered emit callback.
type tap struct {
	// name identifies the plugin in logs and errors.
	name string
	// fn is the plugin callback.
	fn EmitFunc
}

// Compiler runs registered emit callbacks in registration order.
type Compiler struct {
	// mu protects taps.
	mu sync.Mutex
	// taps holds the registered callbacks.
	taps []tap
}

// NewCompiler creates a compiler without registered plugins.
func NewCompiler() *Compiler {
	return new(Compiler)
}

// TapEmit registers an emit callback.
func (c *Compiler) TapEmit(name string, fn EmitFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.taps = append(c.taps, tap{name: name, fn: fn})
}

// Emit runs every emit callback in series, waiting for each completion
// signal before starting the next one. The first failure stops the chain.
// Extra completion signals are logged and ignored.
func (c *Compiler) Emit(ctx context.Context, outputs *asset.OutputSet) error {
	c.mu.Lock()
	taps := append([]tap(nil), c.taps...)
	c.mu.Unlock()

	for _, t := range taps {
		if err := runTap(ctx, t, outputs); err != nil {
			return fmt.Errorf("plugin %s: %w", t.name, err)
		}
	}

	return nil
}

// runTap invokes one callback and waits for its completion signal or ctx.
func runTap(ctx context.Context, t tap, outputs *asset.OutputSet) error {
	if t.fn == nil {
		return errNilEmitFunc
	}

	ctx = logger.WithKV(ctx, "plugin", t.name)

	var (
		once    sync.Once
		results = make(chan error, 1)
	)

	done := func(err error) {
		signalled := false

		once.Do(func() {
			signalled = true
			results <- err
		})

		if !signalled {
			logger.WarnKV(ctx, "Ignoring repeated completion signal", "error", err)
		}
	}

	logger.Debug(ctx, "Running emit hook")

	t.fn(ctx, outputs, done)

	select {
	case err := <-results:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
