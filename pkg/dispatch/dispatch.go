// Package dispatch executes pipeline stages and propagates completion
// triggers to their downstream neighbours over the bus. There is no
// central scheduler walking the whole graph; each completed run invites
// its direct successors to run, and guards keep the cascade safe.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wouteroostervld/ragweaver/pkg/bus"
	"github.com/wouteroostervld/ragweaver/pkg/graph"
)

// Runner is the execution surface a stage exposes to the dispatcher
type Runner interface {
	ID() string
	// Run performs the stage's work. The context is cancelled when the
	// run returns or the dispatcher shuts down.
	Run(ctx context.Context) error
	// Ready reports whether prerequisites are satisfied. A stage that
	// is not ready is skipped without error; the next trigger re-checks.
	Ready() bool
	Disabled() bool
}

// Resettable is implemented by runners that accumulate state between
// runs. A delete-requested signal clears that state.
type Resettable interface {
	Reset()
}

// DefaultStagger spaces out downstream triggers so parallel fan-out
// doesn't thundering-herd a shared provider.
const DefaultStagger = 100 * time.Millisecond

type Config struct {
	Stagger time.Duration
}

func DefaultConfig() Config {
	return Config{Stagger: DefaultStagger}
}

type runState struct {
	running atomic.Bool
}

type subscription struct {
	stageID string
	ch      <-chan bus.Signal
	cancel  func()
}

// Dispatcher coordinates stage runs over a fixed topology
type Dispatcher struct {
	store   graph.Store
	bus     *bus.Bus
	log     *slog.Logger
	stagger time.Duration

	mu      sync.RWMutex
	runners map[string]Runner
	states  map[string]*runState
	subs    []subscription
}

func New(store graph.Store, b *bus.Bus, cfg Config, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Stagger <= 0 {
		cfg.Stagger = DefaultStagger
	}
	return &Dispatcher{
		store:   store,
		bus:     b,
		log:     log,
		stagger: cfg.Stagger,
		runners: make(map[string]Runner),
		states:  make(map[string]*runState),
	}
}

// Register makes a stage runnable. Must be called before Serve or
// RunStage references the stage.
func (d *Dispatcher) Register(r Runner) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runners[r.ID()] = r
	d.states[r.ID()] = &runState{}
}

func (d *Dispatcher) lookup(stageID string) (Runner, *runState, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.runners[stageID]
	if !ok {
		return nil, nil, false
	}
	return r, d.states[stageID], true
}

// RunStage executes one stage if its guards pass, then propagates.
// Guard rejections (disabled, not ready, already running) are expected
// states: they log and return nil. A run failure is returned to the
// caller and stops the cascade at this stage.
func (d *Dispatcher) RunStage(ctx context.Context, stageID string) error {
	runner, state, ok := d.lookup(stageID)
	if !ok {
		return fmt.Errorf("no runner registered for stage %q", stageID)
	}
	runID := uuid.NewString()
	log := d.log.With("stage", stageID, "run", runID)

	if runner.Disabled() {
		log.Info("Skipping run, stage disabled")
		return nil
	}
	if !runner.Ready() {
		log.Info("Skipping run, prerequisites not satisfied")
		return nil
	}
	if !state.running.CompareAndSwap(false, true) {
		log.Info("Skipping run, stage already running")
		return nil
	}
	defer state.running.Store(false)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.Info("Running stage")
	if err := runner.Run(runCtx); err != nil {
		log.Error("Stage run failed", "error", err)
		return fmt.Errorf("run stage %s: %w", stageID, err)
	}
	log.Info("Stage run completed")

	d.bus.Publish(bus.Signal{Topic: bus.TopicRunCompleted, StageID: stageID, RunID: runID})
	d.Propagate(stageID, runID)
	return nil
}

// Propagate requests runs of every direct downstream stage. Targets are
// triggered in stable order with increasing delay so simultaneous
// fan-out is spread over time.
func (d *Dispatcher) Propagate(stageID, runID string) {
	for i, edge := range d.store.OutEdges(stageID) {
		target := edge.Target
		delay := d.stagger * time.Duration(i+1)
		time.AfterFunc(delay, func() {
			d.bus.Publish(bus.Signal{
				Topic:    bus.TopicRunRequested,
				StageID:  target,
				SourceID: stageID,
				RunID:    runID,
			})
		})
	}
}

// Listen opens a bus subscription for every registered stage. Triggers
// published after Listen returns are buffered until Serve drains them,
// so callers can fire kickoff signals before the serve loop is up.
// Serve calls Listen itself when the caller has not.
func (d *Dispatcher) Listen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs != nil {
		return
	}
	d.subs = make([]subscription, 0, len(d.runners))
	for id := range d.runners {
		ch, cancel := d.bus.Subscribe(id)
		d.subs = append(d.subs, subscription{stageID: id, ch: ch, cancel: cancel})
	}
}

// Serve runs the trigger loop: each RunRequested signal on a stage's
// subscription turns into a RunStage call. Blocks until ctx is
// cancelled.
func (d *Dispatcher) Serve(ctx context.Context) {
	d.Listen()
	d.mu.RLock()
	subs := d.subs
	d.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(stageID string, ch <-chan bus.Signal, cancel func()) {
			defer wg.Done()
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case sig, open := <-ch:
					if !open {
						return
					}
					switch sig.Topic {
					case bus.TopicRunRequested:
						if err := d.RunStage(ctx, stageID); err != nil {
							d.log.Error("Triggered run failed",
								"stage", stageID, "source", sig.SourceID, "error", err)
						}
					case bus.TopicDeleteRequested:
						if runner, _, ok := d.lookup(stageID); ok {
							if r, can := runner.(Resettable); can {
								d.log.Info("Resetting stage state", "stage", stageID)
								r.Reset()
							}
						}
					}
				}
			}
		}(sub.stageID, sub.ch, sub.cancel)
	}
	wg.Wait()
}
