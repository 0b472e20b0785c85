package stage

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wouteroostervld/ragweaver/pkg/graph"
)

// DefaultCommitDelay coalesces rapid successive output writes into one
// graph store patch.
const DefaultCommitDelay = 50 * time.Millisecond

// Committer writes stage output to the graph store through a debounced,
// cancellable delay. Queue merges patches and arms the timer; each new
// Queue call pushes the write further out, so a burst of updates lands
// as a single patch.
type Committer struct {
	store   graph.Store
	stageID string
	delay   time.Duration
	log     *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]any
}

func NewCommitter(store graph.Store, stageID string, delay time.Duration, log *slog.Logger) *Committer {
	if delay <= 0 {
		delay = DefaultCommitDelay
	}
	if log == nil {
		log = slog.Default()
	}
	return &Committer{store: store, stageID: stageID, delay: delay, log: log}
}

// Queue merges the patch into the pending output and (re)arms the
// commit timer.
func (c *Committer) Queue(patch map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		c.pending = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		c.pending[k] = v
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, func() {
		if err := c.Flush(); err != nil {
			c.log.Error("Deferred commit failed", "stage", c.stageID, "error", err)
		}
	})
}

// Flush writes any pending output immediately and disarms the timer
func (c *Committer) Flush() error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return c.store.PatchNodeData(c.stageID, pending)
}

// Cancel discards pending output without writing it
func (c *Committer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
}
