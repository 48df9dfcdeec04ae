package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/youcloud/sla-engine/internal/config"
	"github.com/youcloud/sla-engine/internal/domain"
	"github.com/youcloud/sla-engine/pkg/util"
)

// TickLock serializes sweeps across engine replicas. A nil lock means this
// instance always runs the sweep.
type TickLock interface {
	TryLock(ctx context.Context, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context) error
}

// ControllerStatus is the engine's operational snapshot.
type ControllerStatus struct {
	Running      bool       `json:"running"`
	Degraded     bool       `json:"degraded"`
	TickInterval string     `json:"tick_interval"`
	LastTickAt   *time.Time `json:"last_tick_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// Controller owns the background tick loop and is the entry point for
// operator commands. It guarantees at most one sweep runs at a time in this
// process; overlapping timer fires are dropped, not queued.
type Controller struct {
	engine *Engine
	lock   TickLock
	cfg    config.EngineConfig
	logger *zap.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	startMu  sync.Mutex
	running  atomic.Bool
	inFlight atomic.Bool
	degraded atomic.Bool

	mu         sync.Mutex
	lastTickAt *time.Time
	lastError  string
}

// NewController builds the controller. lock may be nil.
func NewController(engine *Engine, lock TickLock, cfg config.EngineConfig, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{engine: engine, lock: lock, cfg: cfg, logger: logger}
}

// Start launches the tick loop. The first sweep runs immediately rather
// than waiting one full interval. Start is idempotent.
func (c *Controller) Start(ctx context.Context) {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.running.Load() {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running.Store(true)

	interval := c.cfg.TickInterval()
	c.logger.Info("engine started", zap.Duration("tick_interval", interval))

	go func() {
		defer close(c.done)
		c.runTick(loopCtx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				c.runTick(loopCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits up to the configured join timeout for an
// in-flight sweep to finish. A sweep that overruns the timeout is abandoned
// with a warning; its transaction either commits or rolls back on its own.
func (c *Controller) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if !c.running.Load() {
		return
	}
	c.cancel()
	select {
	case <-c.done:
	case <-time.After(c.cfg.ShutdownJoin()):
		c.logger.Warn("tick did not finish before shutdown timeout",
			zap.Duration("timeout", c.cfg.ShutdownJoin()))
	}
	c.running.Store(false)
	c.logger.Info("engine stopped")
}

// runTick executes one sweep behind the in-flight guard and the optional
// cross-replica lock.
func (c *Controller) runTick(ctx context.Context) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Warn("previous tick still running, skipping this fire")
		return
	}
	defer c.inFlight.Store(false)

	if c.lock != nil {
		ttl := c.cfg.TickInterval()
		acquired, err := c.lock.TryLock(ctx, ttl)
		if err != nil {
			c.logger.Warn("sweep lock unavailable, running without it", zap.Error(err))
		} else if !acquired {
			c.logger.Debug("another replica holds the sweep lock")
			return
		} else {
			defer func() {
				if err := c.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
					c.logger.Warn("sweep lock release failed", zap.Error(err))
				}
			}()
		}
	}

	now := time.Now().UTC()
	err := c.engine.Tick(ctx)

	c.mu.Lock()
	c.lastTickAt = &now
	if err != nil {
		c.lastError = err.Error()
	} else {
		c.lastError = ""
	}
	c.mu.Unlock()

	if err != nil {
		if util.IsKind(err, util.KindPermanentStorage) {
			c.degraded.Store(true)
			c.logger.Error("tick hit a schema-level failure, engine degraded", zap.Error(err))
			return
		}
		c.logger.Warn("tick failed", zap.Error(err))
		return
	}
	c.degraded.Store(false)
}

// ForceEscalate applies an operator escalation immediately.
func (c *Controller) ForceEscalate(ctx context.Context, ticketID int64, targetLevel int, operatorID int64, comment string) (*ForceEscalateResult, error) {
	return c.engine.ForceEscalate(ctx, ticketID, targetLevel, operatorID, comment)
}

// Statistics reports SLA compliance over the trailing window.
func (c *Controller) Statistics(ctx context.Context, days int) (*domain.SLAStatistics, error) {
	return c.engine.Statistics(ctx, days)
}

// Overview buckets active tickets by SLA state.
func (c *Controller) Overview(ctx context.Context) (*SLAOverview, error) {
	return c.engine.Overview(ctx)
}

// CheckTicket evaluates a single ticket outside the loop.
func (c *Controller) CheckTicket(ctx context.Context, ticketID int64) (bool, error) {
	return c.engine.CheckAndMark(ctx, ticketID)
}

// Healthy reports whether the loop is running and not degraded.
func (c *Controller) Healthy() bool {
	return c.running.Load() && !c.degraded.Load()
}

// Status returns the operational snapshot served by the status endpoint.
func (c *Controller) Status() ControllerStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ControllerStatus{
		Running:      c.running.Load(),
		Degraded:     c.degraded.Load(),
		TickInterval: c.cfg.TickInterval().String(),
		LastTickAt:   c.lastTickAt,
		LastError:    c.lastError,
	}
}
