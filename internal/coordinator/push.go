package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
	"github.com/nerrad567/refoss-bridge/internal/refoss/rpc"
)

// Click is a button event reported by a device input.
type Click struct {
	Key     string
	Channel int
	Type    string
	Time    time.Time
}

// PushConfig configures a Push coordinator.
type PushConfig struct {
	// ReconnectInterval is the wait between push channel reconnects.
	// Default: refoss.ReconnectInterval
	ReconnectInterval time.Duration

	// ReloadCooldown delays a reload after the device reports a config
	// change, collapsing bursts into one reload.
	// Default: refoss.ReloadCooldown
	ReloadCooldown time.Duration

	// OnClick receives input button events.
	OnClick func(Click)

	// OnReload runs after a config change once the cooldown has passed.
	OnReload func(ctx context.Context)

	// OnInitialized runs after every successful device initialization.
	OnInitialized func(ctx context.Context)

	// OnReauth runs once when the device rejects its credentials.
	OnReauth func()

	Logger Logger
}

// Push keeps a device's status current from its push channel.
//
// Start initializes the device and then holds the WebSocket subscription
// open, reconnecting after ReconnectInterval when it drops. Every status
// notification runs the registered listeners.
type Push struct {
	base
	cfg PushConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup

	reloadMu    sync.Mutex
	reloadTimer *time.Timer
}

// NewPush creates a push coordinator for dev.
func NewPush(dev Transport, cfg PushConfig) *Push {
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = refoss.ReconnectInterval
	}
	if cfg.ReloadCooldown <= 0 {
		cfg.ReloadCooldown = refoss.ReloadCooldown
	}
	return &Push{
		base: newBase(dev, cfg.Logger, cfg.OnReauth),
		cfg:  cfg,
	}
}

// Start initializes the device and begins the push loop in the background.
// An initialization error is returned and the loop is not started.
func (p *Push) Start(ctx context.Context) error {
	if err := p.initialize(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(loopCtx)
	}()
	return nil
}

// Stop ends the push loop, cancels a pending reload and waits for the
// loop to exit.
func (p *Push) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.reloadMu.Lock()
	if p.reloadTimer != nil {
		p.reloadTimer.Stop()
		p.reloadTimer = nil
	}
	p.reloadMu.Unlock()
}

func (p *Push) initialize(ctx context.Context) error {
	if err := p.dev.Initialize(ctx); err != nil {
		if errors.Is(err, rpc.ErrInvalidAuth) {
			p.ShutdownAndStartReauth(ctx)
		}
		return err
	}
	p.markSuccess()
	p.logger.Info("device initialized",
		"mac", p.dev.MAC(), "name", p.dev.Name(), "model", p.dev.Model(), "firmware", p.dev.FirmwareVersion())
	if p.cfg.OnInitialized != nil {
		p.cfg.OnInitialized(ctx)
	}
	p.notify()
	return nil
}

func (p *Push) run(ctx context.Context) {
	handler := rpc.PushHandler{
		OnStatus: p.handleStatus,
		OnEvents: func(events []rpc.Event) { p.handleEvents(ctx, events) },
	}

	for {
		err := p.dev.Subscribe(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, rpc.ErrInvalidAuth) {
			p.ShutdownAndStartReauth(ctx)
			return
		}

		p.logger.Warn("push channel lost", "mac", p.dev.MAC(), "error", err,
			"retry_in", p.cfg.ReconnectInterval)
		p.MarkFailed()

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.ReconnectInterval):
		}

		if !p.dev.Initialized() {
			if err := p.initialize(ctx); err != nil {
				if errors.Is(err, rpc.ErrInvalidAuth) {
					return
				}
				p.logger.Debug("device still unreachable", "mac", p.dev.MAC(), "error", err)
				continue
			}
		}
	}
}

func (p *Push) handleStatus() {
	p.markSuccess()
	p.notify()
}

func (p *Push) handleEvents(ctx context.Context, events []rpc.Event) {
	for _, ev := range events {
		switch {
		case ev.Event == rpc.EventConfigChanged:
			p.logger.Info("device config changed", "mac", p.dev.MAC())
			p.scheduleReload(ctx)

		case ev.Name() == "input" && refoss.IsInputEventType(ev.Event):
			if p.cfg.OnClick == nil {
				continue
			}
			at := time.Now()
			if ev.Timestamp > 0 {
				at = time.UnixMilli(int64(ev.Timestamp * 1000))
			}
			p.cfg.OnClick(Click{Key: ev.Key(), Channel: ev.Channel(), Type: ev.Event, Time: at})
		}
	}
}

// scheduleReload arms the reload timer unless one is already pending.
func (p *Push) scheduleReload(ctx context.Context) {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()

	if p.reloadTimer != nil {
		return
	}
	p.reloadTimer = time.AfterFunc(p.cfg.ReloadCooldown, func() {
		p.reloadMu.Lock()
		p.reloadTimer = nil
		p.reloadMu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := p.initialize(ctx); err != nil {
			p.logger.Warn("reload after config change failed", "mac", p.dev.MAC(), "error", err)
			return
		}
		if p.cfg.OnReload != nil {
			p.cfg.OnReload(ctx)
		}
	})
}
