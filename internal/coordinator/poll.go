package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nerrad567/refoss-bridge/internal/refoss"
	"github.com/nerrad567/refoss-bridge/internal/refoss/rpc"
)

// PollConfig configures a Poll coordinator.
type PollConfig struct {
	// Interval between status refreshes. Default: refoss.PollingInterval
	Interval time.Duration

	// OnReauth runs once when the device rejects its credentials.
	OnReauth func()

	Logger Logger
}

// Poll refreshes a device's status on a fixed interval. It serves the
// entities whose values the device does not push, such as RSSI and uptime.
type Poll struct {
	base
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoll creates a polling coordinator for dev.
func NewPoll(dev Transport, cfg PollConfig) *Poll {
	if cfg.Interval <= 0 {
		cfg.Interval = refoss.PollingInterval
	}
	return &Poll{
		base:     newBase(dev, cfg.Logger, cfg.OnReauth),
		interval: cfg.Interval,
	}
}

// Start begins polling in the background. An initialized device already
// holds a fresh status, so the coordinator starts out successful.
func (p *Poll) Start(ctx context.Context) {
	if p.dev.Initialized() {
		p.markSuccess()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(loopCtx); err != nil && loopCtx.Err() == nil {
					p.logger.Debug("poll failed", "mac", p.dev.MAC(), "error", err)
				}
			}
		}
	}()
}

// Stop ends polling and waits for the loop to exit.
func (p *Poll) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Refresh polls the device once and notifies listeners. A device that is
// not initialized is skipped; the push coordinator owns initialization.
func (p *Poll) Refresh(ctx context.Context) error {
	if !p.dev.Initialized() {
		return nil
	}

	err := p.dev.Update(ctx)
	switch {
	case err == nil:
		p.markSuccess()
		p.notify()
		return nil
	case errors.Is(err, rpc.ErrInvalidAuth):
		p.ShutdownAndStartReauth(ctx)
		return err
	default:
		p.MarkFailed()
		return err
	}
}
