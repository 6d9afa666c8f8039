package fetchedge

import (
	"time"

	"github.com/fetchedge/fetchedge/internal/core"
)

// Default tuning values, matching spec.md §6's documented CLI defaults.
const (
	DefaultMaxWorkers      = 16
	DefaultShutdownTimeout = 60 * time.Second
	DefaultPollInterval    = time.Millisecond
	defaultInboxBuffer     = 4096
)

// DispatcherConfig configures a RequestDispatcher.
type DispatcherConfig struct {
	// MaxWorkers bounds how many workers may be spawned (the "spawn" step
	// of find_or_spawn). Zero is rejected at construction time.
	MaxWorkers int

	// Host configures each worker's EngineHost (QuickJS memory limit, fs
	// sandbox root). Its MaxResponseBytes field is not enforced by either
	// backend.
	Host core.HostConfig

	// PollInterval is the worker loop's wall-clock nudge period for
	// inspecting pending promises and firing due timers. Defaults to 1ms.
	PollInterval time.Duration

	// ShutdownTimeout holds the configured drain bound (zero means
	// unbounded). Dispatcher.Shutdown does not read it: it takes its
	// timeout as an argument.
	ShutdownTimeout time.Duration

	// Mode selects HandlerMode; nil uses DefaultMode (the WinterCG-style
	// fetch-event contract specified by this package).
	Mode HandlerMode
}

func (c DispatcherConfig) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

func (c DispatcherConfig) mode() HandlerMode {
	if c.Mode != nil {
		return c.Mode
	}
	return DefaultMode{}
}
