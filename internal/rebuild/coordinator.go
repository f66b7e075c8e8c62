// Package rebuild coalesces file-change notifications into sequential
// builds of the development artifact and broadcasts each successful build.
//
// At most one build runs at a time. A change that arrives while a build is
// running never waits and never starts a second build: it marks the
// coordinator pending, and exactly one more build runs once the current one
// finishes. Any number of changes during a build therefore collapse into a
// single follow-up build, and the last change is never lost.
package rebuild

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/scriptsmith/internal/build"
	"github.com/conneroisu/scriptsmith/internal/config"
	"github.com/conneroisu/scriptsmith/internal/livereload"
	"github.com/conneroisu/scriptsmith/internal/logging"
)

//go:generate mockgen -source=coordinator.go -destination=mocks/mock_coordinator.go -package=mocks

// Builder produces the development artifact.
type Builder interface {
	Build(ctx context.Context, cfg *config.Config, opts build.Options) (*build.Result, error)
}

// Broadcaster delivers a payload to connected clients and reports how many
// received it.
type Broadcaster interface {
	Broadcast(payload *livereload.Payload) int
}

// ConfigLoader returns a freshly read configuration.
type ConfigLoader func() (*config.Config, error)

// PayloadFunc frames the artifact at path as a reload message.
type PayloadFunc func(path string) (*livereload.Payload, error)

// State is the coordinator's build state.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateBuildingPending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateBuildingPending:
		return "building+pending"
	default:
		return "unknown"
	}
}

// Stage names the step a build failed in.
type Stage string

const (
	StageConfig    Stage = "config"
	StageBuild     Stage = "build"
	StageBroadcast Stage = "broadcast"
)

// Options configure a Coordinator. Loader, Builder and Broadcaster are required.
type Options struct {
	Loader      ConfigLoader
	Builder     Builder
	Broadcaster Broadcaster
	Payload     PayloadFunc
	Logger      logging.Logger
	// OnError is called for every failed build after it has been logged.
	OnError func(stage Stage, err error)
}

// Stats are cumulative counters.
type Stats struct {
	Triggers   int64
	Coalesced  int64
	Builds     int64
	Failures   int64
	Broadcasts int64
	LastError  error
	LastBuild  time.Duration
}

// Coordinator serializes rebuilds.
type Coordinator struct {
	loader      ConfigLoader
	builder     Builder
	broadcaster Broadcaster
	payload     PayloadFunc
	logger      logging.Logger
	onError     func(Stage, error)

	mu    sync.Mutex
	state State
	stats Stats
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(opts Options) *Coordinator {
	if opts.Payload == nil {
		opts.Payload = livereload.NewReloadPayload
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	return &Coordinator{
		loader:      opts.Loader,
		builder:     opts.Builder,
		broadcaster: opts.Broadcaster,
		payload:     opts.Payload,
		logger:      opts.Logger.WithComponent("rebuild"),
		onError:     opts.OnError,
	}
}

// Trigger reports a change to path. If no build is running, Trigger builds
// in the calling goroutine until no change is pending and returns true.
// Otherwise it marks a follow-up build and returns false immediately.
func (c *Coordinator) Trigger(ctx context.Context, path string) bool {
	c.logger.Debug(ctx, "change detected", "path", path)

	if !c.begin() {
		c.logger.Debug(ctx, "build in progress, queued follow-up", "path", path)
		return false
	}

	for {
		c.runOnce(ctx)
		if !c.finish() {
			return true
		}
	}
}

// begin atomically moves Idle to Building (returns true) or marks a running
// build as pending (returns false).
func (c *Coordinator) begin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Triggers++
	switch c.state {
	case StateIdle:
		c.state = StateBuilding
		return true
	case StateBuilding:
		c.state = StateBuildingPending
	}
	c.stats.Coalesced++
	return false
}

// finish ends a build. It returns true when a pending change requires
// another build, in which case the coordinator stays Building.
func (c *Coordinator) finish() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateBuildingPending {
		c.state = StateBuilding
		return true
	}
	c.state = StateIdle
	return false
}

func (c *Coordinator) runOnce(ctx context.Context) {
	start := time.Now()

	cfg, err := c.loader()
	if err != nil {
		c.fail(ctx, StageConfig, err, start)
		return
	}

	result, err := c.builder.Build(ctx, cfg, build.Options{Dev: true})
	if err != nil {
		c.fail(ctx, StageBuild, err, start)
		return
	}

	payload, err := c.payload(result.Path)
	if err != nil {
		c.fail(ctx, StageBroadcast, err, start)
		return
	}
	delivered := c.broadcaster.Broadcast(payload)

	elapsed := time.Since(start)
	c.mu.Lock()
	c.stats.Builds++
	c.stats.Broadcasts++
	c.stats.LastBuild = elapsed
	c.stats.LastError = nil
	c.mu.Unlock()

	c.logger.Info(ctx, "rebuilt",
		"artifact", result.Path,
		"bytes", result.Size,
		"duration", elapsed.Round(time.Millisecond).String(),
		"clients", delivered,
	)
}

func (c *Coordinator) fail(ctx context.Context, stage Stage, err error, start time.Time) {
	c.mu.Lock()
	c.stats.Builds++
	c.stats.Failures++
	c.stats.LastError = err
	c.stats.LastBuild = time.Since(start)
	c.mu.Unlock()

	c.logger.Error(ctx, err, "rebuild failed", "stage", string(stage))
	if c.onError != nil {
		c.onError(stage, err)
	}
}

// State returns the current build state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a copy of the counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
