package runtime

import (
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/wippyai/luahost/config"
	"github.com/wippyai/luahost/errors"
	"github.com/wippyai/luahost/gc"
	"github.com/wippyai/luahost/hotfix"
	"github.com/wippyai/luahost/loader"
	"github.com/wippyai/luahost/resource"
	"github.com/wippyai/luahost/vm"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once

	// live guards the one-VM-per-process rule.
	live atomic.Bool
)

// Logger returns the package logger used when no WithLogger option is given.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the package logger.
// This must be called before New.
func SetLogger(l *zap.Logger) {
	logger = l
}

// Option configures New.
type Option func(*Runtime)

// WithLogger sets the logger for the runtime and everything it creates.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runtime) {
		if l != nil {
			r.log = l
		}
	}
}

// WithBundle supplies an already opened bundle. The runtime does not close it.
func WithBundle(b loader.Bundle) Option {
	return func(r *Runtime) {
		r.bundle = b
		r.ownsBundle = false
	}
}

// WithLoader replaces the configured loader strategy.
func WithLoader(l loader.Loader) Option {
	return func(r *Runtime) {
		r.loader = l
	}
}

// Runtime owns the VM, the global environment, the loader chain, the function
// cache, the hot-patch state and every live owner of script state.
//
// A Runtime is not safe for concurrent use.
type Runtime struct {
	cfg   config.Config
	log   *zap.Logger
	state *vm.State
	cache *vm.FunctionCache
	hosts *HostRegistry

	loader     loader.Loader
	bundle     loader.Bundle
	ownsBundle bool

	verifier      *hotfix.Verifier
	patch         *hotfix.Patch
	hotfixEnable  *lua.LFunction
	hotfixDisable *lua.LFunction

	owners    *resource.Table
	ownerLog  *ownerLogger
	scheduler *gc.Scheduler
	scheduled []func()

	lastMiss    string
	initialized bool
	closed      bool
}

// New creates the runtime. Only one runtime may be open per process; New
// fails with a conflict error until the previous one is closed.
func New(cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !live.CompareAndSwap(false, true) {
		return nil, errors.Conflict(errors.PhaseRuntime, "a runtime is already open in this process")
	}

	r := &Runtime{
		cfg:        cfg,
		log:        Logger(),
		ownsBundle: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := r.setup(); err != nil {
		if r.bundle != nil && r.ownsBundle {
			r.bundle.Close()
		}
		r.release()
		return nil, err
	}

	r.log.Info("runtime started",
		zap.Bool("use_bundle", cfg.UseBundle),
		zap.Bool("hotfix", r.verifier.Enabled()),
		zap.Duration("gc_interval", cfg.GCInterval.Std()),
	)
	return r, nil
}

func (r *Runtime) setup() error {
	verifier, err := hotfix.NewVerifier(r.cfg.PublicKey)
	if err != nil {
		return err
	}
	r.verifier = verifier

	if r.loader == nil {
		if r.cfg.UseBundle && r.bundle == nil {
			b, err := loader.OpenBundle(r.cfg.BundlePath)
			if err != nil {
				r.log.Error("cannot open script bundle", zap.String("path", r.cfg.BundlePath), zap.Error(err))
			} else {
				r.bundle = b
			}
		}
		r.loader = loader.New(r.cfg, r.bundle, r.log)

		if r.cfg.VerifyScripts {
			signed, err := loader.NewSignedLoader(r.loader, verifier, r.log)
			if err != nil {
				return err
			}
			r.loader = signed
		}
	}

	r.state = vm.NewState(vm.Options{Logger: r.log, StepBudget: r.cfg.GCStepBudget})
	if err := r.state.SetSearcher(r.search); err != nil {
		r.state.Close()
		return err
	}

	r.cache = vm.NewFunctionCache(r.state, r.log)
	r.owners = resource.NewTable()
	r.ownerLog = &ownerLogger{log: r.log}
	r.owners.Subscribe(r.ownerLog)
	r.scheduler = gc.NewScheduler(r.state, r.cache, r.cfg.GCInterval.Std(), r.log)
	r.hosts = NewHostRegistry()

	if err := r.RegisterHost(&LogHost{log: r.log}); err != nil {
		r.state.Close()
		return err
	}
	return nil
}

// search feeds require from the loader chain.
func (r *Runtime) search(name string) ([]byte, string, error) {
	m, err := r.loader.Load(name)
	if err != nil {
		if errors.IsNotFound(err) {
			r.lastMiss = name
		}
		return nil, "", err
	}
	return m.Source, m.Path, nil
}

// Config returns the configuration the runtime was created with.
func (r *Runtime) Config() config.Config {
	return r.cfg
}

// Logger returns the runtime logger.
func (r *Runtime) Logger() *zap.Logger {
	return r.log
}

// State returns the underlying VM.
func (r *Runtime) State() *vm.State {
	return r.state
}

// Global returns the shared global environment.
func (r *Runtime) Global() *vm.Environment {
	return r.state.Global()
}

// Owners returns the live-owner table.
func (r *Runtime) Owners() *resource.Table {
	return r.owners
}

// Closed reports whether Close has run.
func (r *Runtime) Closed() bool {
	return r.closed
}

// Init applies a verified hot-patch, requires the init module and runs its
// init function. Missing init scripts are logged and skipped. Init runs once.
func (r *Runtime) Init() error {
	if r.closed {
		return errors.NotInitialized(errors.PhaseRuntime, "runtime")
	}
	if r.initialized {
		return nil
	}
	r.initialized = true

	r.applyHotfix()

	if r.cfg.InitModule != "" {
		if _, err := r.Require(r.cfg.InitModule); err != nil {
			if !errors.IsNotFound(err) {
				return err
			}
			r.log.Warn("init module not found", zap.String("module", r.cfg.InitModule))
		}
	}

	if r.cfg.InitFunction != "" {
		if _, err := r.CallGlobalFunction(r.cfg.InitFunction, false); err != nil && !errors.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// Startup calls the configured startup function.
func (r *Runtime) Startup() error {
	if r.closed {
		return errors.NotInitialized(errors.PhaseRuntime, "runtime")
	}
	if r.cfg.StartupFunction == "" {
		return nil
	}
	_, err := r.CallGlobalFunction(r.cfg.StartupFunction, false)
	return err
}

// HotfixState reports the state of the loaded patch, if any.
func (r *Runtime) HotfixState() (hotfix.State, bool) {
	if r.patch == nil {
		return hotfix.Unverified, false
	}
	return r.patch.State(), true
}

// applyHotfix runs the patch only after its signature verified. Every failure
// leaves the base scripts in charge.
func (r *Runtime) applyHotfix() {
	if !r.verifier.Enabled() {
		r.log.Debug("hot-patching disabled")
		return
	}

	patch, err := hotfix.Load(r.cfg.PersistentDataPath, r.cfg.HotfixPath)
	if err != nil {
		r.log.Warn("cannot read hot-patch", zap.Error(err))
		return
	}
	if patch == nil {
		return
	}
	r.patch = patch

	if _, err := patch.Verify(r.verifier); err != nil {
		r.log.Warn("hot-patch rejected", zap.String("path", patch.Path), zap.Error(err))
		return
	}

	src, ok := patch.Runnable()
	if !ok {
		return
	}
	if _, err := r.state.Exec(src, patch.Path, r.state.Global()); err != nil {
		r.log.Warn("hot-patch failed to run", zap.String("path", patch.Path), zap.Error(err))
		return
	}

	r.hotfixEnable, _ = r.state.Global().Get(r.cfg.HotfixEnable).(*lua.LFunction)
	r.hotfixDisable, _ = r.state.Global().Get(r.cfg.HotfixDisable).(*lua.LFunction)
	if err := patch.Activate(); err != nil {
		r.log.Warn("hot-patch not activated", zap.Error(err))
		return
	}

	if r.hotfixEnable != nil {
		if _, err := r.state.Call(r.hotfixEnable); err != nil {
			r.log.Warn("hot-patch enable failed", zap.String("function", r.cfg.HotfixEnable), zap.Error(err))
		}
	}
	r.log.Info("hot-patch active", zap.String("path", patch.Path))
}

func (r *Runtime) disableHotfix() {
	disable := r.hotfixDisable
	r.hotfixEnable = nil
	r.hotfixDisable = nil
	if disable == nil {
		return
	}
	if _, err := r.state.Call(disable); err != nil {
		r.log.Warn("hot-patch disable failed", zap.String("function", r.cfg.HotfixDisable), zap.Error(err))
	}
}

// Schedule queues fn to run on the next Tick. Pending callbacks are dropped
// by Close without running.
func (r *Runtime) Schedule(fn func()) {
	if r.closed || fn == nil {
		return
	}
	r.scheduled = append(r.scheduled, fn)
}

// Tick runs scheduled callbacks and paces the collector. now is the host's
// monotonic frame clock.
func (r *Runtime) Tick(now time.Duration) {
	if r.closed {
		return
	}
	pending := r.scheduled
	r.scheduled = nil
	for _, fn := range pending {
		if r.closed {
			return
		}
		fn()
	}
	r.scheduler.Tick(now)
}

// GC forces a full collection. Cached functions are invalidated first.
func (r *Runtime) GC() {
	if r.closed {
		return
	}
	r.scheduler.ForceFull()
}

// Stats reports collector activity.
func (r *Runtime) Stats() vm.Stats {
	return r.state.Stats()
}

// Close tears the runtime down. Scheduled callbacks are dropped, the
// hot-patch is disabled, cached functions are invalidated, live behaviors are
// destroyed, remaining environments are disposed, and finally the VM closes.
// Repeated calls are no-ops.
func (r *Runtime) Close() error {
	if r.closed {
		return nil
	}

	r.scheduled = nil
	r.disableHotfix()
	functions := r.cache.InvalidateAll()
	behaviors := r.owners.ClearKind(resource.KindBehavior)
	envs := r.owners.ClearKind(resource.KindEnvironment)
	r.owners.Clear()
	// OnDestroy callbacks may have resolved functions again.
	functions += r.cache.InvalidateAll()
	r.owners.Unsubscribe(r.ownerLog)
	r.owners.Close()

	r.closed = true
	r.state.Global().Dispose()
	r.state.Close()

	var err error
	if r.bundle != nil && r.ownsBundle {
		if cerr := r.bundle.Close(); cerr != nil {
			err = errors.Wrap(errors.PhaseRuntime, errors.KindConfiguration, cerr, "close bundle")
		}
	}
	r.release()

	r.log.Info("runtime closed",
		zap.Int("functions", functions),
		zap.Int("behaviors", behaviors),
		zap.Int("environments", envs),
	)
	return err
}

func (r *Runtime) release() {
	live.Store(false)
}

// ownerLogger reports owners entering and leaving the live-owner table.
type ownerLogger struct {
	log *zap.Logger
}

func (o *ownerLogger) OnResourceEvent(e resource.Event) {
	msg := "owner tracked"
	if e.Type == resource.EventDropped {
		msg = "owner dropped"
	}
	o.log.Debug(msg, zap.Stringer("kind", e.Kind), zap.Uint32("handle", uint32(e.Handle)))
}
