package multi

import (
	"fmt"
	"io"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/probemux/probemux/probe"
)

// Config carries the construction parameters for a Proxy's probe controller.
// It mirrors probe.Config; the worker rebuilds the controller from it at
// startup.
type Config struct {
	Family      string
	LibraryPath string
	Log         bool
	LogPrefix   string
	LogFilePath string

	// LogSink receives worker and driver log output directly. Only honored
	// by the in-process start strategy; a stream cannot cross the process
	// boundary, so the exec strategy needs LogFilePath instead.
	LogSink io.Writer
}

// LockFactory produces the mutual-exclusion primitive guarding the worker
// channel. The default is a plain mutex; callers with their own concurrency
// model substitute a compatible primitive.
type LockFactory func() sync.Locker

// Proxy drives one probe through a dedicated worker process. It implements
// probe.Controller: every method performs a full round trip to the worker,
// blocking until the result arrives. At most one call is in flight at a
// time; concurrent callers queue on the serialization guard.
type Proxy struct {
	logger   *zap.SugaredLogger
	id       string
	cfg      Config
	strategy StartStrategy
	handle   *workerHandle

	lockFactory LockFactory
	lockOnce    sync.Once
	lock        sync.Locker

	terminated    atomic.Bool
	terminateOnce sync.Once
	terminateErr  error
}

// Option customizes a Proxy.
type Option func(p *Proxy)

// WithLogger sets the host-side logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Proxy) {
		p.logger = l.Named("probe_proxy").Sugar()
	}
}

// WithLockFactory overrides the serialization guard. The guard is built
// lazily on the first forwarded call.
func WithLockFactory(f LockFactory) Option {
	return func(p *Proxy) {
		p.lockFactory = f
	}
}

// WithStartStrategy overrides the worker start strategy.
func WithStartStrategy(s StartStrategy) Option {
	return func(p *Proxy) {
		p.strategy = s
	}
}

// New spawns a worker process for cfg and returns the proxy to it. The
// worker constructs its probe controller from cfg; the first forwarded call
// observes any construction failure as a TransportError.
//
// If the selected strategy shares host state and a live controller already
// exists in this process, New fails with ErrAlreadyInstantiated rather than
// risk two live native instances.
func New(cfg Config, opts ...Option) (*Proxy, error) {
	p := &Proxy{
		logger:      zap.NewNop().Sugar(),
		id:          uuid.NewString(),
		cfg:         cfg,
		strategy:    DefaultStartStrategy(),
		lockFactory: func() sync.Locker { return &sync.Mutex{} },
	}
	for _, o := range opts {
		o(p)
	}
	p.logger = p.logger.With("ProbeID", p.id, "Family", cfg.Family)

	if p.strategy.SharesHostState() && probe.Instantiated() {
		return nil, ErrAlreadyInstantiated
	}

	handle, err := p.strategy.start(cfg.LogSink)
	if err != nil {
		return nil, fmt.Errorf("starting worker: %w", err)
	}
	p.handle = handle

	spawn := spawnConfig{
		Family:      cfg.Family,
		LibraryPath: cfg.LibraryPath,
		Log:         cfg.Log,
		LogPrefix:   cfg.LogPrefix,
		LogFilePath: cfg.LogFilePath,
	}
	if err := handle.d.send(&spawn); err != nil {
		handle.stop()
		handle.d.close()
		_ = handle.wait()
		return nil, &TransportError{Stage: "send", Err: err}
	}

	p.logger.Debugw("worker started", "Strategy", p.strategy.Name())

	// Safety net for discarded proxies; Terminate is the real shutdown
	// path.
	runtime.SetFinalizer(p, func(p *Proxy) { _ = p.Terminate() })

	return p, nil
}

// ID returns the proxy's instance id, used to correlate host and worker
// logs.
func (p *Proxy) ID() string { return p.id }

// Family returns the device family this proxy was constructed for.
func (p *Proxy) Family() string { return p.cfg.Family }

// IsAlive reports whether the proxy can still forward operations. True from
// successful construction until Terminate.
func (p *Proxy) IsAlive() bool {
	return !p.terminated.Load()
}

// Terminate stops the worker process, closes both channel directions, and
// waits for process exit. Idempotent; after the first call every forwarded
// operation fails with ErrUnavailable.
func (p *Proxy) Terminate() error {
	p.terminateOnce.Do(func() {
		p.terminated.Store(true)
		p.handle.stop()
		p.handle.d.close()
		p.terminateErr = p.handle.wait()
		runtime.SetFinalizer(p, nil)
		p.logger.Debug("worker terminated")
	})
	return p.terminateErr
}

// opSet is the known operation surface, built once from the
// probe.Controller interface.
var opSet = func() map[string]struct{} {
	t := reflect.TypeOf((*probe.Controller)(nil)).Elem()
	m := make(map[string]struct{}, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		m[t.Method(i).Name] = struct{}{}
	}
	return m
}()

// Invoke forwards the named operation with positional arguments and returns
// its result value, nil for void operations.
func (p *Proxy) Invoke(op string, args ...any) (any, error) {
	return p.call(op, nil, args...)
}

// InvokeOpts is Invoke with named options for operations that accept them.
func (p *Proxy) InvokeOpts(op string, opts map[string]any, args ...any) (any, error) {
	return p.call(op, opts, args...)
}

// call is the one generic invoke-remote primitive every operation funnels
// through. The guard is held from before the envelope is sent until the
// matching result is received; envelopes carry no correlation id, so strict
// alternation is what keeps responses matched to requests.
func (p *Proxy) call(op string, opts map[string]any, args ...any) (any, error) {
	if _, known := opSet[op]; !known {
		// No transport interaction for unknown names.
		return nil, &UnknownOperationError{Op: op}
	}
	if !p.IsAlive() {
		return nil, ErrUnavailable
	}

	p.lockOnce.Do(func() { p.lock = p.lockFactory() })
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.IsAlive() {
		return nil, ErrUnavailable
	}

	if err := p.handle.d.send(&CallEnvelope{Op: op, Args: args, Opts: opts}); err != nil {
		return nil, &TransportError{Stage: "send", Err: err}
	}

	var res ResultEnvelope
	if err := p.handle.d.recv(&res); err != nil {
		return nil, &TransportError{Stage: "receive", Err: err}
	}

	if res.Err != nil {
		if res.Err.RemoteTrace != "" {
			p.logger.Warnw("remote operation failed", "Op", op, "RemoteTrace", res.Err.RemoteTrace)
		}
		return nil, res.Err.reify()
	}
	return res.Value, nil
}

// WithSession runs fn against an acquired probe, guaranteeing release on
// every exit path.
func (p *Proxy) WithSession(fn func(ctl probe.Controller) error) (err error) {
	if err := p.Open(); err != nil {
		return err
	}
	defer func() {
		cerr := p.Close()
		if err == nil {
			err = cerr
		}
	}()
	return fn(p)
}
