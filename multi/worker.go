package multi

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"runtime/debug"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/probemux/probemux/probe"
)

const workerEnv = "PROBEMUX_WORKER"

// The worker inherits the two channel streams as file descriptors.
const (
	workerCallFD   = 3 // host → worker, carries CallEnvelopes
	workerResultFD = 4 // worker → host, carries ResultEnvelopes
)

// spawnConfig is the wire form of Config, sent to the worker as the first
// message on the call channel. A stream sink cannot cross the process
// boundary, so only the file-path log destination survives here.
type spawnConfig struct {
	Family      string
	LibraryPath string
	Log         bool
	LogPrefix   string
	LogFilePath string
}

// MaybeRunWorker runs the worker host loop and exits the process if this
// process was started as a probe worker, and returns immediately otherwise.
// Binaries that construct a Proxy must call it first thing in main.
func MaybeRunWorker() {
	if os.Getenv(workerEnv) == "" {
		return
	}
	callR := os.NewFile(workerCallFD, "probemux-call")
	resultW := os.NewFile(workerResultFD, "probemux-result")
	if callR == nil || resultW == nil {
		fmt.Fprintln(os.Stderr, "probemux worker: channel fds not inherited")
		os.Exit(1)
	}
	d := newDuplex(callR, resultW, callR, resultW)
	if err := runWorker(d, nil); err != nil {
		fmt.Fprintf(os.Stderr, "probemux worker: %s\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// runWorker is the worker host loop. It constructs exactly one probe
// controller from the spawn config, then executes envelopes until the call
// channel closes. Operation failures are converted to ErrorRecords and sent
// back as data; they never terminate the loop.
//
// A construction failure exits the worker instead: the host observes the
// dead channel as a TransportError on its first call.
func runWorker(d *duplex, sink io.Writer) error {
	var cfg spawnConfig
	if err := d.recv(&cfg); err != nil {
		return fmt.Errorf("receiving spawn config: %w", err)
	}

	log, flush, err := buildWorkerLogger(cfg, sink)
	if err != nil {
		return err
	}
	defer flush()

	ctl, err := probe.New(probe.Config{
		Family:      cfg.Family,
		LibraryPath: cfg.LibraryPath,
		Log:         cfg.Log,
		LogPrefix:   cfg.LogPrefix,
		LogFilePath: cfg.LogFilePath,
		LogSink:     sink,
	})
	if err != nil {
		return fmt.Errorf("constructing %q controller: %w", cfg.Family, err)
	}
	defer ctl.Close()

	log.Debugw("worker ready", "Family", cfg.Family)

	table := newOpTable(ctl)
	for {
		var env CallEnvelope
		if err := d.recv(&env); err != nil {
			if isChannelClosed(err) {
				log.Debug("call channel closed, worker exiting")
				return nil
			}
			return fmt.Errorf("receiving call: %w", err)
		}

		res := table.invoke(&env)
		if res.Err != nil {
			log.Debugw("operation failed", "Op", env.Op, "Kind", res.Err.Kind, "Message", res.Err.Message)
		}

		if err := d.send(&res); err != nil {
			return fmt.Errorf("sending result for %q: %w", env.Op, err)
		}
	}
}

func isChannelClosed(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed)
}

// buildWorkerLogger builds the worker-side logger per the spawn config:
// disabled by default, prefix becomes the logger name, and output goes to
// stderr, the configured file, or the in-process sink.
func buildWorkerLogger(cfg spawnConfig, sink io.Writer) (*zap.SugaredLogger, func(), error) {
	if !cfg.Log && cfg.LogFilePath == "" && sink == nil {
		return zap.NewNop().Sugar(), func() {}, nil
	}

	ws := zapcore.Lock(os.Stderr)
	cleanup := func() {}
	if sink != nil {
		ws = zapcore.AddSync(sink)
	} else if cfg.LogFilePath != "" {
		f, err := os.Create(cfg.LogFilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening worker log file: %w", err)
		}
		ws = zapcore.Lock(f)
		cleanup = func() { f.Close() }
	}

	name := cfg.LogPrefix
	if name == "" {
		name = "worker"
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), ws, zapcore.DebugLevel)
	return zap.New(core).Named(name).Sugar(), cleanup, nil
}

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	optsType  = reflect.TypeOf(map[string]any(nil))
)

// opTable maps operation names to callables bound to the worker's one
// controller instance. Built once at startup by introspecting the instance.
type opTable struct {
	ctl probe.Controller
	ops map[string]reflect.Value
}

func newOpTable(ctl probe.Controller) *opTable {
	v := reflect.ValueOf(ctl)
	t := v.Type()
	ops := make(map[string]reflect.Value, t.NumMethod())
	for i := 0; i < t.NumMethod(); i++ {
		fn := v.Method(i)
		ft := fn.Type()
		// Every forwardable operation returns its value (if any) plus an
		// error.
		if ft.NumOut() < 1 || ft.NumOut() > 2 || ft.Out(ft.NumOut()-1) != errorType {
			continue
		}
		ops[t.Method(i).Name] = fn
	}
	return &opTable{ctl: ctl, ops: ops}
}

// invoke executes one envelope. All failure modes, including panics inside
// the driver, come back as ErrorRecords.
func (t *opTable) invoke(env *CallEnvelope) (res ResultEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			res = ResultEnvelope{Err: &ErrorRecord{
				Kind:        errKindPanic,
				Code:        probe.CodeInternalError,
				Message:     fmt.Sprint(r),
				RemoteTrace: string(debug.Stack()),
			}}
		}
	}()

	fn, ok := t.ops[env.Op]
	if !ok {
		// The proxy validates names before sending, so reaching this is a
		// dispatch bug; report it rather than die.
		return failure(probe.Errorf(probe.CodeInvalidOperation, "unknown operation %q", env.Op))
	}

	ft := fn.Type()
	args := env.Args
	if len(env.Opts) > 0 {
		if ft.NumIn() == 0 || ft.In(ft.NumIn()-1) != optsType || len(args) != ft.NumIn()-1 {
			return failure(probe.Errorf(probe.CodeInvalidParameter, "operation %q does not accept named options", env.Op))
		}
		args = append(append([]any{}, args...), env.Opts)
	}
	if len(args) != ft.NumIn() {
		return failure(probe.Errorf(probe.CodeInvalidParameter, "operation %q takes %d arguments, got %d", env.Op, ft.NumIn(), len(args)))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		v, err := convertArg(arg, ft.In(i))
		if err != nil {
			return failure(probe.Errorf(probe.CodeInvalidParameter, "operation %q argument %d: %s", env.Op, i, err))
		}
		in[i] = v
	}

	out := fn.Call(in)
	if errv := out[len(out)-1]; !errv.IsNil() {
		return ResultEnvelope{Err: newErrorRecord(errv.Interface().(error))}
	}

	var value any
	if len(out) == 2 {
		value = out[0].Interface()
		// A live session handle cannot cross the boundary by identity;
		// substitute no-value before transmission.
		if _, isSession := value.(probe.Controller); isSession {
			value = nil
		}
	}
	return ResultEnvelope{Value: value}
}

func failure(err *probe.Error) ResultEnvelope {
	return ResultEnvelope{Err: &ErrorRecord{
		Kind:        errKindProbe,
		Code:        err.Code,
		Message:     err.Message,
		RemoteTrace: string(debug.Stack()),
	}}
}

func newErrorRecord(err error) *ErrorRecord {
	rec := &ErrorRecord{RemoteTrace: string(debug.Stack())}
	var pe *probe.Error
	if errors.As(err, &pe) {
		rec.Kind = errKindProbe
		rec.Code = pe.Code
		rec.Message = pe.Message
	} else {
		rec.Kind = errKindInternal
		rec.Code = probe.CodeOf(err)
		rec.Message = err.Error()
	}
	return rec
}

func convertArg(arg any, want reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(want), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(want) {
		return v, nil
	}
	if v.Type().ConvertibleTo(want) {
		return v.Convert(want), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, want)
}
