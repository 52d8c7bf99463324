package multi

import (
	"fmt"
	"io"
	"os"
	"os/exec"
)

// StartStrategy controls how a Proxy brings up its worker.
//
// The preferred strategy starts a fresh process that inherits no live
// in-memory state from the host. The in-process strategy exists for
// environments where the current executable cannot be re-run; it shares the
// host's process-wide state, so construction refuses it while a live probe
// controller already exists in this process.
type StartStrategy interface {
	Name() string

	// SharesHostState reports whether the worker runs inside the host's
	// own process state.
	SharesHostState() bool

	start(logSink io.Writer) (*workerHandle, error)
}

// workerHandle is the lifecycle manager's grip on one running worker: its
// side of the channel pair, a stop signal, and a wait for process exit.
type workerHandle struct {
	d    *duplex
	stop func()
	wait func() error
}

// DefaultStartStrategy prefers the clean re-exec strategy and falls back to
// the in-process strategy only when the current executable cannot be
// resolved.
func DefaultStartStrategy() StartStrategy {
	if _, err := os.Executable(); err != nil {
		return InProcessStart
	}
	return ExecStart
}

// ExecStart re-runs the current executable in worker mode with the channel
// streams inherited as file descriptors. The worker process never outlives
// the host's interest in it: Terminate kills it, and it holds no resources
// the host waits on.
var ExecStart StartStrategy = execStrategy{}

type execStrategy struct{}

func (execStrategy) Name() string          { return "exec" }
func (execStrategy) SharesHostState() bool { return false }

func (execStrategy) start(io.Writer) (*workerHandle, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving current executable: %w", err)
	}

	callR, callW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating call pipe: %w", err)
	}
	resultR, resultW, err := os.Pipe()
	if err != nil {
		callR.Close()
		callW.Close()
		return nil, fmt.Errorf("creating result pipe: %w", err)
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), workerEnv+"=1")
	cmd.ExtraFiles = []*os.File{callR, resultW} // fds 3 and 4 in the child
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		callR.Close()
		callW.Close()
		resultR.Close()
		resultW.Close()
		return nil, fmt.Errorf("starting worker process: %w", err)
	}

	// The child holds its own copies now.
	callR.Close()
	resultW.Close()

	return &workerHandle{
		d:    newDuplex(resultR, callW, callW, resultR),
		stop: func() { _ = cmd.Process.Kill() },
		wait: func() error {
			// The worker is killed on shutdown, so a non-zero exit is
			// the normal case here.
			if err := cmd.Wait(); err != nil {
				if _, ok := err.(*exec.ExitError); !ok {
					return fmt.Errorf("waiting for worker: %w", err)
				}
			}
			return nil
		},
	}, nil
}

// InProcessStart hosts the worker loop on a goroutine over in-memory pipes.
// The full envelope protocol still applies, but the worker shares this
// process and its single live controller slot.
var InProcessStart StartStrategy = inprocStrategy{}

type inprocStrategy struct{}

func (inprocStrategy) Name() string          { return "inproc" }
func (inprocStrategy) SharesHostState() bool { return true }

func (inprocStrategy) start(logSink io.Writer) (*workerHandle, error) {
	callR, callW := io.Pipe()
	resultR, resultW := io.Pipe()

	workerD := newDuplex(callR, resultW, callR, resultW)
	done := make(chan error, 1)
	go func() {
		done <- runWorker(workerD, logSink)
		workerD.close()
	}()

	hostD := newDuplex(resultR, callW, callW, resultR)
	return &workerHandle{
		d:    hostD,
		stop: hostD.close,
		wait: func() error { return <-done },
	}, nil
}
