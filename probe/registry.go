package probe

import (
	"sync"
	"sync/atomic"
)

// Opener constructs a driver Controller for one device family.
type Opener func(cfg Config) (Controller, error)

var (
	driversMu sync.RWMutex
	drivers   = map[string]Opener{}

	// instantiated is the process-wide single-instance flag. The native
	// library keeps global state, so only one live Controller may exist in
	// a process at a time.
	instantiated atomic.Bool
)

// Register makes a driver available under the given device family name.
// Drivers typically call this from an init function.
func Register(family string, open Opener) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[family] = open
}

// Instantiated reports whether a live Controller currently exists in this
// process. Process supervisors consult this before choosing a worker start
// strategy that would share this process's state.
func Instantiated() bool {
	return instantiated.Load()
}

// New constructs the Controller registered for cfg.Family.
//
// Construction claims the process-wide instance slot; it is released again
// when the Controller's Close is called. A second New before that Close
// fails with CodeAlreadyInstantiated.
func New(cfg Config) (Controller, error) {
	driversMu.RLock()
	open := drivers[cfg.Family]
	driversMu.RUnlock()
	if open == nil {
		return nil, Errorf(CodeUnknownDevice, "no driver registered for device family %q", cfg.Family)
	}

	if !instantiated.CompareAndSwap(false, true) {
		return nil, Errorf(CodeAlreadyInstantiated, "a probe controller is already live in this process")
	}

	ctl, err := open(cfg)
	if err != nil {
		instantiated.Store(false)
		return nil, err
	}
	return &tracked{Controller: ctl}, nil
}

// tracked releases the process-wide instance slot when the controller is
// closed.
type tracked struct {
	Controller
	released atomic.Bool
}

func (t *tracked) Close() error {
	err := t.Controller.Close()
	if t.released.CompareAndSwap(false, true) {
		instantiated.Store(false)
	}
	return err
}
