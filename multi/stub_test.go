package multi

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/probemux/probemux/probe"
)

// stubController is a driver for tests. Behavior is steered through the
// LibraryPath config string so it survives the trip into a worker process:
// comma-separated directives "sleep=<dur>" (ConnectToDevice sleeps),
// "failrecover" (Recover fails), and "panicstep" (Step panics).
//
// Operations not implemented here panic if invoked; tests only reach the
// ones below.
type stubController struct {
	probe.Controller

	sleep       time.Duration
	failRecover bool
	panicStep   bool

	mu       sync.Mutex
	open     bool
	snrCalls uint32
	words    map[uint32]uint32
	qspiOpts map[string]any
}

func newStubController(cfg probe.Config) (probe.Controller, error) {
	s := &stubController{words: map[uint32]uint32{}}
	for _, directive := range strings.Split(cfg.LibraryPath, ",") {
		switch {
		case directive == "":
		case strings.HasPrefix(directive, "sleep="):
			d, err := time.ParseDuration(strings.TrimPrefix(directive, "sleep="))
			if err != nil {
				return nil, fmt.Errorf("bad sleep directive %q: %w", directive, err)
			}
			s.sleep = d
		case directive == "failrecover":
			s.failRecover = true
		case directive == "panicstep":
			s.panicStep = true
		default:
			return nil, fmt.Errorf("unknown stub directive %q", directive)
		}
	}
	return s, nil
}

func init() {
	probe.Register("stub", newStubController)
}

func (s *stubController) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

func (s *stubController) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *stubController) IsOpen() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open, nil
}

func (s *stubController) ConnectToDevice() error {
	time.Sleep(s.sleep)
	return nil
}

func (s *stubController) Recover() error {
	if s.failRecover {
		return probe.Errorf(probe.CodeCannotConnect, "emulator unplugged")
	}
	return nil
}

func (s *stubController) Step() error {
	if s.panicStep {
		panic("stepped into the void")
	}
	return nil
}

// ReadConnectedEmuSNR returns its own call count, for request/response
// matching tests.
func (s *stubController) ReadConnectedEmuSNR() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snrCalls++
	return s.snrCalls, nil
}

func (s *stubController) ReadU32(addr uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.words[addr]; ok {
		return v, nil
	}
	return 42, nil
}

func (s *stubController) WriteU32(addr uint32, value uint32, flash bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.words[addr] = value
	return nil
}

func (s *stubController) ReadMemory(addr uint32, length uint32) ([]byte, error) {
	data := make([]byte, length)
	for i := range data {
		data[i] = byte(addr + uint32(i))
	}
	return data, nil
}

func (s *stubController) WriteMemory(addr uint32, data []byte, flash bool) error {
	return nil
}

func (s *stubController) QSPIInit(opts map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qspiOpts = opts
	return nil
}
