package agent

import (
	"sync"

	"github.com/probemux/probemux/probe"
)

// simController is a simulated probe driver for agent tests. Its RTT up
// channel is seeded with two chunks, and everything written to the down
// channel comes back as an "echo:" chunk.
type simController struct {
	probe.Controller

	mu   sync.Mutex
	open bool
	rtt  [][]byte
}

func newSimController(cfg probe.Config) (probe.Controller, error) {
	return &simController{
		rtt: [][]byte{[]byte("rtt-0"), []byte("rtt-1")},
	}, nil
}

func init() {
	probe.Register("sim", newSimController)
}

func (s *simController) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	return nil
}

func (s *simController) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

func (s *simController) IsOpen() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open, nil
}

func (s *simController) ReadU32(addr uint32) (uint32, error) {
	return 42, nil
}

func (s *simController) RTTStart() error { return nil }
func (s *simController) RTTStop() error  { return nil }

func (s *simController) RTTRead(channel uint32, length uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rtt) == 0 {
		return nil, nil
	}
	chunk := s.rtt[0]
	s.rtt = s.rtt[1:]
	return chunk, nil
}

func (s *simController) RTTWrite(channel uint32, data []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rtt = append(s.rtt, append([]byte("echo:"), data...))
	return uint32(len(data)), nil
}
