package multi

import (
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/probemux/probemux/probe"
)

// The test binary doubles as the worker image for the exec start strategy.
func TestMain(m *testing.M) {
	MaybeRunWorker()
	os.Exit(m.Run())
}

func newStubProxy(t *testing.T, libraryPath string, opts ...Option) *Proxy {
	t.Helper()
	p, err := New(Config{Family: "stub", LibraryPath: libraryPath}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Terminate() })
	return p
}

func TestReadWriteTerminate(t *testing.T) {
	t.Parallel()

	p := newStubProxy(t, "")
	require.NoError(t, p.Open())

	v, err := p.ReadU32(0x0)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	require.NoError(t, p.WriteU32(0x0, 0xDEADBEEF, false))

	// Void operations produce no value through the dynamic path either.
	res, err := p.Invoke("WriteMemory", uint32(0x1000), []byte{1, 2, 3}, false)
	require.NoError(t, err)
	assert.Nil(t, res)

	require.NoError(t, p.Terminate())
	assert.False(t, p.IsAlive())

	_, err = p.ReadU32(0x0)
	assert.ErrorIs(t, err, ErrUnavailable)

	// Second terminate is a no-op.
	require.NoError(t, p.Terminate())
}

func TestUnknownOperation(t *testing.T) {
	t.Parallel()

	p := newStubProxy(t, "")

	_, err := p.Invoke("FlashUnicorn")
	var unknownOp *UnknownOperationError
	require.ErrorAs(t, err, &unknownOp)
	assert.Equal(t, "FlashUnicorn", unknownOp.Op)

	// The channel saw no traffic for the bad name, so the next call still
	// lines up with its own response.
	v, err := p.ReadU32(0x20)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)
}

func TestRemoteErrorPropagation(t *testing.T) {
	t.Parallel()

	p := newStubProxy(t, "failrecover")

	err := p.Recover()
	require.Error(t, err)
	var probeErr *probe.Error
	require.ErrorAs(t, err, &probeErr)
	assert.Equal(t, probe.CodeCannotConnect, probeErr.Code)
	assert.Equal(t, "emulator unplugged", probeErr.Message)
}

func TestWorkerSurvivesPanic(t *testing.T) {
	t.Parallel()

	p := newStubProxy(t, "panicstep")

	err := p.Step()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stepped into the void")

	// The loop caught the panic; the worker keeps serving.
	v, err := p.ReadU32(0x0)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)
}

func TestCallsAreFIFO(t *testing.T) {
	t.Parallel()

	p := newStubProxy(t, "")
	for i := uint32(1); i <= 50; i++ {
		v, err := p.ReadConnectedEmuSNR()
		require.NoError(t, err)
		require.Equal(t, i, v)
	}
}

func TestConcurrentCallersGetMatchingResponses(t *testing.T) {
	t.Parallel()

	p := newStubProxy(t, "")

	const callsPerCaller = 50
	results := make([][]uint32, 2)
	var wg sync.WaitGroup
	for caller := 0; caller < 2; caller++ {
		caller := caller
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < callsPerCaller; i++ {
				v, err := p.ReadConnectedEmuSNR()
				assert.NoError(t, err)
				results[caller] = append(results[caller], v)
			}
		}()
	}
	wg.Wait()

	// Each caller saw strictly increasing counts: no caller ever received
	// a response belonging to the other's request.
	var all []uint32
	for _, seq := range results {
		require.True(t, sort.SliceIsSorted(seq, func(i, j int) bool { return seq[i] < seq[j] }))
		all = append(all, seq...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i, v := range all {
		require.Equal(t, uint32(i+1), v)
	}
}

func TestWorkersRunInParallel(t *testing.T) {
	t.Parallel()

	const naptime = 300 * time.Millisecond
	first := newStubProxy(t, "sleep="+naptime.String())
	second := newStubProxy(t, "sleep="+naptime.String())

	start := time.Now()
	var group errgroup.Group
	group.Go(first.ConnectToDevice)
	group.Go(second.ConnectToDevice)
	require.NoError(t, group.Wait())

	elapsed := time.Since(start)
	assert.Less(t, elapsed, 2*naptime, "two workers should sleep concurrently, not back to back")
}

func TestWorkerDeathIsTransportError(t *testing.T) {
	t.Parallel()

	p := newStubProxy(t, "")

	// Kill the worker out from under the proxy, as an operator would.
	p.handle.stop()
	time.Sleep(100 * time.Millisecond)

	_, err := p.ReadU32(0x0)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)

	// Liveness tracks Terminate, not worker health.
	assert.True(t, p.IsAlive())
	require.NoError(t, p.Terminate())
	assert.False(t, p.IsAlive())
}

func TestWithSessionReleasesOnError(t *testing.T) {
	t.Parallel()

	p := newStubProxy(t, "")

	boom := errors.New("boom")
	err := p.WithSession(func(ctl probe.Controller) error {
		open, err := ctl.IsOpen()
		require.NoError(t, err)
		assert.True(t, open)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	open, err := p.IsOpen()
	require.NoError(t, err)
	assert.False(t, open, "session must be released on the error path")
}

func TestLockFactoryIsLazy(t *testing.T) {
	t.Parallel()

	var built int
	p := newStubProxy(t, "", WithLockFactory(func() sync.Locker {
		built++
		return &sync.Mutex{}
	}))

	assert.Equal(t, 0, built, "guard must not be built before the first call")

	_, err := p.ReadU32(0x0)
	require.NoError(t, err)
	_, err = p.ReadU32(0x0)
	require.NoError(t, err)
	assert.Equal(t, 1, built)
}

func TestQSPIInitNamedOptions(t *testing.T) {
	t.Parallel()

	p := newStubProxy(t, "")

	require.NoError(t, p.QSPIInit(map[string]any{"retain_ram": true}))

	_, err := p.InvokeOpts("QSPIInit", map[string]any{"read_mode": "quad"})
	require.NoError(t, err)

	// Named options on an operation without an option map are rejected
	// remotely with a parameter error.
	_, err = p.InvokeOpts("Halt", map[string]any{"force": true})
	var probeErr *probe.Error
	require.ErrorAs(t, err, &probeErr)
	assert.Equal(t, probe.CodeInvalidParameter, probeErr.Code)
}

// The in-process tests below share the process-wide instance slot, so they
// do not run in parallel.

func TestInProcessRoundTrip(t *testing.T) {
	p, err := New(Config{Family: "stub"}, WithStartStrategy(InProcessStart))
	require.NoError(t, err)

	require.NoError(t, p.Open())
	v, err := p.ReadU32(0x0)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	require.NoError(t, p.Terminate())
	assert.False(t, probe.Instantiated(), "terminate must release the in-process instance slot")
}

func TestInProcessRefusedWhileInstantiated(t *testing.T) {
	ctl, err := probe.New(probe.Config{Family: "stub"})
	require.NoError(t, err)
	defer ctl.Close()

	_, err = New(Config{Family: "stub"}, WithStartStrategy(InProcessStart))
	assert.ErrorIs(t, err, ErrAlreadyInstantiated)
}
