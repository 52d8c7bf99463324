package probe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := Errorf(CodeCannotConnect, "target not powered")
	assert.Equal(t, "probe: CANNOT_CONNECT: target not powered", err.Error())

	assert.Equal(t, "probe: VERIFY_ERROR", (&Error{Code: CodeVerifyError}).Error())
	assert.Equal(t, "ERRCODE(-999)", ErrCode(-999).String())
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CodeSuccess, CodeOf(nil))
	assert.Equal(t, CodeTimeout, CodeOf(Errorf(CodeTimeout, "no response")))

	wrapped := fmt.Errorf("connecting: %w", Errorf(CodeLowVoltage, "vdd too low"))
	assert.Equal(t, CodeLowVoltage, CodeOf(wrapped))

	assert.Equal(t, CodeInternalError, CodeOf(assert.AnError))
}

type fakeController struct {
	Controller
	closed bool
}

func (f *fakeController) Close() error {
	f.closed = true
	return nil
}

// Registry tests share the process-wide instance slot, so they stay serial.

func TestNewUnknownFamily(t *testing.T) {
	_, err := New(Config{Family: "no-such-family"})
	require.Error(t, err)
	assert.Equal(t, CodeUnknownDevice, CodeOf(err))
}

func TestNewEnforcesSingleInstance(t *testing.T) {
	fake := &fakeController{}
	Register("fake", func(cfg Config) (Controller, error) { return fake, nil })

	ctl, err := New(Config{Family: "fake"})
	require.NoError(t, err)
	assert.True(t, Instantiated())

	_, err = New(Config{Family: "fake"})
	require.Error(t, err)
	assert.Equal(t, CodeAlreadyInstantiated, CodeOf(err))

	require.NoError(t, ctl.Close())
	assert.True(t, fake.closed)
	assert.False(t, Instantiated())

	// The slot is free again.
	ctl, err = New(Config{Family: "fake"})
	require.NoError(t, err)
	require.NoError(t, ctl.Close())
}

func TestNewReleasesSlotOnDriverFailure(t *testing.T) {
	Register("broken", func(cfg Config) (Controller, error) {
		return nil, Errorf(CodeLibraryNotFound, "libnrfjprog not found")
	})

	_, err := New(Config{Family: "broken"})
	require.Error(t, err)
	assert.Equal(t, CodeLibraryNotFound, CodeOf(err))
	assert.False(t, Instantiated())
}
