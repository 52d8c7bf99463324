package multi

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probemux/probemux/probe"
)

func TestEnvelopeKeepsArgumentTypes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := newDuplex(&buf, &buf)

	sent := CallEnvelope{
		Op:   "WriteMemory",
		Args: []any{uint32(0x2000), []byte{0xDE, 0xAD}, true},
		Opts: map[string]any{"verify": true},
	}
	require.NoError(t, d.send(&sent))

	var got CallEnvelope
	require.NoError(t, d.recv(&got))
	assert.Equal(t, sent, got)
	// The codec must hand back the exact value kinds the dispatcher will
	// convert from; a lossy codec would turn these into floats or strings.
	assert.IsType(t, uint32(0), got.Args[0])
	assert.IsType(t, []byte(nil), got.Args[1])
}

func TestErrorRecordReify(t *testing.T) {
	t.Parallel()

	rec := newErrorRecord(probe.Errorf(probe.CodeVerifyError, "mismatch at 0x1000"))
	assert.Equal(t, errKindProbe, rec.Kind)

	err := rec.reify()
	var probeErr *probe.Error
	require.ErrorAs(t, err, &probeErr)
	assert.Equal(t, probe.CodeVerifyError, probeErr.Code)
	assert.Equal(t, "mismatch at 0x1000", probeErr.Message)

	rec = newErrorRecord(assert.AnError)
	assert.Equal(t, errKindInternal, rec.Kind)
	assert.Contains(t, rec.reify().Error(), assert.AnError.Error())
}
