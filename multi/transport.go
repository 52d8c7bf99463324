package multi

import (
	"encoding/gob"
	"io"
)

// duplex is one side of the worker channel pair: two independent
// unidirectional byte streams, each ordered and blocking. gob frames its own
// stream, so no additional length-prefix protocol is needed.
//
// Writes and reads are not internally locked; the serialization guard on the
// host side and the single-threaded worker loop guarantee one envelope in
// flight at a time.
type duplex struct {
	enc *gob.Encoder
	dec *gob.Decoder

	closers []io.Closer
}

func newDuplex(r io.Reader, w io.Writer, closers ...io.Closer) *duplex {
	return &duplex{
		enc:     gob.NewEncoder(w),
		dec:     gob.NewDecoder(r),
		closers: closers,
	}
}

func (d *duplex) send(v any) error {
	return d.enc.Encode(v)
}

func (d *duplex) recv(v any) error {
	return d.dec.Decode(v)
}

// close closes both stream directions. Safe to call more than once; pipe
// closers tolerate repeated closes.
func (d *duplex) close() {
	for _, c := range d.closers {
		c.Close()
	}
}
