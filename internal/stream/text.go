package stream

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// TextDecoder converts UTF-8 chunks to text, carrying an incomplete
// multi-byte sequence at the end of one chunk over to the next.
// Ill-formed bytes are replaced with U+FFFD.
type TextDecoder struct {
	t     transform.Transformer
	carry []byte
	dst   []byte
}

// NewTextDecoder returns a TextDecoder ready for the first chunk.
func NewTextDecoder() *TextDecoder {
	return &TextDecoder{
		t:   unicode.UTF8.NewDecoder(),
		dst: make([]byte, readBufferSize),
	}
}

// Decode returns the text that can be decoded so far.
func (d *TextDecoder) Decode(p []byte) string {
	return d.decode(p, false)
}

// Flush returns whatever is still carried over, as replacement characters if
// it never completed, and resets the decoder.
func (d *TextDecoder) Flush() string {
	s := d.decode(nil, true)
	d.t.Reset()
	return s
}

func (d *TextDecoder) decode(p []byte, atEOF bool) string {
	src := p
	if len(d.carry) > 0 {
		src = append(d.carry, p...)
		d.carry = nil
	}

	var out strings.Builder
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, atEOF)
		out.Write(d.dst[:nDst])
		src = src[nSrc:]
		switch {
		case errors.Is(err, transform.ErrShortDst):
			continue
		case errors.Is(err, transform.ErrShortSrc):
			d.carry = bytes.Clone(src)
		}
		return out.String()
	}
}
