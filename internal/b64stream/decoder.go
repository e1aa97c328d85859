// Package b64stream decodes base64 text that arrives in arbitrarily sized
// chunks, writing the decoded bytes to a sink as soon as whole 4-character
// groups are available.
package b64stream

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	errTrailingData = errors.New("data after padding")
	errTruncated    = errors.New("truncated final group")
	errClosed       = errors.New("decoder closed")
)

// DecodeError reports malformed base64 text. Offset counts text characters
// from the start of the stream, line breaks excluded.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("base64 decode error at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder is an io.WriteCloser that accepts base64 text and writes the
// decoded bytes to the underlying writer.
//
// At most three undecoded characters are carried between writes. Any that
// remain at Close mean the text was not padded, which is a DecodeError.
// Bytes already written to the sink are not retracted when a later group
// fails to decode.
type Decoder struct {
	w        io.Writer
	leftover []byte
	text     []byte
	out      []byte
	offset   int64
	written  int64
	padded   bool
	closed   bool
	err      error
}

// NewDecoder returns a decoder writing to w. The caller owns w.
func NewDecoder(w io.Writer) *Decoder {
	return &Decoder{
		w:        w,
		leftover: make([]byte, 0, 4),
	}
}

// Write consumes a chunk of base64 text. CR and LF are ignored.
func (d *Decoder) Write(p []byte) (int, error) {
	if d.closed {
		return 0, errClosed
	}
	if d.err != nil {
		return 0, d.err
	}

	d.text = append(d.text[:0], d.leftover...)
	for _, c := range p {
		if c == '\r' || c == '\n' {
			continue
		}
		d.text = append(d.text, c)
	}

	valid := len(d.text) / 4 * 4
	if valid > 0 {
		if err := d.decode(d.text[:valid]); err != nil {
			d.err = err
			return 0, err
		}
	}
	d.leftover = append(d.leftover[:0], d.text[valid:]...)

	return len(p), nil
}

// WriteString is Write for string chunks.
func (d *Decoder) WriteString(s string) (int, error) {
	return d.Write([]byte(s))
}

// Close finishes the stream. The text must end on a whole 4-character
// group, so any leftover characters are reported as a DecodeError.
func (d *Decoder) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.err != nil {
		return d.err
	}

	if len(d.leftover) > 0 {
		cause := errTruncated
		if d.padded {
			cause = errTrailingData
		}
		d.err = &DecodeError{Offset: d.offset, Err: cause}
		return d.err
	}
	return nil
}

// Written returns the number of decoded bytes written to the sink.
func (d *Decoder) Written() int64 {
	return d.written
}

func (d *Decoder) decode(text []byte) error {
	if d.padded {
		return &DecodeError{Offset: d.offset, Err: errTrailingData}
	}

	need := base64.StdEncoding.DecodedLen(len(text))
	if cap(d.out) < need {
		d.out = make([]byte, need)
	}
	n, err := base64.StdEncoding.Decode(d.out[:need], text)

	// Groups decoded before a corrupt one are still delivered.
	if n > 0 {
		if _, werr := d.w.Write(d.out[:n]); werr != nil {
			return fmt.Errorf("failed to write decoded data: %w", werr)
		}
		d.written += int64(n)
	}
	if err != nil {
		offset := d.offset
		var corrupt base64.CorruptInputError
		if errors.As(err, &corrupt) {
			offset += int64(corrupt)
		}
		return &DecodeError{Offset: offset, Err: err}
	}

	d.offset += int64(len(text))
	d.padded = text[len(text)-1] == '='

	return nil
}
