package protocol

import (
	"bytes"
	"errors"
	"io"
	"iter"
)

// Delimiter terminates every message and every raw upload stream.
var Delimiter = []byte("\r\n\r\n")

const readSize = 4096

// Framer splits a byte stream into delimiter-terminated messages.
//
// Bytes received past a delimiter stay buffered for the next call, so a
// message may span any number of reads. There is no limit on message size
// other than available memory.
type Framer struct {
	r         io.Reader
	buf       []byte
	chunk     []byte
	readBuf   []byte
	eof       bool
	streaming bool
}

// NewFramer creates a framer reading from r.
func NewFramer(r io.Reader) *Framer {
	return &Framer{
		r:       r,
		readBuf: make([]byte, readSize),
	}
}

// Next returns the next complete message without its delimiter.
// It returns io.EOF once the peer has closed the stream; an unterminated
// trailing message is discarded. An unfinished upload stream is drained
// before the next message is read.
func (f *Framer) Next() ([]byte, error) {
	if err := f.Drain(); err != nil {
		return nil, err
	}

	for {
		if i := bytes.Index(f.buf, Delimiter); i >= 0 {
			msg := make([]byte, i)
			copy(msg, f.buf[:i])
			f.consume(i + len(Delimiter))
			return msg, nil
		}
		if err := f.fill(); err != nil {
			if errors.Is(err, io.EOF) {
				f.buf = f.buf[:0]
			}
			return nil, err
		}
	}
}

// Stream switches the framer into raw mode and yields the raw bytes that
// follow, up to the terminal delimiter or the end of the connection.
// A yielded chunk is only valid until the next iteration.
// Bytes after the terminal delimiter are kept for Next.
func (f *Framer) Stream() iter.Seq2[[]byte, error] {
	f.streaming = true
	return func(yield func([]byte, error) bool) {
		for f.streaming {
			chunk, err := f.nextChunk()
			if err != nil {
				yield(nil, err)
				return
			}
			if len(chunk) == 0 {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Drain discards the rest of an unfinished raw stream.
func (f *Framer) Drain() error {
	for f.streaming {
		if _, err := f.nextChunk(); err != nil {
			return err
		}
	}
	return nil
}

// Streaming reports whether a raw stream has been started and not yet
// terminated.
func (f *Framer) Streaming() bool {
	return f.streaming
}

func (f *Framer) nextChunk() ([]byte, error) {
	for {
		if i := bytes.Index(f.buf, Delimiter); i >= 0 {
			f.chunk = append(f.chunk[:0], f.buf[:i]...)
			f.consume(i + len(Delimiter))
			f.streaming = false
			return f.chunk, nil
		}

		// Peer closed: whatever is buffered is the tail of the stream.
		if f.eof {
			f.chunk = append(f.chunk[:0], f.buf...)
			f.buf = f.buf[:0]
			f.streaming = false
			return f.chunk, nil
		}

		// Hold back a possible delimiter prefix split across reads.
		if n := len(f.buf) - partialDelimiter(f.buf); n > 0 {
			f.chunk = append(f.chunk[:0], f.buf[:n]...)
			f.consume(n)
			return f.chunk, nil
		}

		if err := f.fill(); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	}
}

// fill performs one read from the underlying reader.
func (f *Framer) fill() error {
	if f.eof {
		return io.EOF
	}
	n, err := f.r.Read(f.readBuf)
	f.buf = append(f.buf, f.readBuf[:n]...)
	if err != nil {
		if errors.Is(err, io.EOF) {
			f.eof = true
			if n > 0 {
				return nil
			}
		}
		return err
	}
	return nil
}

func (f *Framer) consume(n int) {
	f.buf = append(f.buf[:0], f.buf[n:]...)
}

// partialDelimiter returns the length of the longest suffix of b that is a
// proper prefix of Delimiter.
func partialDelimiter(b []byte) int {
	for k := len(Delimiter) - 1; k > 0; k-- {
		if bytes.HasSuffix(b, Delimiter[:k]) {
			return k
		}
	}
	return 0
}
