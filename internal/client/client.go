// Package client speaks the file-transfer wire protocol over one persistent
// TCP connection.
package client

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pavel-fokin/filexfer/internal/protocol"
)

const defaultTimeout = 30 * time.Second

// ResponseError is an ERROR response returned by the server.
type ResponseError struct {
	Message string
}

func (e *ResponseError) Error() string {
	return e.Message
}

// Conn is a client connection. Commands are issued one at a time; a Conn
// is not safe for concurrent use.
type Conn struct {
	conn    net.Conn
	framer  *protocol.Framer
	timeout time.Duration
}

// Dial connects to a server. timeout bounds every single read and write;
// zero selects a default of 30 seconds.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Conn, error) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	c := &Conn{conn: conn, timeout: timeout}
	c.framer = protocol.NewFramer(readerFunc(c.read))
	return c, nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// List returns the names of the files on the server.
func (c *Conn) List() ([]string, error) {
	resp, err := c.Do([]byte("LIST"))
	if err != nil {
		return nil, err
	}

	items, ok := resp.Data.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected list payload %T", resp.Data)
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected list entry %T", item)
		}
		names = append(names, name)
	}
	return names, nil
}

// Upload streams r to the server as name. The content is base64 encoded
// on the fly after the server answers READY.
func (c *Conn) Upload(name string, r io.Reader) (string, error) {
	if err := c.begin(protocol.Request{Command: string(protocol.VerbUpload), FileName: name}); err != nil {
		return "", err
	}

	bw := bufio.NewWriterSize(writerFunc(c.write), 64*1024)
	enc := base64.NewEncoder(base64.StdEncoding, bw)
	if _, err := io.Copy(enc, r); err != nil {
		return "", fmt.Errorf("failed to stream upload: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to stream upload: %w", err)
	}
	if _, err := bw.Write(protocol.Delimiter); err != nil {
		return "", fmt.Errorf("failed to stream upload: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("failed to stream upload: %w", err)
	}

	return c.message()
}

// UploadInline sends the whole content inside the UPLOAD request and
// terminates the raw stream right after READY.
func (c *Conn) UploadInline(name string, data []byte) (string, error) {
	req := protocol.Request{
		Command:     string(protocol.VerbUpload),
		FileName:    name,
		FileContent: base64.StdEncoding.EncodeToString(data),
	}
	if err := c.begin(req); err != nil {
		return "", err
	}
	if _, err := c.write(protocol.Delimiter); err != nil {
		return "", err
	}

	return c.message()
}

// Download returns the content of name.
func (c *Conn) Download(name string) ([]byte, error) {
	resp, err := c.request(protocol.Request{Command: string(protocol.VerbDownload), FileName: name})
	if err != nil {
		return nil, err
	}
	if resp.FileContent == nil {
		return nil, errors.New("response has no file content")
	}

	data, err := base64.StdEncoding.DecodeString(*resp.FileContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}
	return data, nil
}

// Delete removes name from the server.
func (c *Conn) Delete(name string) (string, error) {
	if _, err := c.send(protocol.Request{Command: string(protocol.VerbDelete), FileName: name}); err != nil {
		return "", err
	}
	return c.message()
}

// Do sends one raw message and returns the decoded response. An ERROR
// response is returned together with a *ResponseError.
func (c *Conn) Do(msg []byte) (protocol.Response, error) {
	frame := append(append([]byte{}, msg...), protocol.Delimiter...)
	if _, err := c.write(frame); err != nil {
		return protocol.Response{}, err
	}
	return c.response()
}

func (c *Conn) request(req protocol.Request) (protocol.Response, error) {
	if _, err := c.send(req); err != nil {
		return protocol.Response{}, err
	}
	return c.response()
}

func (c *Conn) send(req protocol.Request) (int, error) {
	frame, err := protocol.EncodeRequest(req)
	if err != nil {
		return 0, err
	}
	return c.write(frame)
}

// begin sends an UPLOAD header and waits for READY.
func (c *Conn) begin(req protocol.Request) error {
	resp, err := c.request(req)
	if err != nil {
		return err
	}
	if resp.Status != protocol.StatusReady {
		return fmt.Errorf("expected %s, got %s", protocol.StatusReady, resp.Status)
	}
	return nil
}

func (c *Conn) message() (string, error) {
	resp, err := c.response()
	if err != nil {
		return "", err
	}
	msg, _ := resp.Data.(string)
	return msg, nil
}

func (c *Conn) response() (protocol.Response, error) {
	msg, err := c.framer.Next()
	if err != nil {
		return protocol.Response{}, fmt.Errorf("failed to read response: %w", err)
	}

	resp, err := protocol.DecodeResponse(msg)
	if err != nil {
		return protocol.Response{}, err
	}
	if resp.Status == protocol.StatusError {
		return resp, &ResponseError{Message: fmt.Sprint(resp.Data)}
	}
	return resp, nil
}

func (c *Conn) read(p []byte) (int, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.conn.Read(p)
}

func (c *Conn) write(p []byte) (int, error) {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	n, err := c.conn.Write(p)
	if err != nil {
		return n, fmt.Errorf("failed to send: %w", err)
	}
	return n, nil
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
