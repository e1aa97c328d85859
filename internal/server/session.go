package server

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net"
	"time"

	"github.com/pavel-fokin/filexfer/internal/files"
	"github.com/pavel-fokin/filexfer/internal/protocol"
)

const (
	msgUnknownCommand = "Unknown command"
	msgFileNotFound   = "File not found"
)

type state int

const (
	stateAwaitingCommand state = iota
	stateStreamingUpload
)

func (s state) String() string {
	switch s {
	case stateAwaitingCommand:
		return "awaiting_command"
	case stateStreamingUpload:
		return "streaming_upload"
	default:
		return "unknown"
	}
}

// handler executes one command. A non-nil error means the connection is
// unusable and must be closed without a response.
type handler func(*session, protocol.Command) (protocol.Response, error)

var commandHandlers = map[protocol.Verb]handler{
	protocol.VerbList:     (*session).list,
	protocol.VerbUpload:   (*session).upload,
	protocol.VerbDownload: (*session).download,
	protocol.VerbDelete:   (*session).delete,
}

// session is the per-connection command state machine. It is owned by a
// single worker and shares nothing with other sessions except the store.
type session struct {
	ctx    context.Context
	id     string
	conn   net.Conn
	framer *protocol.Framer
	state  state
	idle   time.Duration
	files  *files.Service
	stats  *Stats
	logger *slog.Logger

	// readErr is the socket error that ended an upload stream, if any.
	readErr error
}

func newSession(ctx context.Context, id string, conn net.Conn, srv *Server) *session {
	addr := conn.RemoteAddr().String()
	s := &session{
		ctx:    files.WithRemoteAddr(ctx, addr),
		id:     id,
		conn:   conn,
		state:  stateAwaitingCommand,
		idle:   srv.cfg.IdleTimeout,
		files:  srv.files,
		stats:  srv.stats,
		logger: srv.logger.With("conn_id", id, "remote_addr", addr),
	}
	s.framer = protocol.NewFramer(&idleReader{
		conn:    conn,
		timeout: srv.cfg.IdleTimeout,
		state:   &s.state,
		stats:   srv.stats,
	})
	return s
}

func (s *session) serve() {
	defer s.conn.Close()
	s.logger.Info("Connection opened")

	for {
		// A whole command must arrive within one idle timeout.
		if err := s.conn.SetReadDeadline(time.Now().Add(s.idle)); err != nil {
			s.logClose(err)
			return
		}
		msg, err := s.framer.Next()
		if err != nil {
			s.logClose(err)
			return
		}

		resp, err := s.dispatch(msg)
		if err != nil {
			s.logClose(err)
			return
		}
		if err := s.send(resp); err != nil {
			s.logClose(err)
			return
		}
	}
}

func (s *session) dispatch(msg []byte) (protocol.Response, error) {
	s.stats.commands.Add(1)

	cmd, err := protocol.ParseCommand(msg)
	if err != nil {
		s.stats.errors.Add(1)
		s.logger.Warn("Rejected message", "error", err)
		if errors.Is(err, protocol.ErrUnknownCommand) {
			return protocol.Error(msgUnknownCommand), nil
		}
		return protocol.Error(err.Error()), nil
	}

	h, ok := commandHandlers[cmd.Verb]
	if !ok {
		s.stats.errors.Add(1)
		return protocol.Error(msgUnknownCommand), nil
	}

	s.logger.Debug("Dispatching command", "command", cmd.Verb, "file_name", cmd.FileName)
	resp, err := h(s, cmd)
	if err == nil && resp.Status == protocol.StatusError {
		s.stats.errors.Add(1)
	}
	return resp, err
}

func (s *session) list(protocol.Command) (protocol.Response, error) {
	names, err := s.files.List()
	if err != nil {
		return protocol.Error(err.Error()), nil
	}
	return protocol.OK(names), nil
}

// upload acknowledges with READY, then decodes the raw stream that follows
// into the store. On a decode or store failure the rest of the stream is
// drained so the connection can accept the next command.
func (s *session) upload(cmd protocol.Command) (protocol.Response, error) {
	if err := s.send(protocol.Ready()); err != nil {
		return protocol.Response{}, err
	}

	s.state = stateStreamingUpload
	defer func() { s.state = stateAwaitingCommand }()

	s.readErr = nil
	n, err := s.files.Upload(s.ctx, cmd.FileName, cmd.Content, s.stream())
	if s.readErr != nil {
		return protocol.Response{}, s.readErr
	}
	if derr := s.framer.Drain(); derr != nil {
		return protocol.Response{}, derr
	}
	if err != nil {
		return protocol.Error(errorMessage(err)), nil
	}

	s.stats.uploads.Add(1)
	s.stats.bytesUploaded.Add(n)
	return protocol.OK("Uploaded to " + cmd.FileName), nil
}

// stream wraps the framer's raw stream and remembers socket errors so they
// can be told apart from decode and store errors.
func (s *session) stream() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for chunk, err := range s.framer.Stream() {
			if err != nil {
				s.readErr = err
			}
			if !yield(chunk, err) {
				return
			}
		}
	}
}

func (s *session) download(cmd protocol.Command) (protocol.Response, error) {
	content, err := s.files.Download(s.ctx, cmd.FileName)
	if err != nil {
		return protocol.Error(errorMessage(err)), nil
	}

	s.stats.downloads.Add(1)
	return protocol.Content(content), nil
}

func (s *session) delete(cmd protocol.Command) (protocol.Response, error) {
	if err := s.files.Delete(s.ctx, cmd.FileName); err != nil {
		return protocol.Error(errorMessage(err)), nil
	}

	s.stats.deletes.Add(1)
	return protocol.OK("Deleted " + cmd.FileName), nil
}

func (s *session) send(resp protocol.Response) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.idle)); err != nil {
		return err
	}
	w := &countingWriter{w: s.conn, stats: s.stats}
	return protocol.WriteResponse(w, resp)
}

func (s *session) logClose(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Info("Connection closed by peer")
	case errors.As(err, &netErr) && netErr.Timeout():
		s.logger.Warn("Connection idle timeout", "state", s.state)
	default:
		s.logger.Error("Connection failed", "error", err, "state", s.state)
	}
}

func errorMessage(err error) string {
	if errors.Is(err, files.ErrNotFound) {
		return msgFileNotFound
	}
	return err.Error()
}

// idleReader restarts the idle timeout on every read of an upload stream.
// Between commands the deadline is set once per frame by serve.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
	state   *state
	stats   *Stats
}

func (r *idleReader) Read(p []byte) (int, error) {
	if *r.state == stateStreamingUpload {
		if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
			return 0, err
		}
	}
	n, err := r.conn.Read(p)
	r.stats.bytesIn.Add(int64(n))
	return n, err
}

type countingWriter struct {
	w     io.Writer
	stats *Stats
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.stats.bytesOut.Add(int64(n))
	return n, err
}
