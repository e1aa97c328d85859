package files

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when a named file does not exist or is not a
	// regular file.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that do not reduce to a plain
	// basename inside the store.
	ErrInvalidName = errors.New("invalid file name")

	// ErrNoJournal is returned when transfer history is requested but no
	// journal is configured.
	ErrNoJournal = errors.New("transfer journal disabled")
)

// File represents a stored file
type File struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Op is the kind of transfer recorded in the journal
type Op string

const (
	OpUpload   Op = "upload"
	OpDownload Op = "download"
	OpDelete   Op = "delete"
)

// Transfer is one journal entry
type Transfer struct {
	ID         string        `json:"id"`
	Op         Op            `json:"op"`
	FileName   string        `json:"file_name"`
	Size       int64         `json:"size"`
	SHA256     string        `json:"sha256,omitempty"`
	OK         bool          `json:"ok"`
	Error      string        `json:"error,omitempty"`
	RemoteAddr string        `json:"remote_addr,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// FileStorage defines the flat-directory store
type FileStorage interface {
	// Resolve maps a requested name to its path inside the store
	Resolve(name string) (string, error)

	// List returns the regular files in the store
	List() ([]File, error)

	// Create opens name for writing, truncating any existing file
	Create(name string) (io.WriteCloser, error)

	// ReadAll returns the whole content of name
	ReadAll(name string) ([]byte, error)

	// Delete removes name and reports whether it existed
	Delete(name string) (bool, error)
}

// TransferJournal defines the interface for transfer history persistence
type TransferJournal interface {
	Record(ctx context.Context, t *Transfer) error
	Recent(ctx context.Context, limit int) ([]*Transfer, error)
}

type remoteAddrKey struct{}

// WithRemoteAddr attaches the peer address recorded in journal entries.
func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

func remoteAddr(ctx context.Context) string {
	addr, _ := ctx.Value(remoteAddrKey{}).(string)
	return addr
}
