package files

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/pavel-fokin/filexfer/internal/b64stream"
)

// Service provides the file operations behind each protocol command
type Service struct {
	storage FileStorage
	journal TransferJournal
}

// NewService creates a new file service. journal may be nil.
func NewService(storage FileStorage, journal TransferJournal) *Service {
	return &Service{
		storage: storage,
		journal: journal,
	}
}

// List returns the names of the stored files
func (s *Service) List() ([]string, error) {
	files, err := s.storage.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	return names, nil
}

// Upload decodes base64 text into name, overwriting any existing file.
// inline is decoded first, followed by every chunk of stream.
//
// A decode failure stops writing; bytes decoded before the failure remain
// in the file.
func (s *Service) Upload(ctx context.Context, name, inline string, stream iter.Seq2[[]byte, error]) (int64, error) {
	t := s.begin(ctx, OpUpload, name)

	sink, err := s.storage.Create(name)
	if err != nil {
		s.finish(ctx, t, err)
		return 0, err
	}

	digest := sha256.New()
	dec := b64stream.NewDecoder(io.MultiWriter(sink, digest))

	err = decodeInto(dec, inline, stream)
	if cerr := sink.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close file: %w", cerr)
	}

	t.Size = dec.Written()
	if err == nil {
		t.SHA256 = hexSum(digest)
	}
	s.finish(ctx, t, err)

	return dec.Written(), err
}

func decodeInto(dec *b64stream.Decoder, inline string, stream iter.Seq2[[]byte, error]) error {
	if inline != "" {
		if _, err := dec.WriteString(inline); err != nil {
			return err
		}
	}
	for chunk, err := range stream {
		if err != nil {
			return err
		}
		if _, err := dec.Write(chunk); err != nil {
			return err
		}
	}
	return dec.Close()
}

// Download returns the base64 encoding of the whole file
func (s *Service) Download(ctx context.Context, name string) (string, error) {
	t := s.begin(ctx, OpDownload, name)

	data, err := s.storage.ReadAll(name)
	if err != nil {
		s.finish(ctx, t, err)
		return "", err
	}

	sum := sha256.Sum256(data)
	t.Size = int64(len(data))
	t.SHA256 = hex.EncodeToString(sum[:])
	s.finish(ctx, t, nil)

	return base64.StdEncoding.EncodeToString(data), nil
}

// Delete removes a file by name
func (s *Service) Delete(ctx context.Context, name string) error {
	t := s.begin(ctx, OpDelete, name)

	existed, err := s.storage.Delete(name)
	if err == nil && !existed {
		err = ErrNotFound
	}
	s.finish(ctx, t, err)

	return err
}

// Transfers returns the most recent journal entries
func (s *Service) Transfers(ctx context.Context, limit int) ([]*Transfer, error) {
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	return s.journal.Recent(ctx, limit)
}

func (s *Service) begin(ctx context.Context, op Op, name string) *Transfer {
	return &Transfer{
		ID:         uuid.NewString(),
		Op:         op,
		FileName:   name,
		RemoteAddr: remoteAddr(ctx),
		StartedAt:  time.Now(),
	}
}

// finish logs the outcome and stores it in the journal. Journal failures
// are logged and never fail the command.
func (s *Service) finish(ctx context.Context, t *Transfer, err error) {
	t.Duration = time.Since(t.StartedAt)
	t.OK = err == nil
	if err != nil {
		t.Error = err.Error()
		slog.Warn("Transfer failed", "op", t.Op, "file_name", t.FileName, "error", err)
	} else {
		slog.Info("Transfer finished",
			"op", t.Op,
			"file_name", t.FileName,
			"size", humanize.Bytes(uint64(t.Size)),
			"duration_ms", t.Duration.Milliseconds(),
		)
	}

	if s.journal == nil {
		return
	}
	if err := s.journal.Record(ctx, t); err != nil {
		slog.Error("Failed to record transfer", "error", err, "transfer_id", t.ID)
	}
}

func hexSum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
