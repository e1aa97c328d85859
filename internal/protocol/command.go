package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Verb identifies a client command.
type Verb string

const (
	VerbList     Verb = "list"
	VerbUpload   Verb = "upload"
	VerbDownload Verb = "download"
	VerbDelete   Verb = "delete"
)

// ErrUnknownCommand is returned for messages that do not name a supported verb.
var ErrUnknownCommand = errors.New("unknown command")

// ParseError reports a recognised command with a missing or malformed field.
type ParseError struct {
	Verb  Verb
	Field string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: missing %s", e.Verb, e.Field)
}

// Command is one decoded client request.
type Command struct {
	Verb     Verb
	FileName string
	// Content is the optional first chunk of base64 data sent inline with UPLOAD.
	Content string
}

// Request is the JSON form of a command on the wire.
type Request struct {
	Command     string `json:"command"`
	FileName    string `json:"file_name,omitempty"`
	FileContent string `json:"file_content,omitempty"`
}

// ParseCommand decodes one framed message.
//
// A message that is not a JSON object is treated as a bare command word;
// only LIST is accepted in that form.
func ParseCommand(msg []byte) (Command, error) {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		if strings.EqualFold(strings.TrimSpace(string(msg)), string(VerbList)) {
			return Command{Verb: VerbList}, nil
		}
		return Command{}, ErrUnknownCommand
	}

	verb := Verb(strings.ToLower(strings.TrimSpace(req.Command)))
	switch verb {
	case VerbList:
		return Command{Verb: verb}, nil
	case VerbUpload, VerbDownload, VerbDelete:
		if req.FileName == "" {
			return Command{}, &ParseError{Verb: verb, Field: "file_name"}
		}
		return Command{Verb: verb, FileName: req.FileName, Content: req.FileContent}, nil
	default:
		return Command{}, ErrUnknownCommand
	}
}

// EncodeRequest returns the framed wire form of req.
func EncodeRequest(req Request) ([]byte, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return append(b, Delimiter...), nil
}
