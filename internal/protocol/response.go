package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// Status is the outcome carried by every response.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
	StatusReady Status = "READY"
)

// Response is the JSON object sent back for each command.
type Response struct {
	Status      Status  `json:"status"`
	Data        any     `json:"data,omitempty"`
	FileContent *string `json:"file_content,omitempty"`
}

func OK(data any) Response {
	return Response{Status: StatusOK, Data: data}
}

func Ready() Response {
	return Response{Status: StatusReady}
}

func Error(msg string) Response {
	return Response{Status: StatusError, Data: msg}
}

// Content carries a base64-encoded file body.
func Content(b64 string) Response {
	return Response{Status: StatusOK, FileContent: &b64}
}

// WriteResponse encodes resp, appends the delimiter and sends it with a
// single Write.
func WriteResponse(w io.Writer, resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	b = append(b, Delimiter...)
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}

// DecodeResponse parses one framed response message.
func DecodeResponse(msg []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(msg, &resp); err != nil {
		return Response{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp, nil
}
