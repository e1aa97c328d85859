package worker

import (
	"fmt"
	"strings"
)

// Mode selects how strongly connection handlers are isolated from each other.
type Mode string

const (
	// ModeShared runs handlers on a fixed set of reused workers.
	ModeShared Mode = "shared"
	// ModeIsolated runs every handler on its own short-lived goroutine.
	ModeIsolated Mode = "isolated"
)

// ParseMode accepts the mode names plus the thread/process aliases.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "shared", "thread":
		return ModeShared, nil
	case "isolated", "process":
		return ModeIsolated, nil
	default:
		return "", fmt.Errorf("unknown worker mode %q (want shared or isolated)", s)
	}
}

func (m Mode) String() string {
	return string(m)
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m), nil
}

// UnmarshalText lets Mode be used directly in env-tagged config structs.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}
