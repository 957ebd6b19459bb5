package stream

import (
	"encoding/json"
	"strings"
)

// Status is the binary safety verdict carried by a terminal frame. The
// streaming path is deliberately two-class: an unknown or intermediate
// outcome must never be presented as safe.
type Status string

const (
	StatusSafe   Status = "SAFE"
	StatusDanger Status = "DANGER"
)

// Frame is one NDJSON line from the streaming analysis endpoint. Partial
// frames carry Text (and optionally the server-side Accumulated string);
// exactly one frame per request has Done set and carries the verdict.
type Frame struct {
	Text        string          `json:"text,omitempty"`
	Accumulated string          `json:"accumulated,omitempty"`
	Done        bool            `json:"done,omitempty"`
	Status      Status          `json:"status,omitempty"`
	TTFT        int64           `json:"ttft,omitempty"`
	TotalMs     int64           `json:"totalMs,omitempty"`
	UserContext json.RawMessage `json:"userContext,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// framer reassembles NDJSON frames across arbitrary transport chunk
// boundaries. It keeps the trailing partial line between appends; a line
// that fails to parse is discarded as a boundary artifact rather than
// treated as a protocol violation.
type framer struct {
	buf strings.Builder
}

// Append adds a chunk and returns every complete frame it closed off.
func (f *framer) Append(chunk []byte) []Frame {
	f.buf.Write(chunk)

	data := f.buf.String()
	if !strings.Contains(data, "\n") {
		return nil
	}

	parts := strings.Split(data, "\n")
	// The last split element (possibly empty) is the start of the next line.
	f.buf.Reset()
	f.buf.WriteString(parts[len(parts)-1])

	var frames []Frame
	for _, line := range parts[:len(parts)-1] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var frame Frame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}
