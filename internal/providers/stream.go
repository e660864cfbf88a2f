package providers

import (
	"bufio"
	"bytes"
	"io"
)

// StreamEvent is one parsed Server-Sent-Events line from a vendor's
// streaming chat-completion response.
type StreamEvent struct {
	Data  []byte
	Done  bool
	Error error
}

// StreamReader scans an SSE body line by line, surfacing only "data: "
// payloads and the "[DONE]" sentinel. Grounded on the teacher's
// bufio.Scanner-based reader; adapted to stop after the first real event
// since probes only need transport-opens-and-streams confirmation.
type StreamReader struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewStreamReader wraps r for line-oriented SSE scanning. The caller owns
// closing r via StreamReader.Close.
func NewStreamReader(r io.ReadCloser) *StreamReader {
	return &StreamReader{
		scanner: bufio.NewScanner(r),
		closer:  r,
	}
}

// Next reads the next "data: " event, skipping blank lines and any other
// SSE field. Returns Done=true on the "[DONE]" sentinel or stream EOF.
func (s *StreamReader) Next() StreamEvent {
	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		data := bytes.TrimPrefix(line, []byte("data: "))
		if bytes.Equal(data, []byte("[DONE]")) {
			return StreamEvent{Done: true}
		}
		return StreamEvent{Data: append([]byte(nil), data...)}
	}
	if err := s.scanner.Err(); err != nil {
		return StreamEvent{Error: err}
	}
	return StreamEvent{Done: true}
}

// Close closes the underlying body. Best-effort: probes do not await full
// stream consumption before calling this.
func (s *StreamReader) Close() error {
	return s.closer.Close()
}
