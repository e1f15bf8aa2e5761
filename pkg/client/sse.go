package client

import (
	"bufio"
	"bytes"
	"io"

	"github.com/mikeboe/research-crew/pkg/stream"
)

// maxFrameSize bounds a single SSE line; report payloads can be large.
const maxFrameSize = 1 << 20

// Reader parses complete event records from an SSE byte stream. Records
// are framed by blank lines; the event type travels inside the JSON data
// payload, so "event:" and comment lines are skipped.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	return &Reader{scanner: scanner}
}

// Next returns the next event on the stream. It returns io.EOF when the
// stream ends cleanly between records.
func (r *Reader) Next() (stream.Event, error) {
	var data []byte
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		switch {
		case len(bytes.TrimSpace(line)) == 0:
			if len(data) > 0 {
				return stream.Decode(data)
			}
		case bytes.HasPrefix(line, []byte("data:")):
			payload := bytes.TrimPrefix(line, []byte("data:"))
			payload = bytes.TrimPrefix(payload, []byte(" "))
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, payload...)
		default:
			// event:/id:/retry: fields and comments
		}
	}
	if err := r.scanner.Err(); err != nil {
		return stream.Event{}, err
	}
	if len(data) > 0 {
		// stream ended without the trailing blank line
		return stream.Decode(data)
	}
	return stream.Event{}, io.EOF
}
