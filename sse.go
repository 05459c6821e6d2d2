package potfand

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// WriteSSE writes payload as a single server-sent event.
func WriteSSE(w io.Writer, payload []byte) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// An SSEReader reads the data of the events sent by potfand.
type SSEReader struct {
	scanner *bufio.Scanner
}

func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4<<10), 512<<10) // 512kB is far enough to read a SSE from potfand.

	return &SSEReader{scanner: scanner}
}

// Next returns the data of the next event. Multiple data lines are joined with a line feed.
func (r *SSEReader) Next() ([]byte, error) {
	var data []byte
	var found bool

	for r.scanner.Scan() {
		line := r.scanner.Bytes()

		if len(line) == 0 {
			if found {
				return data, nil
			}
			continue
		}

		v, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			continue // Comments and unsupported fields.
		}
		v = bytes.TrimPrefix(v, []byte(" "))

		if found {
			data = append(data, '\n')
		}
		data = append(data, v...)
		found = true
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if found {
		return data, nil
	}
	return nil, io.EOF
}
