// Package sse decodes and re-encodes line-oriented event streams of the form
// "data: <json>\n\n" terminated by "data: [DONE]".
package sse

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// Wire constants.
const (
	DataPrefix   = "data:"
	DoneSentinel = "[DONE]"
)

var (
	// Keepalive is the comment frame written before the first event.
	Keepalive = []byte(": keepalive\n\n")
	// Done is the canonical terminal frame.
	Done = []byte("data: [DONE]\n\n")
)

// codec matches encoding/json except that HTML characters are left
// unescaped, so <think> markup reaches clients as written.
var codec = sonic.Config{
	SortMapKeys:      true,
	CompactMarshaler: true,
	CopyString:       true,
	ValidateString:   true,
}.Froze()

// Kind classifies a decoded line.
type Kind int

const (
	// KindData carries a decoded JSON object.
	KindData Kind = iota
	// KindDone is the terminal sentinel.
	KindDone
	// KindRaw is a data line whose payload is not a JSON object. It is
	// forwarded unchanged.
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindDone:
		return "done"
	case KindRaw:
		return "raw"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Frame is one event taken from the stream.
type Frame struct {
	Kind    Kind
	Payload map[string]interface{}
	// Line is the original line without its trailing newline.
	Line string
	// Err is set on raw frames and describes why decoding failed.
	Err error
}

// DecodeError reports a data line that could not be decoded. It never aborts
// a stream.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode event %q: %v", truncate(e.Line, 64), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// parseLine classifies one complete line. Lines that are not data lines
// (blank separators, comments, event or id fields) are skipped.
func parseLine(line string) (Frame, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, DataPrefix) {
		return Frame{}, false
	}

	payload := strings.TrimPrefix(line[len(DataPrefix):], " ")
	if strings.TrimSpace(payload) == DoneSentinel {
		return Frame{Kind: KindDone, Line: line}, true
	}

	var obj map[string]interface{}
	err := codec.UnmarshalFromString(payload, &obj)
	if err == nil && obj == nil {
		err = fmt.Errorf("payload is not an object")
	}
	if err != nil {
		return Frame{Kind: KindRaw, Line: line, Err: &DecodeError{Line: line, Err: err}}, true
	}
	return Frame{Kind: KindData, Payload: obj, Line: line}, true
}

// Encode serializes a frame back into wire form. Data frames are re-marshaled
// from their payload; done and raw frames reuse their original line.
func Encode(f Frame) ([]byte, error) {
	switch f.Kind {
	case KindDone:
		if f.Line == "" {
			return Done, nil
		}
		return []byte(f.Line + "\n\n"), nil
	case KindRaw:
		return []byte(f.Line + "\n\n"), nil
	}

	data, err := codec.Marshal(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	out := make([]byte, 0, len("data: ")+len(data)+2)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, '\n', '\n')
	return out, nil
}
