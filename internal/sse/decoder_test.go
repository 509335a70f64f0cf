package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecoderSplitChunk(t *testing.T) {
	var d Decoder

	frames := d.Feed([]byte(`data: {"choices":[{"delta":{"con`))
	assert.Empty(t, frames)
	assert.Greater(t, d.Buffered(), 0)

	frames = d.Feed([]byte("tent\":\"hi\"}}]}\n\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, KindData, frames[0].Kind)
	choices := frames[0].Payload["choices"].([]interface{})
	delta := choices[0].(map[string]interface{})["delta"].(map[string]interface{})
	assert.Equal(t, "hi", delta["content"])
	assert.Equal(t, 0, d.Buffered())
}

func TestDecoderRawThenContinues(t *testing.T) {
	var d Decoder

	frames := d.Feed([]byte("data: not json\n\ndata: {\"a\":1}\n\n"))
	require.Len(t, frames, 2)

	assert.Equal(t, KindRaw, frames[0].Kind)
	assert.Equal(t, "data: not json", frames[0].Line)
	var decodeErr *DecodeError
	assert.True(t, errors.As(frames[0].Err, &decodeErr))

	assert.Equal(t, KindData, frames[1].Kind)
	assert.Equal(t, float64(1), frames[1].Payload["a"])
	assert.NoError(t, frames[1].Err)
}

func TestDecoderLineClassification(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		wantKind []Kind
	}{
		{"done sentinel", "data: [DONE]\n\n", []Kind{KindDone}},
		{"done without space", "data:[DONE]\n", []Kind{KindDone}},
		{"comment ignored", ": keepalive\n\n", nil},
		{"event and id fields ignored", "event: message\nid: 3\n", nil},
		{"crlf line endings", "data: {\"x\":true}\r\n\r\n", []Kind{KindData}},
		{"array payload is raw", "data: [1,2]\n", []Kind{KindRaw}},
		{"null payload is raw", "data: null\n", []Kind{KindRaw}},
		{"empty payload is raw", "data:\n", []Kind{KindRaw}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var d Decoder
			var kinds []Kind
			for _, f := range d.Feed([]byte(tc.input)) {
				kinds = append(kinds, f.Kind)
			}
			assert.Equal(t, tc.wantKind, kinds)
		})
	}
}

func TestDecoderCRLFStripsCarriageReturn(t *testing.T) {
	var d Decoder
	frames := d.Feed([]byte("data: oops\r\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, "data: oops", frames[0].Line)
}

func TestDecoderFlush(t *testing.T) {
	var d Decoder
	assert.Empty(t, d.Feed([]byte(`data: {"last":true}`)))

	frames := d.Flush()
	require.Len(t, frames, 1)
	assert.Equal(t, true, frames[0].Payload["last"])
	assert.Nil(t, d.Flush())
}

func TestReader(t *testing.T) {
	input := ": keepalive\n\n" +
		"data: {\"n\":1}\n\n" +
		"data: broken\n\n" +
		"data: {\"n\":2}\n\n" +
		"data: [DONE]\n\n"

	// OneByteReader forces every frame to straddle reads
	r := NewReader(iotest.OneByteReader(strings.NewReader(input)))

	var kinds []Kind
	for {
		f, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		kinds = append(kinds, f.Kind)
	}
	assert.Equal(t, []Kind{KindData, KindRaw, KindData, KindDone}, kinds)

	_, err := r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderPropagatesReadError(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("data: {\"n\":1}\n\n"), iotest.ErrReader(boom))
	r := NewReader(src)

	f, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, KindData, f.Kind)

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestEncode(t *testing.T) {
	data, err := Encode(Frame{Kind: KindData, Payload: map[string]interface{}{"id": "x"}})
	require.NoError(t, err)
	assert.Equal(t, "data: {\"id\":\"x\"}\n\n", string(data))

	data, err = Encode(Frame{Kind: KindDone, Line: "data:[DONE]"})
	require.NoError(t, err)
	assert.Equal(t, "data:[DONE]\n\n", string(data), "sentinel is forwarded verbatim")

	data, err = Encode(Frame{Kind: KindDone})
	require.NoError(t, err)
	assert.Equal(t, Done, data)

	data, err = Encode(Frame{Kind: KindRaw, Line: "data: garbage"})
	require.NoError(t, err)
	assert.Equal(t, "data: garbage\n\n", string(data))
}

func TestEncodeRoundTrip(t *testing.T) {
	var d Decoder
	frames := d.Feed([]byte("data: {\"a\":[1,2],\"b\":{\"c\":null}}\n\n"))
	require.Len(t, frames, 1)

	data, err := Encode(frames[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "data: "))
	assert.JSONEq(t, `{"a":[1,2],"b":{"c":null}}`, strings.TrimSpace(strings.TrimPrefix(string(data), "data: ")))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "data", KindData.String())
	assert.Equal(t, "done", KindDone.String())
	assert.Equal(t, "raw", KindRaw.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestEncodeLeavesMarkupUnescaped(t *testing.T) {
	data, err := Encode(Frame{Kind: KindData, Payload: map[string]interface{}{"content": "<think>\na"}})
	require.NoError(t, err)
	assert.Equal(t, "data: {\"content\":\"<think>\\na\"}\n\n", string(data))
}
