package transport

import (
	"bytes"
	"encoding/json"
)

// extractFrames pulls every complete top-level JSON value out of buf,
// leaving any trailing partial value in place for the next read. JSON
// mode messages are self-delimited objects with no length prefix or
// separator, so framing tracks brace/bracket depth directly rather than
// scanning for a delimiter.
func extractFrames(buf *bytes.Buffer) ([]json.RawMessage, error) {
	data := buf.Bytes()
	var frames []json.RawMessage
	offset := 0

	for offset < len(data) {
		start := offset
		for start < len(data) && isJSONSpace(data[start]) {
			start++
		}
		if start >= len(data) {
			offset = start
			break
		}

		end, ok := scanValue(data, start)
		if !ok {
			break
		}
		frame := make(json.RawMessage, end-start)
		copy(frame, data[start:end])
		frames = append(frames, frame)
		offset = end
	}

	if offset > 0 {
		buf.Next(offset)
	}
	return frames, nil
}

func isJSONSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// scanValue returns the index just past one complete JSON object or
// array starting at data[start], or ok=false if the value isn't
// complete yet in the buffered data.
func scanValue(data []byte, start int) (int, bool) {
	depth := 0
	inStr := false
	esc := false

	for i := start; i < len(data); i++ {
		c := data[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, true
			}
		}
	}
	return 0, false
}
