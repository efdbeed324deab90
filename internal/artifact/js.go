package artifact

import (
	"bytes"
	"fmt"
	"regexp"
)

var varPrefix = regexp.MustCompile(`^var\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*=\s*`)

// WrapJS renders data as a Doxygen-style script: "var name =\n<data>;\n".
func WrapJS(name string, data []byte) []byte {
	var b bytes.Buffer
	b.WriteString("var ")
	b.WriteString(name)
	b.WriteString(" =\n")
	b.Write(bytes.TrimSpace(data))
	b.WriteString(";\n")
	return b.Bytes()
}

// UnwrapJS strips leading block comments (Doxygen puts a license there), the
// "var NAME =" prefix and the trailing ";" from a single-variable script.
// Plain JSON is returned unchanged. The variable name is "" for plain JSON.
func UnwrapJS(data []byte) (name string, body []byte, err error) {
	data = skipComments(bytes.TrimSpace(data))
	m := varPrefix.FindSubmatchIndex(data)
	if m == nil {
		return "", data, nil
	}
	name = string(data[m[2]:m[3]])
	body = bytes.TrimSpace(data[m[1]:])
	// A file may declare further variables after the first (navtreedata.js
	// does); only the first is returned.
	if end := endOfValue(body); end >= 0 {
		body = body[:end]
	} else {
		return "", nil, fmt.Errorf("unterminated value for var %s", name)
	}
	return name, bytes.TrimSpace(body), nil
}

func skipComments(data []byte) []byte {
	for {
		data = bytes.TrimSpace(data)
		switch {
		case bytes.HasPrefix(data, []byte("/*")):
			end := bytes.Index(data, []byte("*/"))
			if end < 0 {
				return nil
			}
			data = data[end+2:]
		case bytes.HasPrefix(data, []byte("//")):
			end := bytes.IndexByte(data, '\n')
			if end < 0 {
				return nil
			}
			data = data[end+1:]
		default:
			return data
		}
	}
}

// endOfValue returns the length of the first JSON-like value in data,
// honouring both quote styles. It returns -1 if the value never closes.
func endOfValue(data []byte) int {
	depth := 0
	var quote byte
	escaped := false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		case ';':
			if depth == 0 {
				return i
			}
		}
	}
	if depth == 0 {
		return len(data)
	}
	return -1
}
