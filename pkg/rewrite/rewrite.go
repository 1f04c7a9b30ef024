package rewrite

import (
	"bytes"
	"errors"
)

var (
	// ErrNoLineTerminator means the buffer holds no complete first line.
	ErrNoLineTerminator = errors.New("rewrite: no line terminator in buffer")
	// ErrHeaderNotFound means the header key does not occur in the header block.
	ErrHeaderNotFound = errors.New("rewrite: header not found")
	// ErrReplacementTooWide means the replacement is longer than the value it
	// would overwrite.
	ErrReplacementTooWide = errors.New("rewrite: replacement wider than header value")
	// ErrUnsupportedVersion means the first line carries no known HTTP version.
	ErrUnsupportedVersion = errors.New("rewrite: unsupported HTTP version")
)

// DefaultVersions are the HTTP version tokens deception applies to.
var DefaultVersions = []string{"HTTP/1.0", "HTTP/1.1"}

// FirstLine returns buf up to, not including, the first CR or LF.
func FirstLine(buf []byte) ([]byte, bool) {
	i := bytes.IndexAny(buf, "\r\n")
	if i < 0 {
		return nil, false
	}
	return buf[:i], true
}

// SupportedVersion returns the first token of versions contained in line.
func SupportedVersion(line []byte, versions []string) (string, bool) {
	for _, v := range versions {
		if bytes.Contains(line, []byte(v)) {
			return v, true
		}
	}
	return "", false
}

// IsHTTP reports whether buf starts with a complete line naming one of
// versions. Request lines and status lines both qualify.
func IsHTTP(buf []byte, versions []string) bool {
	line, ok := FirstLine(buf)
	if !ok {
		return false
	}
	_, ok = SupportedVersion(line, versions)
	return ok
}

// MatchesPath reports whether the first line of buf names one of versions
// and contains path.
func MatchesPath(buf []byte, path string, versions []string) bool {
	if path == "" {
		return false
	}
	line, ok := FirstLine(buf)
	if !ok {
		return false
	}
	if _, ok := SupportedVersion(line, versions); !ok {
		return false
	}
	return bytes.Contains(line, []byte(path))
}

// OverwriteStatusLine returns a new buffer whose first line is
// version + " " + status, followed by everything in buf from the first CR
// onward. buf is not modified.
func OverwriteStatusLine(buf []byte, version, status string) ([]byte, error) {
	cr := bytes.IndexByte(buf, '\r')
	if cr < 0 {
		return nil, ErrNoLineTerminator
	}
	rest := buf[cr:]

	out := make([]byte, 0, len(version)+1+len(status)+len(rest))
	out = append(out, version...)
	out = append(out, ' ')
	out = append(out, status...)
	out = append(out, rest...)
	return out, nil
}

// valueSpan locates the value of header key in buf. The key must start a
// line inside the header block and be followed by ": ".
func valueSpan(buf []byte, key string) (start, end int, err error) {
	headers := buf
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		headers = buf[:i+2]
	}

	needle := []byte("\n" + key + ": ")
	i := bytes.Index(headers, needle)
	if i < 0 {
		return 0, 0, ErrHeaderNotFound
	}
	start = i + len(needle)

	cr := bytes.IndexByte(buf[start:], '\r')
	if cr < 0 {
		return 0, 0, ErrNoLineTerminator
	}
	return start, start + cr, nil
}

// ReplaceHeaderInPlace overwrites the value of header key with replacement,
// left-justified and padded with spaces to the original width. The length of
// buf never changes.
func ReplaceHeaderInPlace(buf []byte, key, replacement string) error {
	start, end, err := valueSpan(buf, key)
	if err != nil {
		return err
	}
	if len(replacement) > end-start {
		return ErrReplacementTooWide
	}

	n := copy(buf[start:end], replacement)
	for i := start + n; i < end; i++ {
		buf[i] = ' '
	}
	return nil
}

// ReplaceHeader returns a copy of buf with the value of header key replaced
// by replacement. The result may be longer or shorter than buf.
func ReplaceHeader(buf []byte, key, replacement string) ([]byte, error) {
	start, end, err := valueSpan(buf, key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(buf)-(end-start)+len(replacement))
	out = append(out, buf[:start]...)
	out = append(out, replacement...)
	out = append(out, buf[end:]...)
	return out, nil
}
