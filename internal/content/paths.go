package content

import (
	"errors"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrInvalidPath covers every rejected file path. Callers translate it to a
// 400 without leaking which rule fired.
var ErrInvalidPath = errors.New("invalid file path")

// ValidatePath resolves a client-supplied relative path against base and
// rejects anything that could escape it. The path is percent-decoded before
// checking so encoded traversal sequences don't slip through, and decoded
// again to catch double encoding.
func ValidatePath(raw, base string) (string, error) {
	if raw == "" || strings.TrimSpace(raw) == "" {
		return "", ErrInvalidPath
	}

	decoded := raw
	for i := 0; i < 2; i++ {
		next, err := url.PathUnescape(decoded)
		if err != nil {
			return "", ErrInvalidPath
		}
		if next == decoded {
			break
		}
		decoded = next
	}

	if strings.ContainsRune(decoded, '\\') || strings.ContainsRune(decoded, '\x00') {
		return "", ErrInvalidPath
	}
	if filepath.IsAbs(decoded) || strings.HasPrefix(decoded, "/") {
		return "", ErrInvalidPath
	}
	for _, part := range strings.Split(decoded, "/") {
		if part == ".." {
			return "", ErrInvalidPath
		}
	}

	abs := filepath.Join(base, filepath.FromSlash(decoded))
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return abs, nil
}
