package docstore

import (
	"fmt"
	"strings"
)

// Separator divides path segments
const Separator = "/"

// reserved characters cannot appear in a path segment; they are glob or
// LIKE metacharacters in the Redis and SQL backends.
const reserved = "*?[]%\\#"

// CleanPath validates p and returns it without leading or trailing separators
func CleanPath(p string) (string, error) {
	p = strings.Trim(strings.TrimSpace(p), Separator)
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	for _, seg := range strings.Split(p, Separator) {
		if strings.TrimSpace(seg) == "" {
			return "", fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, p)
		}
		if seg == "." || seg == ".." {
			return "", fmt.Errorf("%w: relative segment in %q", ErrInvalidPath, p)
		}
		if strings.ContainsAny(seg, reserved) {
			return "", fmt.Errorf("%w: reserved character in %q", ErrInvalidPath, p)
		}
	}
	return p, nil
}

// Join builds a path from segments
func Join(segments ...string) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s = strings.Trim(s, Separator); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, Separator)
}

// Parent returns the parent of p, "" for a top-level path
func Parent(p string) string {
	i := strings.LastIndex(p, Separator)
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Base returns the last segment of p
func Base(p string) string {
	return p[strings.LastIndex(p, Separator)+1:]
}

// IsUnder reports whether p equals root or is a descendant of it.
// Every path is under the empty root.
func IsUnder(p, root string) bool {
	if root == "" || p == root {
		return true
	}
	return strings.HasPrefix(p, root+Separator)
}

// related reports whether a change at p is visible to a subscriber of sub
func related(p, sub string) bool {
	return IsUnder(p, sub) || IsUnder(sub, p)
}
