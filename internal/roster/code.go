// Package roster assigns the short display codes used for games (#G01) and
// players (#P01).
package roster

import (
	"fmt"
	"strconv"
	"strings"
)

// Display code prefixes.
const (
	GamePrefix   = "#G"
	PlayerPrefix = "#P"
)

// IsPrefix reports whether p is one of the known display code prefixes.
func IsPrefix(p string) bool {
	return p == GamePrefix || p == PlayerPrefix
}

// NextCode returns the lowest free code for prefix, zero-padded to two digits.
// Codes that do not carry the prefix or a positive number are ignored.
func NextCode(prefix string, existing []string) string {
	used := make(map[int]struct{}, len(existing))
	for _, code := range existing {
		rest, ok := strings.CutPrefix(strings.TrimSpace(code), prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			continue
		}
		used[n] = struct{}{}
	}

	n := 1
	for {
		if _, taken := used[n]; !taken {
			return fmt.Sprintf("%s%02d", prefix, n)
		}
		n++
	}
}
