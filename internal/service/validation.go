package service

import "strings"

func hasUnsafeSegment(value string) bool {
	return strings.TrimSpace(value) == "" ||
		strings.HasPrefix(value, "/") ||
		strings.Contains(value, `\`) ||
		strings.Contains(value, "..")
}

// IsSafeRepoID accepts "org/name" style ids made of [A-Za-z0-9_.-/].
func IsSafeRepoID(value string) bool {
	if hasUnsafeSegment(value) {
		return false
	}
	for _, r := range value {
		if !isNameRune(r) && r != '/' {
			return false
		}
	}
	return true
}

// IsSafeModelName accepts a single path segment made of [A-Za-z0-9_.- ].
func IsSafeModelName(value string) bool {
	if hasUnsafeSegment(value) || strings.Contains(value, "/") {
		return false
	}
	for _, r := range value {
		if !isNameRune(r) && r != ' ' {
			return false
		}
	}
	return true
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '.', r == '-':
		return true
	}
	return false
}
