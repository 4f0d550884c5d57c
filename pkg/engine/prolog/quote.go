package prolog

import (
	"path/filepath"
	"strings"
)

// QuoteAtom renders s as a quoted atom.
func QuoteAtom(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// QuotePath renders a host path as an atom the engine reads literally:
// separators are normalized to '/' and the result is quoted, so backslashes
// and wildcard characters reach the engine unchanged.
func QuotePath(path string) string {
	return QuoteAtom(filepath.ToSlash(path))
}

// terminate makes sure query text ends with a full stop.
func terminate(query string) string {
	q := strings.TrimSpace(query)
	if strings.HasSuffix(q, ".") {
		return q
	}
	return q + "."
}
