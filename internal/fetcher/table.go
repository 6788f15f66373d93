package fetcher

import (
	"strings"
	"unicode"
)

// Table is a parsed sheet. Header holds normalized column keys.
type Table struct {
	Header []string
	Rows   [][]string
}

// NewTable normalizes header and drops rows that are entirely blank.
func NewTable(header []string, rows [][]string) *Table {
	t := &Table{Header: make([]string, len(header))}
	for i, h := range header {
		t.Header[i] = NormalizeHeader(h)
	}
	for _, r := range rows {
		if !blank(r) {
			t.Rows = append(t.Rows, r)
		}
	}
	return t
}

// Has reports whether the table has the column key.
func (t *Table) Has(key string) bool {
	for _, h := range t.Header {
		if h == key {
			return true
		}
	}
	return false
}

// Records returns each row as a map from column key to trimmed value.
// Missing trailing cells map to "". Duplicate columns keep the first
// non-empty value.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		rec := make(map[string]string, len(t.Header))
		for i, h := range t.Header {
			if h == "" {
				continue
			}
			v := ""
			if i < len(r) {
				v = strings.TrimSpace(r[i])
			}
			if rec[h] == "" {
				rec[h] = v
			}
		}
		out = append(out, rec)
	}
	return out
}

// NormalizeHeader lowercases a column title and joins its words with
// underscores, so "E-mail Address" becomes "e_mail_address".
func NormalizeHeader(h string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(strings.TrimSpace(h)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			sep = false
			continue
		}
		sep = true
	}
	return b.String()
}

func blank(r []string) bool {
	for _, c := range r {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
