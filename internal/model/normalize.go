package model

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// NormalizeEmail trims, NFKC-normalizes and lowercases an address. It returns
// an InvalidInputError when the value has no usable local part or domain.
func NormalizeEmail(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(s), "mailto:") {
		s = s[len("mailto:"):]
	}
	s = strings.Trim(s, "<> ")
	s = lower.String(norm.NFKC.String(s))

	if s == "" {
		return "", &InvalidInputError{Field: "email", Value: raw, Reason: "missing"}
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", &InvalidInputError{Field: "email", Value: raw, Reason: "contains whitespace"}
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return "", &InvalidInputError{Field: "email", Value: raw, Reason: "expected exactly one @"}
	}
	if local == "" {
		return "", &InvalidInputError{Field: "email", Value: raw, Reason: "empty local part"}
	}
	if !validDomain(domain) {
		return "", &InvalidInputError{Field: "email", Value: raw, Reason: "invalid domain"}
	}
	return local + "@" + domain, nil
}

// DomainFromEmail normalizes email and returns its domain.
func DomainFromEmail(email string) (string, error) {
	e, err := NormalizeEmail(email)
	if err != nil {
		return "", err
	}
	_, d, _ := strings.Cut(e, "@")
	return d, nil
}

// LocalPart returns the part of a normalized email before the @.
func LocalPart(email string) string {
	l, _, _ := strings.Cut(email, "@")
	return l
}

// NormalizeDomain reduces a URL or host to a bare lowercase domain without
// scheme, path, port or leading "www.". It returns "" for unusable input.
func NormalizeDomain(raw string) string {
	s := lower.String(strings.TrimSpace(raw))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	s = strings.TrimPrefix(s, "www.")
	if !validDomain(s) {
		return ""
	}
	return s
}

// NormalizeTag trims and lowercases a tag name.
func NormalizeTag(name string) string {
	return lower.String(strings.TrimSpace(name))
}

func validDomain(d string) bool {
	if d == "" || !strings.Contains(d, ".") {
		return false
	}
	if strings.HasPrefix(d, ".") || strings.HasSuffix(d, ".") || strings.Contains(d, "..") {
		return false
	}
	for _, label := range strings.Split(d, ".") {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return strings.IndexFunc(d, func(r rune) bool {
		return unicode.IsSpace(r) || r == '/' || r == '@'
	}) < 0
}
