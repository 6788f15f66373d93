package enrich

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/leads-cli/internal/model"
)

var (
	thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)
	urlPattern      = regexp.MustCompile(`https?://[^\s<>"'()\[\]{}]+`)
	indexPattern    = regexp.MustCompile(`^\D{0,20}?(\d{1,3})\D{0,3}$`)
	noMatchPattern  = regexp.MustCompile(`(?i)\b(none|no match|not found|unknown|cannot|can't|unable)\b`)
)

// extractJSON returns the first balanced JSON object in an LLM response,
// ignoring <think> preambles and markdown fences.
func extractJSON(text string) (string, bool) {
	cleaned := thinkTagPattern.ReplaceAllString(text, "")
	start := strings.IndexByte(cleaned, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				s := cleaned[start : i+1]
				if json.Valid([]byte(s)) {
					return s, true
				}
				return "", false
			}
		}
	}
	return "", false
}

// urlsInText returns every http(s) URL in text, trailing punctuation removed.
func urlsInText(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimRight(m, ".,;:!?*`"))
	}
	return out
}

// selection is the JSON shape the select prompt asks for.
type selection struct {
	URL   *string `json:"url"`
	Index *int    `json:"index"`
}

// parseSelection interprets the model's choice among candidates. It accepts a
// JSON object with "url" or "index", a bare 1-based index or a URL anywhere
// in the text. The choice must be one of the candidates; anything else,
// including an explicit "none", is no match.
func parseSelection(text string, cands []Candidate) (Candidate, bool) {
	text = strings.TrimSpace(thinkTagPattern.ReplaceAllString(text, ""))
	if text == "" || len(cands) == 0 {
		return Candidate{}, false
	}

	if raw, ok := extractJSON(text); ok {
		var sel selection
		if err := json.Unmarshal([]byte(raw), &sel); err == nil {
			if sel.URL != nil {
				return matchCandidate(*sel.URL, cands)
			}
			if sel.Index != nil {
				return candidateAt(*sel.Index, cands)
			}
			return Candidate{}, false
		}
	}

	for _, u := range urlsInText(text) {
		if c, ok := matchCandidate(u, cands); ok {
			return c, true
		}
	}

	line := strings.TrimSpace(strings.SplitN(text, "\n", 2)[0])
	if m := indexPattern.FindStringSubmatch(line); m != nil && !noMatchPattern.MatchString(line) {
		n, _ := strconv.Atoi(m[1])
		return candidateAt(n, cands)
	}
	return Candidate{}, false
}

func matchCandidate(raw string, cands []Candidate) (Candidate, bool) {
	canon := canonicalURL(raw)
	if canon == "" {
		return Candidate{}, false
	}
	for _, c := range cands {
		if canonicalURL(c.URL) == canon {
			return c, true
		}
	}
	return Candidate{}, false
}

// candidateAt resolves a 1-based index. Zero means "none".
func candidateAt(n int, cands []Candidate) (Candidate, bool) {
	if n < 1 || n > len(cands) {
		return Candidate{}, false
	}
	return cands[n-1], true
}

// person is the JSON shape the extract prompt asks for.
type person struct {
	Found       *bool  `json:"found"`
	FullName    string `json:"full_name"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	JobTitle    string `json:"job_title"`
	LinkedInURL string `json:"linkedin_url"`
}

var labelKeys = map[string]string{
	"full name":    "full_name",
	"name":         "full_name",
	"first name":   "first_name",
	"last name":    "last_name",
	"surname":      "last_name",
	"job title":    "job_title",
	"title":        "job_title",
	"role":         "job_title",
	"linkedin":     "linkedin_url",
	"linkedin url": "linkedin_url",
}

// parsePerson reads extracted person attributes from a JSON object or from
// "Label: value" lines. It reports false when nothing usable was found.
func parsePerson(text string) (model.PersonAttributes, bool) {
	var p person
	if raw, ok := extractJSON(text); ok {
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return model.PersonAttributes{}, false
		}
		if p.Found != nil && !*p.Found {
			return model.PersonAttributes{}, false
		}
	} else {
		for _, line := range strings.Split(text, "\n") {
			label, value, ok := strings.Cut(strings.Trim(strings.TrimSpace(line), "-*• "), ":")
			if !ok {
				continue
			}
			key, known := labelKeys[strings.ToLower(strings.Trim(label, "*_ "))]
			if !known {
				continue
			}
			value = strings.Trim(value, "*_ \t")
			switch key {
			case "full_name":
				p.FullName = value
			case "first_name":
				p.FirstName = value
			case "last_name":
				p.LastName = value
			case "job_title":
				p.JobTitle = value
			case "linkedin_url":
				p.LinkedInURL = value
			}
		}
	}

	attrs := cleanPerson(model.PersonAttributes{
		FullName:    p.FullName,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		JobTitle:    p.JobTitle,
		LinkedInURL: p.LinkedInURL,
	})
	return attrs, !attrs.Empty()
}

// cleanPerson drops placeholder values, splits a full name into first and
// last when they are missing and keeps the LinkedIn URL only when it is a
// personal profile.
func cleanPerson(p model.PersonAttributes) model.PersonAttributes {
	p.FullName = cleanValue(p.FullName)
	p.FirstName = cleanValue(p.FirstName)
	p.LastName = cleanValue(p.LastName)
	p.JobTitle = cleanValue(p.JobTitle)
	p.LinkedInURL = cleanValue(p.LinkedInURL)

	if p.LinkedInURL != "" {
		if !IsLinkedInProfile(p.LinkedInURL) {
			p.LinkedInURL = ""
		} else {
			p.LinkedInURL = canonicalURL(p.LinkedInURL)
		}
	}

	if p.FullName == "" && (p.FirstName != "" || p.LastName != "") {
		p.FullName = strings.TrimSpace(p.FirstName + " " + p.LastName)
	}
	if p.FullName != "" && p.FirstName == "" && p.LastName == "" {
		fields := strings.Fields(p.FullName)
		if len(fields) >= 2 {
			p.FirstName = fields[0]
			p.LastName = strings.Join(fields[1:], " ")
		}
	}
	return p
}

func cleanValue(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a", "na", "unknown", "not found", "-":
		return ""
	}
	return s
}

var titleSuffix = regexp.MustCompile(`(?i)\s*[|\-–]\s*linkedin.*$`)

// personFromTitle reads "Jane Doe - Chief Executive Officer - Acme | LinkedIn"
// style result titles. Only LinkedIn profile hits are trusted.
func personFromTitle(c Candidate) (model.PersonAttributes, bool) {
	if !IsLinkedInProfile(c.URL) || c.Title == "" {
		return model.PersonAttributes{}, false
	}
	title := titleSuffix.ReplaceAllString(c.Title, "")
	parts := strings.Split(title, " - ")
	if len(parts) == 1 {
		parts = strings.Split(title, " – ")
	}

	p := model.PersonAttributes{FullName: strings.TrimSpace(parts[0]), LinkedInURL: c.URL}
	if len(parts) > 1 {
		p.JobTitle = strings.TrimSpace(parts[1])
	}
	p = cleanPerson(p)
	return p, p.FullName != ""
}
