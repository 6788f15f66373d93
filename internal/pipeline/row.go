package pipeline

import (
	"strconv"
	"strings"

	"github.com/sells-group/leads-cli/internal/fetcher"
)

// Row is one raw import record. Only Email is required.
type Row struct {
	Email       string   `json:"email"`
	CompanyName string   `json:"company_name,omitempty"`
	FirstName   string   `json:"first_name,omitempty"`
	LastName    string   `json:"last_name,omitempty"`
	JobTitle    string   `json:"job_title,omitempty"`
	LinkedInURL string   `json:"linkedin_url,omitempty"`
	Sessions    int      `json:"sessions,omitempty"`
	Tags        []string `json:"tags,omitempty"`

	// Invalid carries a parse problem found while reading the row; the
	// importer rejects the row with it as the reason.
	Invalid string `json:"-"`
}

// headerAliases maps normalized column titles seen in CRM and webinar
// exports to Row fields.
var headerAliases = map[string]string{
	"email":            "email",
	"e_mail":           "email",
	"email_address":    "email",
	"e_mail_address":   "email",
	"work_email":       "email",
	"company":          "company_name",
	"company_name":     "company_name",
	"organization":     "company_name",
	"organisation":     "company_name",
	"account_name":     "company_name",
	"first_name":       "first_name",
	"firstname":        "first_name",
	"given_name":       "first_name",
	"last_name":        "last_name",
	"lastname":         "last_name",
	"surname":          "last_name",
	"family_name":      "last_name",
	"job_title":        "job_title",
	"title":            "job_title",
	"position":         "job_title",
	"role":             "job_title",
	"linkedin":         "linkedin_url",
	"linkedin_url":     "linkedin_url",
	"linkedin_profile": "linkedin_url",
	"sessions":         "sessions",
	"session_count":    "sessions",
	"visits":           "sessions",
	"tags":             "tags",
	"tag":              "tags",
	"labels":           "tags",
}

// RowsFromTable maps a parsed sheet onto Rows using headerAliases. Unknown
// columns are ignored.
func RowsFromTable(t *fetcher.Table) []Row {
	recs := t.Records()
	rows := make([]Row, 0, len(recs))
	for _, rec := range recs {
		fields := make(map[string]string, len(rec))
		for _, col := range t.Header {
			if key, ok := headerAliases[col]; ok && fields[key] == "" {
				fields[key] = rec[col]
			}
		}
		rows = append(rows, rowFromFields(fields))
	}
	return rows
}

func rowFromFields(f map[string]string) Row {
	r := Row{
		Email:       f["email"],
		CompanyName: f["company_name"],
		FirstName:   f["first_name"],
		LastName:    f["last_name"],
		JobTitle:    f["job_title"],
		LinkedInURL: f["linkedin_url"],
		Tags:        splitTags(f["tags"]),
	}
	if s := strings.TrimSpace(f["sessions"]); s != "" {
		n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
		if err != nil || n < 0 {
			r.Invalid = "invalid sessions value " + strconv.Quote(s)
		} else {
			r.Sessions = n
		}
	}
	return r
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
