package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID        string `json:"Id" salesforce:"Id"`
	Email     string `json:"Email" salesforce:"Email"`
	FirstName string `json:"FirstName" salesforce:"FirstName"`
	LastName  string `json:"LastName" salesforce:"LastName"`
	Company   string `json:"Company" salesforce:"Company"`
	Title     string `json:"Title" salesforce:"Title"`
}

// leadFields are the SOQL fields selected for Lead queries.
var leadFields = []string{"Id", "Email", "FirstName", "LastName", "Company", "Title"}

// maxInClause caps the number of literals in one SOQL IN clause.
const maxInClause = 100

// FindLeadsByEmail returns existing Leads keyed by lowercase email. Emails
// with no Lead are absent from the map.
func FindLeadsByEmail(ctx context.Context, c Client, emails []string) (map[string]Lead, error) {
	found := make(map[string]Lead, len(emails))
	for start := 0; start < len(emails); start += maxInClause {
		end := min(start+maxInClause, len(emails))

		quoted := make([]string, 0, end-start)
		for _, e := range emails[start:end] {
			quoted = append(quoted, "'"+escapeSoql(e)+"'")
		}
		soql := fmt.Sprintf(
			"SELECT %s FROM Lead WHERE IsConverted = false AND Email IN (%s)",
			strings.Join(leadFields, ", "),
			strings.Join(quoted, ", "),
		)

		var leads []Lead
		if err := c.Query(ctx, soql, &leads); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("sf: find leads by email batch %d-%d", start, end))
		}
		for _, l := range leads {
			key := strings.ToLower(l.Email)
			if _, dup := found[key]; !dup {
				found[key] = l
			}
		}
	}
	return found, nil
}

// escapeSoql escapes backslashes and single quotes in SOQL string literals.
func escapeSoql(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
