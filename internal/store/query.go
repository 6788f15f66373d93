package store

import (
	"fmt"
	"strings"

	"github.com/sells-group/leads-cli/internal/model"
)

// builder accumulates WHERE clauses and positional arguments for either
// dialect: "?" for SQLite, "$n" for Postgres.
type builder struct {
	numbered bool
	where    []string
	args     []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	if b.numbered {
		return fmt.Sprintf("$%d", len(b.args))
	}
	return "?"
}

func (b *builder) in(vals []string) string {
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = b.arg(v)
	}
	return strings.Join(ph, ", ")
}

func (b *builder) add(clause string) {
	b.where = append(b.where, clause)
}

func (b *builder) whereSQL() string {
	if len(b.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.where, " AND ")
}

func (b *builder) page(limit, offset int) string {
	var s string
	if limit > 0 {
		s += " LIMIT " + b.arg(limit)
		if offset > 0 {
			s += " OFFSET " + b.arg(offset)
		}
	}
	return s
}

const leadFrom = ` FROM leads l LEFT JOIN companies c ON c.id = l.company_id`

const tagExists = `EXISTS (SELECT 1 FROM lead_tags lt JOIN tags t ON t.id = lt.tag_id WHERE lt.lead_id = l.id AND `

// leadWhere translates a filter into clauses on the leads/companies join.
func leadWhere(b *builder, f LeadFilter) {
	if len(f.IDs) > 0 {
		b.add("l.id IN (" + b.in(f.IDs) + ")")
	}
	if len(f.Emails) > 0 {
		b.add("l.email IN (" + b.in(f.Emails) + ")")
	}
	if f.CompanyID != "" {
		b.add("l.company_id = " + b.arg(f.CompanyID))
	}
	if f.Domain != "" {
		b.add("c.domain = " + b.arg(strings.ToLower(f.Domain)))
	}
	if f.Tag != "" {
		b.add(tagExists + "t.name = " + b.arg(model.NormalizeTag(f.Tag)) + ")")
	}
	if f.MissingPerson {
		b.add("(l.first_name = '' OR l.last_name = '' OR l.job_title = '' OR l.linkedin_url = '')")
	}
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		b.add("(lower(l.first_name) LIKE " + b.arg(like) +
			" OR lower(l.last_name) LIKE " + b.arg(like) +
			" OR l.email LIKE " + b.arg(like) +
			" OR lower(c.name) LIKE " + b.arg(like) +
			" OR c.domain LIKE " + b.arg(like) +
			" OR " + tagExists + "t.name LIKE " + b.arg(like) + "))")
	}
}

const stageRank = `CASE l.lead_stage WHEN 'enterprise' THEN 4 WHEN 'very_high' THEN 3 WHEN 'high' THEN 2 WHEN 'medium' THEN 1 ELSE 0 END`

// leadOrder returns the ORDER BY clause for a sort key. Unknown keys fall
// back to newest first.
func leadOrder(sort string) string {
	switch sort {
	case SortName:
		return " ORDER BY l.first_name ASC, l.last_name ASC, l.email ASC"
	case SortJobTitle:
		return " ORDER BY l.job_title ASC, l.email ASC"
	case SortEmail:
		return " ORDER BY l.email ASC"
	case SortCompany:
		return " ORDER BY COALESCE(c.name, '') ASC, l.email ASC"
	case SortScore:
		return " ORDER BY l.lead_score DESC, l.email ASC"
	case SortStage:
		return " ORDER BY " + stageRank + " DESC, l.lead_score DESC, l.email ASC"
	default:
		return " ORDER BY l.created_at DESC, l.email ASC"
	}
}

// ValidSort reports whether key is a supported lead sort.
func ValidSort(key string) bool {
	switch key {
	case "", SortName, SortJobTitle, SortEmail, SortCompany, SortScore, SortStage:
		return true
	}
	return false
}

func companyWhere(b *builder, f CompanyFilter) {
	if term := strings.TrimSpace(f.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		b.add("(lower(c.name) LIKE " + b.arg(like) + " OR c.domain LIKE " + b.arg(like) + ")")
	}
	if f.Unenriched {
		b.add("c.enriched_at IS NULL")
	}
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
