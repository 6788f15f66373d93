package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leads-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The pool is held to one connection so per-connection pragmas stick and
// concurrent writers queue instead of failing with SQLITE_BUSY.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id          TEXT PRIMARY KEY,
	domain      TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL DEFAULT '',
	industry    TEXT NOT NULL DEFAULT '',
	attributes  TEXT NOT NULL DEFAULT '{}',
	enriched_at DATETIME,
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id                    TEXT PRIMARY KEY,
	email                 TEXT NOT NULL UNIQUE,
	company_id            TEXT REFERENCES companies(id) ON DELETE SET NULL,
	first_name            TEXT NOT NULL DEFAULT '',
	last_name             TEXT NOT NULL DEFAULT '',
	job_title             TEXT NOT NULL DEFAULT '',
	linkedin_url          TEXT NOT NULL DEFAULT '',
	hierarchical_level    TEXT NOT NULL DEFAULT '',
	session_count         INTEGER NOT NULL DEFAULT 0,
	lead_score            INTEGER NOT NULL DEFAULT 0,
	lead_stage            TEXT NOT NULL DEFAULT 'low',
	enrichment_source     TEXT NOT NULL DEFAULT '',
	enrichment_confidence TEXT NOT NULL DEFAULT '',
	enriched_at           DATETIME,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	id   TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS lead_tags (
	lead_id TEXT NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
	tag_id  TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	PRIMARY KEY (lead_id, tag_id)
);

CREATE TABLE IF NOT EXISTS company_notes (
	id         TEXT PRIMARY KEY,
	company_id TEXT NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
	body       TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	email      TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_company_id ON leads(company_id);
CREATE INDEX IF NOT EXISTS idx_leads_lead_score ON leads(lead_score);
CREATE INDEX IF NOT EXISTS idx_lead_tags_tag_id ON lead_tags(tag_id);
CREATE INDEX IF NOT EXISTS idx_company_notes_company_id ON company_notes(company_id);
CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Companies ---

const sqliteCompanyCols = `c.id, c.domain, c.name, c.industry, c.attributes, c.enriched_at, c.created_at, c.updated_at`

func (s *SQLiteStore) CreateCompany(ctx context.Context, domain, name string) (*model.Company, error) {
	now := time.Now().UTC()
	c := &model.Company{
		ID:         uuid.New().String(),
		Domain:     domain,
		Name:       name,
		Attributes: model.Attributes{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO companies (id, domain, name, attributes, created_at, updated_at) VALUES (?, ?, ?, '{}', ?, ?)`,
		c.ID, c.Domain, c.Name, now, now,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return nil, &model.PersistenceConflictError{Entity: "company", Key: domain, Err: err}
		}
		return nil, eris.Wrapf(err, "sqlite: insert company %s", domain)
	}
	return c, nil
}

func (s *SQLiteStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCompanyCols+` FROM companies c WHERE c.id = ?`, id)
	c, err := scanSQLiteCompany(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company %s", id)
	}
	return c, nil
}

func (s *SQLiteStore) GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCompanyCols+` FROM companies c WHERE c.domain = ?`, domain)
	c, err := scanSQLiteCompany(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get company by domain %s", domain)
	}
	return c, nil
}

func (s *SQLiteStore) UpdateCompany(ctx context.Context, c *model.Company) error {
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal attributes")
	}
	c.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE companies SET name = ?, industry = ?, attributes = ?, enriched_at = ?, updated_at = ? WHERE id = ?`,
		c.Name, c.Industry, string(attrs), c.EnrichedAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update company %s", c.ID)
	}
	return checkRowsAffected(res, "company", c.ID)
}

// DeleteCompany removes the company and its notes and detaches its leads.
func (s *SQLiteStore) DeleteCompany(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin delete company")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM company_notes WHERE company_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: delete notes of company %s", id)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE leads SET company_id = NULL WHERE company_id = ?`, id); err != nil {
		return eris.Wrapf(err, "sqlite: detach leads of company %s", id)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete company %s", id)
	}
	if err := checkRowsAffected(res, "company", id); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit delete company")
}

func (s *SQLiteStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]CompanySummary, error) {
	b := &builder{}
	companyWhere(b, filter)
	query := `SELECT ` + sqliteCompanyCols + `, (SELECT COUNT(*) FROM leads l WHERE l.company_id = c.id) AS lead_count FROM companies c` +
		b.whereSQL() + ` ORDER BY lead_count DESC, c.domain ASC` + b.page(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list companies")
	}
	defer rows.Close() //nolint:errcheck

	var out []CompanySummary
	for rows.Next() {
		var cs CompanySummary
		c, err := scanSQLiteCompany(rows, &cs.LeadCount)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan company")
		}
		cs.Company = *c
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list companies iterate")
}

// --- Leads ---

const sqliteLeadCols = `l.id, l.email, COALESCE(l.company_id, ''), l.first_name, l.last_name, l.job_title, l.linkedin_url,
	l.hierarchical_level, l.session_count, l.lead_score, l.lead_stage, l.enrichment_source, l.enrichment_confidence,
	l.enriched_at, l.created_at, l.updated_at,
	(SELECT group_concat(name, char(31)) FROM (SELECT t.name FROM lead_tags lt JOIN tags t ON t.id = lt.tag_id WHERE lt.lead_id = l.id ORDER BY t.name))`

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	lead.CreatedAt, lead.UpdatedAt = now, now
	lead.Tags = normalizeTags(lead.Tags)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin create lead")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO leads (id, email, company_id, first_name, last_name, job_title, linkedin_url,
			hierarchical_level, session_count, lead_score, lead_stage, enrichment_source, enrichment_confidence,
			enriched_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Email, nullIfEmpty(lead.CompanyID), lead.FirstName, lead.LastName, lead.JobTitle, lead.LinkedInURL,
		string(lead.HierarchicalLevel), lead.SessionCount, lead.Score, string(lead.Stage), lead.EnrichmentSource,
		string(lead.EnrichmentConfidence), lead.EnrichedAt, now, now,
	)
	if err != nil {
		if isSQLiteUnique(err) {
			return &model.PersistenceConflictError{Entity: "lead", Key: lead.Email, Err: err}
		}
		return eris.Wrapf(err, "sqlite: insert lead %s", lead.Email)
	}
	if err := sqliteSetTags(ctx, tx, lead.ID, lead.Tags); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit create lead")
}

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteLeadCols+leadFrom+` WHERE l.id = ?`, id)
	l, err := scanSQLiteLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %s", id)
	}
	return l, nil
}

func (s *SQLiteStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteLeadCols+leadFrom+` WHERE l.email = ?`, email)
	l, err := scanSQLiteLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead by email %s", email)
	}
	return l, nil
}

// SaveLead writes every mutable column and replaces the lead's tag set.
func (s *SQLiteStore) SaveLead(ctx context.Context, lead *model.Lead) error {
	lead.UpdatedAt = time.Now().UTC()
	lead.Tags = normalizeTags(lead.Tags)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save lead")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE leads SET company_id = ?, first_name = ?, last_name = ?, job_title = ?, linkedin_url = ?,
			hierarchical_level = ?, session_count = ?, lead_score = ?, lead_stage = ?, enrichment_source = ?,
			enrichment_confidence = ?, enriched_at = ?, updated_at = ?
		 WHERE id = ?`,
		nullIfEmpty(lead.CompanyID), lead.FirstName, lead.LastName, lead.JobTitle, lead.LinkedInURL,
		string(lead.HierarchicalLevel), lead.SessionCount, lead.Score, string(lead.Stage), lead.EnrichmentSource,
		string(lead.EnrichmentConfidence), lead.EnrichedAt, lead.UpdatedAt, lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead %s", lead.ID)
	}
	if err := checkRowsAffected(res, "lead", lead.ID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM lead_tags WHERE lead_id = ?`, lead.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear tags of lead %s", lead.ID)
	}
	if err := sqliteSetTags(ctx, tx, lead.ID, lead.Tags); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save lead")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	b := &builder{}
	leadWhere(b, filter)
	query := `SELECT ` + sqliteLeadCols + leadFrom + b.whereSQL() + leadOrder(filter.Sort) + b.page(filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

func (s *SQLiteStore) LeadStats(ctx context.Context, filter LeadFilter) (*LeadStats, error) {
	b := &builder{}
	leadWhere(b, filter)
	var st LeadStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(l.lead_score), 0)`+leadFrom+b.whereSQL(), b.args...,
	).Scan(&st.Count, &st.AverageScore)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lead stats")
	}
	return &st, nil
}

func (s *SQLiteStore) CountLeadsByCompany(ctx context.Context, companyID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads WHERE company_id = ?`, companyID).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count leads of company %s", companyID)
}

// --- Tags ---

// TagLeads attaches the tag to every listed lead and returns how many leads
// gained it. Unknown lead IDs are ignored.
func (s *SQLiteStore) TagLeads(ctx context.Context, leadIDs []string, name string) (int, error) {
	name = model.NormalizeTag(name)
	if name == "" {
		return 0, &model.InvalidInputError{Field: "tag", Reason: "empty name"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tag leads")
	}
	defer tx.Rollback() //nolint:errcheck

	tagID, err := sqliteEnsureTag(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	var added int
	for _, id := range leadIDs {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO lead_tags (lead_id, tag_id) SELECT id, ? FROM leads WHERE id = ? ON CONFLICT DO NOTHING`,
			tagID, id,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: tag lead %s", id)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	return added, eris.Wrap(tx.Commit(), "sqlite: commit tag leads")
}

func (s *SQLiteStore) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list tags")
	}
	defer rows.Close() //nolint:errcheck

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan tag")
		}
		tags = append(tags, t)
	}
	return tags, eris.Wrap(rows.Err(), "sqlite: list tags iterate")
}

// --- Notes ---

func (s *SQLiteStore) AddNote(ctx context.Context, companyID, body string) (*model.CompanyNote, error) {
	now := time.Now().UTC()
	n := &model.CompanyNote{ID: uuid.New().String(), CompanyID: companyID, Body: body, CreatedAt: now, UpdatedAt: now}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO company_notes (id, company_id, body, created_at, updated_at) SELECT ?, id, ?, ?, ? FROM companies WHERE id = ?`,
		n.ID, body, now, now, companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: add note to company %s", companyID)
	}
	if err := checkRowsAffected(res, "company", companyID); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *SQLiteStore) UpdateNote(ctx context.Context, id, body string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE company_notes SET body = ?, updated_at = ? WHERE id = ?`, body, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update note %s", id)
	}
	return checkRowsAffected(res, "note", id)
}

func (s *SQLiteStore) DeleteNote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM company_notes WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete note %s", id)
	}
	return checkRowsAffected(res, "note", id)
}

func (s *SQLiteStore) ListNotes(ctx context.Context, companyID string) ([]model.CompanyNote, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, company_id, body, created_at, updated_at FROM company_notes WHERE company_id = ? ORDER BY created_at DESC, id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list notes of company %s", companyID)
	}
	defer rows.Close() //nolint:errcheck

	var notes []model.CompanyNote
	for rows.Next() {
		var n model.CompanyNote
		if err := rows.Scan(&n.ID, &n.CompanyID, &n.Body, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan note")
		}
		notes = append(notes, n)
	}
	return notes, eris.Wrap(rows.Err(), "sqlite: list notes iterate")
}

// --- Enrichment cache ---

func (s *SQLiteStore) GetCachedEnrichment(ctx context.Context, email string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM enrichment_cache WHERE email = ? AND expires_at > ?`, email, time.Now().UTC(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached enrichment")
	}
	return []byte(data), nil
}

func (s *SQLiteStore) SetCachedEnrichment(ctx context.Context, email string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (email, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (email) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		email, string(data), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached enrichment")
}

func (s *SQLiteStore) DeleteExpiredEnrichments(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enrichment_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired enrichments")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func isSQLiteUnique(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func sqliteEnsureTag(ctx context.Context, tx *sql.Tx, name string) (string, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO tags (id, name) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`, uuid.New().String(), name,
	); err != nil {
		return "", eris.Wrapf(err, "sqlite: insert tag %s", name)
	}
	var id string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return "", eris.Wrapf(err, "sqlite: read tag %s", name)
	}
	return id, nil
}

func sqliteSetTags(ctx context.Context, tx *sql.Tx, leadID string, tags []string) error {
	for _, name := range tags {
		tagID, err := sqliteEnsureTag(ctx, tx, name)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO lead_tags (lead_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, leadID, tagID,
		); err != nil {
			return eris.Wrapf(err, "sqlite: attach tag %s", name)
		}
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteCompany(row scannable, extra ...any) (*model.Company, error) {
	var c model.Company
	var attrs string
	var enriched sql.NullTime
	dest := append([]any{&c.ID, &c.Domain, &c.Name, &c.Industry, &attrs, &enriched, &c.CreatedAt, &c.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(attrs), &c.Attributes); err != nil {
		return nil, eris.Wrap(err, "unmarshal attributes")
	}
	if c.Attributes == nil {
		c.Attributes = model.Attributes{}
	}
	if enriched.Valid {
		t := enriched.Time
		c.EnrichedAt = &t
	}
	return &c, nil
}

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var l model.Lead
	var level, stage, confidence string
	var enriched sql.NullTime
	var tags sql.NullString
	err := row.Scan(&l.ID, &l.Email, &l.CompanyID, &l.FirstName, &l.LastName, &l.JobTitle, &l.LinkedInURL,
		&level, &l.SessionCount, &l.Score, &stage, &l.EnrichmentSource, &confidence,
		&enriched, &l.CreatedAt, &l.UpdatedAt, &tags)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.HierarchicalLevel = model.HierarchicalLevel(level)
	l.Stage = model.Stage(stage)
	l.EnrichmentConfidence = model.Confidence(confidence)
	if enriched.Valid {
		t := enriched.Time
		l.EnrichedAt = &t
	}
	if tags.Valid && tags.String != "" {
		l.Tags = strings.Split(tags.String, "\x1f")
		sort.Strings(l.Tags)
	}
	return &l, nil
}
