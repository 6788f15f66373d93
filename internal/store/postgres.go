package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leads-cli/internal/db"
	"github.com/sells-group/leads-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id          TEXT PRIMARY KEY,
	domain      TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL DEFAULT '',
	industry    TEXT NOT NULL DEFAULT '',
	attributes  JSONB NOT NULL DEFAULT '{}'::jsonb,
	enriched_at TIMESTAMPTZ,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
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
	enriched_at           TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
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
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	email      TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_company_id ON leads(company_id);
CREATE INDEX IF NOT EXISTS idx_leads_lead_score ON leads(lead_score);
CREATE INDEX IF NOT EXISTS idx_lead_tags_tag_id ON lead_tags(tag_id);
CREATE INDEX IF NOT EXISTS idx_company_notes_company_id ON company_notes(company_id);
CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Companies ---

const pgCompanyCols = `c.id, c.domain, c.name, c.industry, c.attributes, c.enriched_at, c.created_at, c.updated_at`

func (s *PostgresStore) CreateCompany(ctx context.Context, domain, name string) (*model.Company, error) {
	now := time.Now().UTC()
	c := &model.Company{
		ID:         uuid.New().String(),
		Domain:     domain,
		Name:       name,
		Attributes: model.Attributes{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO companies (id, domain, name, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Domain, c.Name, now, now,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, &model.PersistenceConflictError{Entity: "company", Key: domain, Err: err}
		}
		return nil, eris.Wrapf(err, "postgres: insert company %s", domain)
	}
	return c, nil
}

func (s *PostgresStore) GetCompany(ctx context.Context, id string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgCompanyCols+` FROM companies c WHERE c.id = $1`, id)
	c, err := scanPgCompany(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company %s", id)
	}
	return c, nil
}

func (s *PostgresStore) GetCompanyByDomain(ctx context.Context, domain string) (*model.Company, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgCompanyCols+` FROM companies c WHERE c.domain = $1`, domain)
	c, err := scanPgCompany(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get company by domain %s", domain)
	}
	return c, nil
}

func (s *PostgresStore) UpdateCompany(ctx context.Context, c *model.Company) error {
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal attributes")
	}
	c.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE companies SET name = $1, industry = $2, attributes = $3, enriched_at = $4, updated_at = $5 WHERE id = $6`,
		c.Name, c.Industry, attrs, c.EnrichedAt, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update company %s", c.ID)
	}
	return checkTag(tag, "company", c.ID)
}

// DeleteCompany removes the company. Notes cascade and leads are detached by
// the foreign keys.
func (s *PostgresStore) DeleteCompany(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM companies WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete company %s", id)
	}
	return checkTag(tag, "company", id)
}

func (s *PostgresStore) ListCompanies(ctx context.Context, filter CompanyFilter) ([]CompanySummary, error) {
	b := &builder{numbered: true}
	companyWhere(b, filter)
	query := `SELECT ` + pgCompanyCols + `, (SELECT COUNT(*) FROM leads l WHERE l.company_id = c.id) AS lead_count FROM companies c` +
		b.whereSQL() + ` ORDER BY lead_count DESC, c.domain ASC` + b.page(filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list companies")
	}
	defer rows.Close()

	var out []CompanySummary
	for rows.Next() {
		var cs CompanySummary
		var count int64
		c, err := scanPgCompany(rows, &count)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan company")
		}
		cs.Company = *c
		cs.LeadCount = int(count)
		out = append(out, cs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list companies iterate")
}

// --- Leads ---

const pgLeadCols = `l.id, l.email, COALESCE(l.company_id, ''), l.first_name, l.last_name, l.job_title, l.linkedin_url,
	l.hierarchical_level, l.session_count, l.lead_score, l.lead_stage, l.enrichment_source, l.enrichment_confidence,
	l.enriched_at, l.created_at, l.updated_at,
	ARRAY(SELECT t.name FROM lead_tags lt JOIN tags t ON t.id = lt.tag_id WHERE lt.lead_id = l.id ORDER BY t.name)`

func (s *PostgresStore) CreateLead(ctx context.Context, lead *model.Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	lead.CreatedAt, lead.UpdatedAt = now, now
	lead.Tags = normalizeTags(lead.Tags)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin create lead")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO leads (id, email, company_id, first_name, last_name, job_title, linkedin_url,
			hierarchical_level, session_count, lead_score, lead_stage, enrichment_source, enrichment_confidence,
			enriched_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		lead.ID, lead.Email, nullIfEmpty(lead.CompanyID), lead.FirstName, lead.LastName, lead.JobTitle, lead.LinkedInURL,
		string(lead.HierarchicalLevel), lead.SessionCount, lead.Score, string(lead.Stage), lead.EnrichmentSource,
		string(lead.EnrichmentConfidence), lead.EnrichedAt, now, now,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return &model.PersistenceConflictError{Entity: "lead", Key: lead.Email, Err: err}
		}
		return eris.Wrapf(err, "postgres: insert lead %s", lead.Email)
	}
	if err := pgSetTags(ctx, tx, lead.ID, lead.Tags); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit create lead")
}

func (s *PostgresStore) GetLead(ctx context.Context, id string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgLeadCols+leadFrom+` WHERE l.id = $1`, id)
	l, err := scanPgLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %s", id)
	}
	return l, nil
}

func (s *PostgresStore) GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgLeadCols+leadFrom+` WHERE l.email = $1`, email)
	l, err := scanPgLead(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead by email %s", email)
	}
	return l, nil
}

// SaveLead writes every mutable column and replaces the lead's tag set.
func (s *PostgresStore) SaveLead(ctx context.Context, lead *model.Lead) error {
	lead.UpdatedAt = time.Now().UTC()
	lead.Tags = normalizeTags(lead.Tags)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save lead")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE leads SET company_id = $1, first_name = $2, last_name = $3, job_title = $4, linkedin_url = $5,
			hierarchical_level = $6, session_count = $7, lead_score = $8, lead_stage = $9, enrichment_source = $10,
			enrichment_confidence = $11, enriched_at = $12, updated_at = $13
		 WHERE id = $14`,
		nullIfEmpty(lead.CompanyID), lead.FirstName, lead.LastName, lead.JobTitle, lead.LinkedInURL,
		string(lead.HierarchicalLevel), lead.SessionCount, lead.Score, string(lead.Stage), lead.EnrichmentSource,
		string(lead.EnrichmentConfidence), lead.EnrichedAt, lead.UpdatedAt, lead.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %s", lead.ID)
	}
	if err := checkTag(tag, "lead", lead.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM lead_tags WHERE lead_id = $1`, lead.ID); err != nil {
		return eris.Wrapf(err, "postgres: clear tags of lead %s", lead.ID)
	}
	if err := pgSetTags(ctx, tx, lead.ID, lead.Tags); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save lead")
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter LeadFilter) ([]model.Lead, error) {
	b := &builder{numbered: true}
	leadWhere(b, filter)
	query := `SELECT ` + pgLeadCols + leadFrom + b.whereSQL() + leadOrder(filter.Sort) + b.page(filter.Limit, filter.Offset)

	rows, err := s.pool.Query(ctx, query, b.args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanPgLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func (s *PostgresStore) LeadStats(ctx context.Context, filter LeadFilter) (*LeadStats, error) {
	b := &builder{numbered: true}
	leadWhere(b, filter)
	var count int64
	var avg float64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(AVG(l.lead_score), 0)::float8`+leadFrom+b.whereSQL(), b.args...,
	).Scan(&count, &avg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lead stats")
	}
	return &LeadStats{Count: int(count), AverageScore: avg}, nil
}

func (s *PostgresStore) CountLeadsByCompany(ctx context.Context, companyID string) (int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM leads WHERE company_id = $1`, companyID).Scan(&n)
	return int(n), eris.Wrapf(err, "postgres: count leads of company %s", companyID)
}

// --- Tags ---

// TagLeads attaches the tag to every listed lead and returns how many leads
// gained it. Unknown lead IDs are ignored.
func (s *PostgresStore) TagLeads(ctx context.Context, leadIDs []string, name string) (int, error) {
	name = model.NormalizeTag(name)
	if name == "" {
		return 0, &model.InvalidInputError{Field: "tag", Reason: "empty name"}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin tag leads")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tagID, err := pgEnsureTag(ctx, tx, name)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx,
		`INSERT INTO lead_tags (lead_id, tag_id) SELECT id, $1 FROM leads WHERE id = ANY($2) ON CONFLICT DO NOTHING`,
		tagID, leadIDs,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: tag leads with %s", name)
	}
	return int(tag.RowsAffected()), eris.Wrap(tx.Commit(ctx), "postgres: commit tag leads")
}

func (s *PostgresStore) ListTags(ctx context.Context) ([]model.Tag, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM tags ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list tags")
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan tag")
		}
		tags = append(tags, t)
	}
	return tags, eris.Wrap(rows.Err(), "postgres: list tags iterate")
}

// --- Notes ---

func (s *PostgresStore) AddNote(ctx context.Context, companyID, body string) (*model.CompanyNote, error) {
	now := time.Now().UTC()
	n := &model.CompanyNote{ID: uuid.New().String(), CompanyID: companyID, Body: body, CreatedAt: now, UpdatedAt: now}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO company_notes (id, company_id, body, created_at, updated_at) SELECT $1, id, $2, $3, $4 FROM companies WHERE id = $5`,
		n.ID, body, now, now, companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: add note to company %s", companyID)
	}
	if err := checkTag(tag, "company", companyID); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, id, body string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE company_notes SET body = $1, updated_at = $2 WHERE id = $3`, body, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update note %s", id)
	}
	return checkTag(tag, "note", id)
}

func (s *PostgresStore) DeleteNote(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM company_notes WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete note %s", id)
	}
	return checkTag(tag, "note", id)
}

func (s *PostgresStore) ListNotes(ctx context.Context, companyID string) ([]model.CompanyNote, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company_id, body, created_at, updated_at FROM company_notes WHERE company_id = $1 ORDER BY created_at DESC, id`,
		companyID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list notes of company %s", companyID)
	}
	defer rows.Close()

	var notes []model.CompanyNote
	for rows.Next() {
		var n model.CompanyNote
		if err := rows.Scan(&n.ID, &n.CompanyID, &n.Body, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan note")
		}
		notes = append(notes, n)
	}
	return notes, eris.Wrap(rows.Err(), "postgres: list notes iterate")
}

// --- Enrichment cache ---

func (s *PostgresStore) GetCachedEnrichment(ctx context.Context, email string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM enrichment_cache WHERE email = $1 AND expires_at > now()`, email,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached enrichment")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedEnrichment(ctx context.Context, email string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO enrichment_cache (email, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE SET data = EXCLUDED.data, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		email, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached enrichment")
}

func (s *PostgresStore) DeleteExpiredEnrichments(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM enrichment_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired enrichments")
	}
	return int(tag.RowsAffected()), nil
}

// helpers

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func pgEnsureTag(ctx context.Context, tx pgx.Tx, name string) (string, error) {
	if _, err := tx.Exec(ctx,
		`INSERT INTO tags (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`, uuid.New().String(), name,
	); err != nil {
		return "", eris.Wrapf(err, "postgres: insert tag %s", name)
	}
	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM tags WHERE name = $1`, name).Scan(&id); err != nil {
		return "", eris.Wrapf(err, "postgres: read tag %s", name)
	}
	return id, nil
}

func pgSetTags(ctx context.Context, tx pgx.Tx, leadID string, tags []string) error {
	for _, name := range tags {
		tagID, err := pgEnsureTag(ctx, tx, name)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO lead_tags (lead_id, tag_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, leadID, tagID,
		); err != nil {
			return eris.Wrapf(err, "postgres: attach tag %s", name)
		}
	}
	return nil
}

func scanPgCompany(row pgx.Row, extra ...any) (*model.Company, error) {
	var c model.Company
	var attrs []byte
	dest := append([]any{&c.ID, &c.Domain, &c.Name, &c.Industry, &attrs, &c.EnrichedAt, &c.CreatedAt, &c.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
			return nil, eris.Wrap(err, "unmarshal attributes")
		}
	}
	if c.Attributes == nil {
		c.Attributes = model.Attributes{}
	}
	return &c, nil
}

func scanPgLead(row pgx.Row) (*model.Lead, error) {
	var l model.Lead
	var level, stage, confidence string
	var sessions, score int32
	err := row.Scan(&l.ID, &l.Email, &l.CompanyID, &l.FirstName, &l.LastName, &l.JobTitle, &l.LinkedInURL,
		&level, &sessions, &score, &stage, &l.EnrichmentSource, &confidence,
		&l.EnrichedAt, &l.CreatedAt, &l.UpdatedAt, &l.Tags)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	l.HierarchicalLevel = model.HierarchicalLevel(level)
	l.Stage = model.Stage(stage)
	l.EnrichmentConfidence = model.Confidence(confidence)
	l.SessionCount = int(sessions)
	l.Score = int(score)
	if len(l.Tags) == 0 {
		l.Tags = nil
	}
	return &l, nil
}
