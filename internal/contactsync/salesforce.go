package contactsync

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leads-cli/pkg/salesforce"
)

// SalesforceTarget upserts members as Salesforce Leads matched by email.
type SalesforceTarget struct {
	client     salesforce.Client
	stageField string
}

// NewSalesforceTarget creates a Salesforce target. stageField names the
// custom Lead field that receives the stage; empty skips it.
func NewSalesforceTarget(client salesforce.Client, stageField string) *SalesforceTarget {
	return &SalesforceTarget{client: client, stageField: stageField}
}

// Name implements Target.
func (t *SalesforceTarget) Name() string { return "salesforce" }

// Push implements Target.
func (t *SalesforceTarget) Push(ctx context.Context, members []Member) ([]Result, error) {
	upserts := make([]salesforce.LeadUpsert, len(members))
	for i, m := range members {
		upserts[i] = t.toUpsert(m)
	}

	res, err := salesforce.UpsertLeads(ctx, t.client, upserts)
	if err != nil {
		return nil, eris.Wrap(err, "salesforce: upsert leads")
	}

	out := make([]Result, len(res))
	for i, r := range res {
		switch {
		case r.Err != "":
			out[i] = Result{Email: r.Email, Status: StatusError, Error: r.Err}
		case r.Created:
			out[i] = Result{Email: r.Email, Status: StatusCreated}
		default:
			out[i] = Result{Email: r.Email, Status: StatusUpdated}
		}
	}
	return out, nil
}

// toUpsert builds the Lead fields. LastName and Company are required on
// create, so they fall back to the email and domain.
func (t *SalesforceTarget) toUpsert(m Member) salesforce.LeadUpsert {
	fields := map[string]any{}
	if m.FirstName != "" {
		fields["FirstName"] = m.FirstName
	}
	if m.JobTitle != "" {
		fields["Title"] = m.JobTitle
	}
	if t.stageField != "" && m.Stage != "" {
		fields[t.stageField] = string(m.Stage)
	}

	last := m.LastName
	if last == "" {
		last = m.Email
	}
	company := m.Company
	if company == "" {
		company = m.Domain
	}
	return salesforce.LeadUpsert{
		Email:        m.Email,
		Fields:       fields,
		CreateFields: map[string]any{"LastName": last, "Company": company},
	}
}
