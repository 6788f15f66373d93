package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Jane.Doe@Acme.COM", "jane.doe@acme.com", false},
		{"  bob@example.org  ", "bob@example.org", false},
		{"mailto:ceo@bigcorp.com", "ceo@bigcorp.com", false},
		{"<ops@acme.io>", "ops@acme.io", false},
		{"", "", true},
		{"no-at-sign", "", true},
		{"@acme.com", "", true},
		{"a@b@acme.com", "", true},
		{"jane@localhost", "", true},
		{"jane doe@acme.com", "", true},
		{"jane@acme..com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeEmail(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDomainFromEmail(t *testing.T) {
	d, err := DomainFromEmail("Someone@Sub.Example.co.uk")
	require.NoError(t, err)
	assert.Equal(t, "sub.example.co.uk", d)

	_, err = DomainFromEmail("broken")
	assert.Error(t, err)
}

func TestNormalizeDomain(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"https://www.Acme.com/about?x=1": "acme.com",
		"acme.com":                       "acme.com",
		"http://acme.com:8080":           "acme.com",
		"WWW.EXAMPLE.ORG.":               "example.org",
		"user@mail.example.org":          "mail.example.org",
		"not a domain":                   "",
		"":                               "",
		"localhost":                      "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeDomain(in), in)
	}
}

func TestNormalizeTag(t *testing.T) {
	assert.Equal(t, "webinar 2024", NormalizeTag("  Webinar 2024 "))
	assert.Equal(t, NormalizeTag("VIP"), NormalizeTag("vip"))
}

func TestLeadHasTag(t *testing.T) {
	l := Lead{Tags: []string{"vip", "webinar"}}
	assert.True(t, l.HasTag("VIP"))
	assert.False(t, l.HasTag("trial"))
}

func TestLeadMissingPersonFields(t *testing.T) {
	l := Lead{FirstName: "A", LastName: "B", JobTitle: "CEO"}
	assert.True(t, l.MissingPersonFields())
	l.LinkedInURL = "https://linkedin.com/in/ab"
	assert.False(t, l.MissingPersonFields())
	assert.Equal(t, "A B", l.FullName())
}

func TestStageRank(t *testing.T) {
	for i, s := range Stages {
		assert.Equal(t, i, s.Rank())
		assert.True(t, s.Valid())
	}
	assert.Equal(t, -1, Stage("platinum").Rank())
	assert.Less(t, StageLow.Rank(), StageEnterprise.Rank())
}

func TestConfidenceRank(t *testing.T) {
	assert.Less(t, ConfidenceNone.Rank(), ConfidenceSearchOnly.Rank())
	assert.Less(t, ConfidenceSearchOnly.Rank(), ConfidenceAIConfirmed.Rank())
	assert.Equal(t, ConfidenceNone.Rank(), Confidence("").Rank())
}

func TestParseCompanyAttr(t *testing.T) {
	a, err := ParseCompanyAttr("tech_stack")
	require.NoError(t, err)
	assert.Equal(t, AttrTechStack, a)

	_, err = ParseCompanyAttr("pdl_favorite_color")
	assert.Error(t, err)
}

func TestAttributesFill(t *testing.T) {
	attrs := Attributes{AttrCity: "Austin", AttrPhone: ""}
	changed := attrs.Fill(Attributes{
		AttrCity:    "Dallas",
		AttrPhone:   "555-0100",
		AttrCountry: "US",
		AttrState:   "",
	}, false)

	assert.Equal(t, []CompanyAttr{AttrCountry, AttrPhone}, changed)
	assert.Equal(t, "Austin", attrs.Get(AttrCity))
	assert.Equal(t, "555-0100", attrs.Get(AttrPhone))
	assert.NotContains(t, attrs, AttrState)

	changed = attrs.Fill(Attributes{AttrCity: "Dallas"}, true)
	assert.Equal(t, []CompanyAttr{AttrCity}, changed)
	assert.Equal(t, "Dallas", attrs.Get(AttrCity))
}

func TestAttributesUnmarshalRejectsUnknownKeys(t *testing.T) {
	var attrs Attributes
	require.NoError(t, json.Unmarshal([]byte(`{"city":"Austin","size":"51-200"}`), &attrs))
	assert.Equal(t, "51-200", attrs.Get(AttrSize))

	err := json.Unmarshal([]byte(`{"pdl_city":"Austin"}`), &attrs)
	assert.Error(t, err)
}

func TestEnrichmentResultSteps(t *testing.T) {
	r := EnrichmentResult{}
	r.Record(StepOutcome{Step: StepSearch, Status: StepOK})
	r.Record(StepOutcome{Step: StepSelect, Status: StepDisabled})
	r.Record(StepOutcome{Step: StepExtract, Status: StepSkipped})

	assert.False(t, r.Failed())
	assert.Equal(t, []StepName{StepSelect}, r.Disabled())

	s, ok := r.Step(StepSearch)
	require.True(t, ok)
	assert.Equal(t, StepOK, s.Status)

	r.Record(StepOutcome{Step: StepCompany, Status: StepFailed})
	assert.True(t, r.Failed())
}

func TestBatchReportCountsAndWarnings(t *testing.T) {
	r := BatchReport{Rows: []RowResult{
		{Outcome: OutcomeCreated}, {Outcome: OutcomeCreated}, {Outcome: OutcomeRejected},
	}}
	c := r.Counts()
	assert.Equal(t, 2, c[OutcomeCreated])
	assert.Equal(t, 1, c[OutcomeRejected])

	r.AddWarning("search disabled")
	r.AddWarning("search disabled")
	assert.Len(t, r.Warnings, 1)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `invalid email "x": expected exactly one @`,
		(&InvalidInputError{Field: "email", Value: "x", Reason: "expected exactly one @"}).Error())
	assert.Equal(t, "search disabled: search_api_key is not configured",
		(&ConfigurationError{Capability: "search", Setting: "search_api_key"}).Error())

	conflict := &PersistenceConflictError{Entity: "company", Key: "acme.com"}
	assert.True(t, IsConflict(conflict))
	assert.True(t, IsConfiguration(&ConfigurationError{}))
}
