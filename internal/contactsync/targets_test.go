package contactsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leads-cli/internal/config"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/pkg/mailchimp"
	"github.com/sells-group/leads-cli/pkg/mailchimp/mocks"
	"github.com/sells-group/leads-cli/pkg/salesforce"
)

func mailchimpConfig() config.MailchimpConfig {
	return config.MailchimpConfig{StageMergeField: "STAGE", ScoreMergeField: "SCORE", BatchSize: 2}
}

func noRetry() resilience.RetryPolicy { return resilience.RetryPolicy{MaxAttempts: 1} }

func TestMailchimpTarget_Push(t *testing.T) {
	mc := mocks.NewMockClient(t)
	target := NewMailchimpTarget(mc, "list1", mailchimpConfig(), noRetry())

	members := []Member{
		{Email: "new@acme.com", FirstName: "Nia", Stage: model.StageHigh, Score: 50, Tags: []string{"vip"}},
		{Email: "old@acme.com", LastName: "Olsen", Stage: model.StageLow, Score: 10, Tags: []string{"webinar"}},
		{Email: "bad@acme.com", Tags: []string{}},
	}

	mc.On("BatchSubscribe", mock.Anything, "list1", mock.MatchedBy(func(ms []mailchimp.Member) bool {
		return len(ms) == 2 && ms[0].EmailAddress == "new@acme.com"
	})).Return(&mailchimp.BatchResult{
		NewMembers:     []mailchimp.MemberRef{{ID: "1", EmailAddress: "new@acme.com"}},
		UpdatedMembers: []mailchimp.MemberRef{{ID: "2", EmailAddress: "OLD@acme.com"}},
	}, nil).Once()
	mc.On("BatchSubscribe", mock.Anything, "list1", mock.MatchedBy(func(ms []mailchimp.Member) bool {
		return len(ms) == 1 && ms[0].EmailAddress == "bad@acme.com"
	})).Return(&mailchimp.BatchResult{
		Errors: []mailchimp.MemberError{{EmailAddress: "bad@acme.com", Error: "looks fake", ErrorCode: "ERROR_CONTACT_EXISTS"}},
	}, nil).Once()
	mc.On("UpdateTags", mock.Anything, "list1", "old@acme.com", []mailchimp.TagUpdate{{Name: "webinar", Status: "active"}}).
		Return(nil).Once()

	results, err := target.Push(context.Background(), members)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, Result{Email: "new@acme.com", Status: StatusCreated}, results[0])
	assert.Equal(t, Result{Email: "old@acme.com", Status: StatusUpdated}, results[1])
	assert.Equal(t, StatusError, results[2].Status)
	assert.Contains(t, results[2].Error, "looks fake")
}

func TestMailchimpTarget_MergeFields(t *testing.T) {
	target := NewMailchimpTarget(nil, "list1", mailchimpConfig(), noRetry())
	m := target.toMember(Member{Email: "a@acme.com", FirstName: "Ann", Stage: model.StageVeryHigh, Score: 65, Tags: []string{"vip"}})

	assert.Equal(t, "subscribed", m.StatusIfNew)
	assert.Equal(t, map[string]any{"FNAME": "Ann", "STAGE": "very_high", "SCORE": 65}, m.MergeFields)
	assert.Equal(t, []string{"vip"}, m.Tags)
}

func TestMailchimpTarget_BatchSizeCapped(t *testing.T) {
	target := NewMailchimpTarget(nil, "list1", config.MailchimpConfig{BatchSize: 5000}, noRetry())
	assert.Equal(t, mailchimp.MaxBatchSize, target.batchSize)
}

func TestMailchimpTarget_BatchError(t *testing.T) {
	mc := mocks.NewMockClient(t)
	target := NewMailchimpTarget(mc, "list1", mailchimpConfig(), noRetry())
	mc.On("BatchSubscribe", mock.Anything, "list1", mock.Anything).
		Return(nil, &mailchimp.APIError{StatusCode: 401, Title: "API Key Invalid"}).Once()

	results, err := target.Push(context.Background(), []Member{{Email: "a@acme.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API Key Invalid")
	require.Len(t, results, 1)
	assert.Equal(t, StatusError, results[0].Status)
}

func TestMailchimpTarget_FailedBatchDoesNotStopLaterBatches(t *testing.T) {
	mc := mocks.NewMockClient(t)
	target := NewMailchimpTarget(mc, "list1", mailchimpConfig(), noRetry())

	mc.On("BatchSubscribe", mock.Anything, "list1", mock.MatchedBy(func(ms []mailchimp.Member) bool {
		return ms[0].EmailAddress == "a@acme.com"
	})).Return(nil, &mailchimp.APIError{StatusCode: 400, Title: "Invalid Resource"}).Once()
	mc.On("BatchSubscribe", mock.Anything, "list1", mock.MatchedBy(func(ms []mailchimp.Member) bool {
		return ms[0].EmailAddress == "c@acme.com"
	})).Return(&mailchimp.BatchResult{
		NewMembers: []mailchimp.MemberRef{{EmailAddress: "c@acme.com"}},
	}, nil).Once()

	results, err := target.Push(context.Background(), []Member{
		{Email: "a@acme.com"}, {Email: "b@acme.com"}, {Email: "c@acme.com"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 batches failed")
	require.Len(t, results, 3)
	assert.Equal(t, StatusError, results[0].Status)
	assert.Contains(t, results[0].Error, "Invalid Resource")
	assert.Equal(t, StatusError, results[1].Status)
	assert.Equal(t, Result{Email: "c@acme.com", Status: StatusCreated}, results[2])
}

func TestMailchimpTarget_TagFailureIsMemberError(t *testing.T) {
	mc := mocks.NewMockClient(t)
	target := NewMailchimpTarget(mc, "list1", mailchimpConfig(), noRetry())
	mc.On("BatchSubscribe", mock.Anything, "list1", mock.Anything).Return(&mailchimp.BatchResult{
		UpdatedMembers: []mailchimp.MemberRef{{EmailAddress: "a@acme.com"}},
	}, nil).Once()
	mc.On("UpdateTags", mock.Anything, "list1", "a@acme.com", mock.Anything).Return(errors.New("tag limit")).Once()

	results, err := target.Push(context.Background(), []Member{{Email: "a@acme.com", Tags: []string{"vip"}}})
	require.NoError(t, err)
	assert.Equal(t, StatusError, results[0].Status)
}

// fakeSalesforce answers lead lookups from a fixed set of existing emails.
type fakeSalesforce struct {
	existing map[string]string
	inserted []map[string]any
	updated  []salesforce.CollectionRecord
}

func (f *fakeSalesforce) Query(_ context.Context, _ string, out any) error {
	leads := out.(*[]salesforce.Lead)
	for email, id := range f.existing {
		*leads = append(*leads, salesforce.Lead{ID: id, Email: email})
	}
	return nil
}

func (f *fakeSalesforce) InsertCollection(_ context.Context, _ string, records []map[string]any) ([]salesforce.CollectionResult, error) {
	f.inserted = append(f.inserted, records...)
	out := make([]salesforce.CollectionResult, len(records))
	for i := range records {
		out[i] = salesforce.CollectionResult{ID: "00QNEW", Success: true}
	}
	return out, nil
}

func (f *fakeSalesforce) UpdateCollection(_ context.Context, _ string, records []salesforce.CollectionRecord) ([]salesforce.CollectionResult, error) {
	f.updated = append(f.updated, records...)
	out := make([]salesforce.CollectionResult, len(records))
	for i, r := range records {
		out[i] = salesforce.CollectionResult{ID: r.ID, Success: true}
	}
	return out, nil
}

func TestSalesforceTarget_Push(t *testing.T) {
	sf := &fakeSalesforce{existing: map[string]string{"old@acme.com": "00QOLD"}}
	target := NewSalesforceTarget(sf, "Lead_Stage__c")

	results, err := target.Push(context.Background(), []Member{
		{Email: "new@acme.com", Domain: "acme.com", JobTitle: "CTO", Stage: model.StageHigh},
		{Email: "old@acme.com", FirstName: "Olga", LastName: "Berg", Company: "Acme", Stage: model.StageLow},
	})
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{Email: "new@acme.com", Status: StatusCreated},
		{Email: "old@acme.com", Status: StatusUpdated},
	}, results)

	require.Len(t, sf.inserted, 1)
	assert.Equal(t, "new@acme.com", sf.inserted[0]["LastName"])
	assert.Equal(t, "acme.com", sf.inserted[0]["Company"])
	assert.Equal(t, "CTO", sf.inserted[0]["Title"])
	assert.Equal(t, "high", sf.inserted[0]["Lead_Stage__c"])

	require.Len(t, sf.updated, 1)
	assert.Equal(t, "00QOLD", sf.updated[0].ID)
	assert.Equal(t, "Olga", sf.updated[0].Fields["FirstName"])
	assert.NotContains(t, sf.updated[0].Fields, "LastName")
}
