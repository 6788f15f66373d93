package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertLeads_Empty(t *testing.T) {
	res, err := UpsertLeads(context.Background(), &mockClient{}, nil)
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestUpsertLeads_SplitsUpdatesAndInserts(t *testing.T) {
	var updated []CollectionRecord
	var inserted []map[string]any
	mc := &mockClient{
		queryFn: func(_ context.Context, _ string, out any) error {
			*out.(*[]Lead) = []Lead{{ID: "00QOLD", Email: "old@acme.com"}}
			return nil
		},
		updateCollectionFn: func(_ context.Context, obj string, recs []CollectionRecord) ([]CollectionResult, error) {
			assert.Equal(t, "Lead", obj)
			updated = recs
			return []CollectionResult{{ID: "00QOLD", Success: true}}, nil
		},
		insertCollectionFn: func(_ context.Context, obj string, recs []map[string]any) ([]CollectionResult, error) {
			assert.Equal(t, "Lead", obj)
			inserted = recs
			return []CollectionResult{{Success: false, Errors: []string{"REQUIRED_FIELD_MISSING", "Company"}}}, nil
		},
	}

	res, err := UpsertLeads(context.Background(), mc, []LeadUpsert{
		{Email: "new@acme.com", Fields: map[string]any{"Lead_Stage__c": "high"}, CreateFields: map[string]any{"LastName": "New"}},
		{Email: "old@acme.com", Fields: map[string]any{"Lead_Stage__c": "low"}},
	})
	require.NoError(t, err)
	require.Len(t, res, 2)

	require.Len(t, updated, 1)
	assert.Equal(t, "00QOLD", updated[0].ID)
	assert.NotContains(t, updated[0].Fields, "LastName")

	require.Len(t, inserted, 1)
	assert.Equal(t, "new@acme.com", inserted[0]["Email"])
	assert.Equal(t, "New", inserted[0]["LastName"])
	assert.Equal(t, "high", inserted[0]["Lead_Stage__c"])

	assert.Equal(t, "new@acme.com", res[0].Email)
	assert.Equal(t, "REQUIRED_FIELD_MISSING; Company", res[0].Err)
	assert.Equal(t, "00QOLD", res[1].ID)
	assert.False(t, res[1].Created)
}

func TestUpsertLeads_Batches(t *testing.T) {
	var sizes []int
	mc := &mockClient{
		insertCollectionFn: func(_ context.Context, _ string, recs []map[string]any) ([]CollectionResult, error) {
			sizes = append(sizes, len(recs))
			out := make([]CollectionResult, len(recs))
			for i := range out {
				out[i] = CollectionResult{ID: "x", Success: true}
			}
			return out, nil
		},
	}

	leads := make([]LeadUpsert, maxBatchSize+5)
	for i := range leads {
		leads[i] = LeadUpsert{Email: "a@b.com"}
	}
	res, err := UpsertLeads(context.Background(), mc, leads)
	require.NoError(t, err)
	assert.Equal(t, []int{maxBatchSize, 5}, sizes)
	assert.True(t, res[len(res)-1].Created)
}

func TestUpsertLeads_QueryError(t *testing.T) {
	mc := &mockClient{queryFn: func(_ context.Context, _ string, _ any) error {
		return errors.New("session expired")
	}}
	_, err := UpsertLeads(context.Background(), mc, []LeadUpsert{{Email: "a@b.com"}})
	assert.Error(t, err)
}
