package salesforce

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockClient is a function-field Client for upsert tests. Unset collection
// functions succeed for every record.
type mockClient struct {
	queryFn            func(ctx context.Context, soql string, out any) error
	insertCollectionFn func(ctx context.Context, object string, records []map[string]any) ([]CollectionResult, error)
	updateCollectionFn func(ctx context.Context, object string, records []CollectionRecord) ([]CollectionResult, error)
}

var (
	_ Client = (*mockClient)(nil)
	_ Client = (*restClient)(nil)
)

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn == nil {
		return nil
	}
	return m.queryFn(ctx, soql, out)
}

func (m *mockClient) InsertCollection(ctx context.Context, object string, records []map[string]any) ([]CollectionResult, error) {
	if m.insertCollectionFn != nil {
		return m.insertCollectionFn(ctx, object, records)
	}
	out := make([]CollectionResult, 0, len(records))
	for i := range records {
		out = append(out, CollectionResult{ID: fmt.Sprintf("00QNEW%d", i), Success: true})
	}
	return out, nil
}

func (m *mockClient) UpdateCollection(ctx context.Context, object string, records []CollectionRecord) ([]CollectionResult, error) {
	if m.updateCollectionFn != nil {
		return m.updateCollectionFn(ctx, object, records)
	}
	out := make([]CollectionResult, 0, len(records))
	for _, r := range records {
		out = append(out, CollectionResult{ID: r.ID, Success: true})
	}
	return out, nil
}

func TestWithRateLimit(t *testing.T) {
	tests := []struct {
		name      string
		rps       float64
		wantNil   bool
		wantBurst int
	}{
		{name: "whole rate sets burst", rps: 10, wantBurst: 10},
		{name: "fractional rate bursts one", rps: 0.5, wantBurst: 1},
		{name: "zero disables", rps: 0, wantNil: true},
		{name: "negative disables", rps: -3, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(nil, WithRateLimit(tt.rps)).(*restClient)
			if tt.wantNil {
				assert.Nil(t, c.limiter)
				return
			}
			require.NotNil(t, c.limiter)
			assert.Equal(t, rate.Limit(tt.rps), c.limiter.Limit())
			assert.Equal(t, tt.wantBurst, c.limiter.Burst())
		})
	}
}

func TestThrottle_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	limited := &restClient{limiter: rate.NewLimiter(rate.Every(time.Hour), 0)}
	assert.Error(t, limited.throttle(ctx))

	unlimited := &restClient{}
	assert.ErrorIs(t, unlimited.throttle(ctx), context.Canceled)
}

func TestCollectionRecord_Values(t *testing.T) {
	rec := CollectionRecord{ID: "00Q1", Fields: map[string]any{"Title": "CFO", "Lead_Stage__c": "high"}}

	assert.Equal(t, map[string]any{"Id": "00Q1", "Title": "CFO", "Lead_Stage__c": "high"}, rec.values())
	assert.NotContains(t, rec.Fields, "Id")
}

func TestCollectionResult_Message(t *testing.T) {
	assert.Equal(t, "", CollectionResult{Success: true}.Message())
	assert.Equal(t, "unknown error", CollectionResult{}.Message())
	assert.Equal(t, "DUPLICATE_VALUE; Email", CollectionResult{Errors: []string{"DUPLICATE_VALUE", "Email"}}.Message())
}
