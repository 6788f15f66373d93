package mailchimp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriberHash(t *testing.T) {
	// Mailchimp documents this hash for "Urist.McVankab@freddiesjokes.com".
	assert.Equal(t, "62eeb292278cc15f5817cb78f7790b08", SubscriberHash("urist.mcvankab@freddiesjokes.com"))
	assert.Equal(t, SubscriberHash("a@b.com"), SubscriberHash("  A@B.com "))
}

func TestDataCenter(t *testing.T) {
	assert.Equal(t, "us21", DataCenter("0123abcd-us21"))
	assert.Equal(t, "", DataCenter("nodash"))
	assert.Equal(t, "", DataCenter("trailing-"))
}

func TestNewClient_RequiresDataCenter(t *testing.T) {
	_, err := NewClient("nodash")
	assert.Error(t, err)

	_, err = NewClient("nodash", WithBaseURL("http://localhost"))
	assert.NoError(t, err)
}

func TestBatchSubscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/lists/aud1", r.URL.Path)
		_, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key-us1", pass)

		var body struct {
			Members        []Member `json:"members"`
			UpdateExisting bool     `json:"update_existing"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, body.UpdateExisting)
		require.Len(t, body.Members, 2)
		assert.Equal(t, "high", body.Members[0].MergeFields["STAGE"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"new_members":[{"id":"x","email_address":"a@acme.com"}],
			"updated_members":[],
			"errors":[{"email_address":"b@acme.com","error":"looks fake","error_code":"ERROR_GENERIC"}],
			"total_created":1,"total_updated":0,"error_count":1
		}`))
	}))
	defer server.Close()

	c, err := NewClient("key-us1", WithBaseURL(server.URL))
	require.NoError(t, err)

	res, err := c.BatchSubscribe(context.Background(), "aud1", []Member{
		{EmailAddress: "a@acme.com", StatusIfNew: "subscribed", MergeFields: map[string]any{"STAGE": "high"}},
		{EmailAddress: "b@acme.com", StatusIfNew: "subscribed"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalCreated)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "b@acme.com", res.Errors[0].EmailAddress)
}

func TestBatchSubscribe_TooLarge(t *testing.T) {
	c, err := NewClient("k-us1")
	require.NoError(t, err)
	_, err = c.BatchSubscribe(context.Background(), "aud", make([]Member, MaxBatchSize+1))
	assert.Error(t, err)
}

func TestUpdateTags(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lists/aud1/members/"+SubscriberHash("a@acme.com")+"/tags", r.URL.Path)
		var body struct {
			Tags []TagUpdate `json:"tags"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []TagUpdate{{Name: "webinar", Status: "active"}}, body.Tags)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, err := NewClient("k", WithBaseURL(server.URL))
	require.NoError(t, err)
	require.NoError(t, c.UpdateTags(context.Background(), "aud1", "a@acme.com", []TagUpdate{{Name: "webinar", Status: "active"}}))
}

func TestAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"title":"Too Many Requests","detail":"slow down","status":429}`))
	}))
	defer server.Close()

	c, err := NewClient("k", WithBaseURL(server.URL))
	require.NoError(t, err)

	err = c.Ping(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.HTTPStatus())
	assert.Equal(t, "Too Many Requests", apiErr.Title)
}
