// Package mocks provides test doubles for the mailchimp client.
package mocks

import (
	"context"

	mailchimp "github.com/sells-group/leads-cli/pkg/mailchimp"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// BatchSubscribe provides a mock function with given fields: ctx, listID, members
func (_m *MockClient) BatchSubscribe(ctx context.Context, listID string, members []mailchimp.Member) (*mailchimp.BatchResult, error) {
	ret := _m.Called(ctx, listID, members)

	if len(ret) == 0 {
		panic("no return value specified for BatchSubscribe")
	}

	var r0 *mailchimp.BatchResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, []mailchimp.Member) (*mailchimp.BatchResult, error)); ok {
		return rf(ctx, listID, members)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, []mailchimp.Member) *mailchimp.BatchResult); ok {
		r0 = rf(ctx, listID, members)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*mailchimp.BatchResult)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, []mailchimp.Member) error); ok {
		r1 = rf(ctx, listID, members)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Ping provides a mock function with given fields: ctx
func (_m *MockClient) Ping(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Ping")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// UpdateTags provides a mock function with given fields: ctx, listID, email, tags
func (_m *MockClient) UpdateTags(ctx context.Context, listID string, email string, tags []mailchimp.TagUpdate) error {
	ret := _m.Called(ctx, listID, email, tags)

	if len(ret) == 0 {
		panic("no return value specified for UpdateTags")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string, []mailchimp.TagUpdate) error); ok {
		r0 = rf(ctx, listID, email, tags)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
