// Package mocks provides test doubles for the extract package.
package mocks

import (
	"context"

	extract "github.com/sells-group/brand-cli/internal/extract"
	mock "github.com/stretchr/testify/mock"
)

// MockExtractor is a mock type for the Extractor interface.
type MockExtractor struct {
	mock.Mock
}

// Extract provides a mock function with given fields: ctx, name, url
func (_m *MockExtractor) Extract(ctx context.Context, name string, url string) (*extract.Result, error) {
	ret := _m.Called(ctx, name, url)

	if len(ret) == 0 {
		panic("no return value specified for Extract")
	}

	var r0 *extract.Result
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*extract.Result, error)); ok {
		return rf(ctx, name, url)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *extract.Result); ok {
		r0 = rf(ctx, name, url)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*extract.Result)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, name, url)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockExtractor creates a new instance of MockExtractor. It also registers
// a testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockExtractor(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockExtractor {
	m := &MockExtractor{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
