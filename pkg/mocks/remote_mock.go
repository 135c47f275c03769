package mocks

import (
	"context"

	"github.com/dukex/runwatch/pkg/models"
	"github.com/dukex/runwatch/pkg/remote"
	"github.com/stretchr/testify/mock"
)

// MockRemoteClient is a mock implementation of remote.Client interface.
type MockRemoteClient struct {
	mock.Mock
}

func (m *MockRemoteClient) StartRun(ctx context.Context, canvasID string, params map[string]any) (string, error) {
	args := m.Called(ctx, canvasID, params)

	return args.String(0), args.Error(1)
}

func (m *MockRemoteClient) FetchTrace(ctx context.Context, canvasID, serialID string) (*models.TraceSnapshot, error) {
	args := m.Called(ctx, canvasID, serialID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.TraceSnapshot), args.Error(1)
}

var _ remote.Client = (*MockRemoteClient)(nil)
