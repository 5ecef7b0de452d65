package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"realtime-service/internal/observability"
)

// PublisherMock stands in for the audit publisher.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// EventPublisherMock stands in for the realtime event publisher.
type EventPublisherMock struct {
	mock.Mock
}

func (m *EventPublisherMock) Publish(ctx context.Context, routingKey string, envelope observability.EventEnvelope, headers map[string]string) error {
	args := m.Called(ctx, routingKey, envelope, headers)
	return args.Error(0)
}
