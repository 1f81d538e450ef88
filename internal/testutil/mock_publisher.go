package testutil

import (
	"github.com/stretchr/testify/mock"
)

// MockPublisher is a mock implementation of sink.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, payload []byte) error {
	args := m.Called(topic, payload)
	return args.Error(0)
}
