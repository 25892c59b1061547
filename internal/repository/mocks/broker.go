// Package mocks 提供 repository 接口的 testify mock 实现，仅供测试使用。
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// Broker 是 repository.Broker 的 mock 实现。
type Broker struct {
	mock.Mock
}

func (m *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	args := m.Called(ctx, channel, payload)
	return args.Error(0)
}

func (m *Broker) Subscribe(channel string, handler func(payload []byte)) error {
	args := m.Called(channel, handler)
	return args.Error(0)
}

func (m *Broker) Unsubscribe(channel string) error {
	args := m.Called(channel)
	return args.Error(0)
}

func (m *Broker) AddMember(ctx context.Context, key, member string) (int64, error) {
	args := m.Called(ctx, key, member)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Broker) RemoveMember(ctx context.Context, key, member string) (int64, error) {
	args := m.Called(ctx, key, member)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Broker) Cardinality(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}

func (m *Broker) Members(ctx context.Context, key string) ([]string, error) {
	args := m.Called(ctx, key)
	if members, ok := args.Get(0).([]string); ok {
		return members, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Broker) SetKey(ctx context.Context, key, value string, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *Broker) KeyExists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *Broker) DeleteKey(ctx context.Context, keys ...string) error {
	callArgs := make([]interface{}, 0, len(keys)+1)
	callArgs = append(callArgs, ctx)
	for _, k := range keys {
		callArgs = append(callArgs, k)
	}
	args := m.Called(callArgs...)
	return args.Error(0)
}
