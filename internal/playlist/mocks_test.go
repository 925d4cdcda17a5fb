package playlist

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListByOwner(ctx context.Context, ownerID string) ([]Playlist, error) {
	args := m.Called(ctx, ownerID)
	if val := args.Get(0); val != nil {
		return val.([]Playlist), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Upsert(ctx context.Context, ownerID string, pl Playlist) (bool, error) {
	args := m.Called(ctx, ownerID, pl)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) ReplaceAll(ctx context.Context, ownerID string, pls []Playlist) error {
	args := m.Called(ctx, ownerID, pls)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, ownerID, id string) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}
