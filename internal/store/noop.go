// ABOUTME: No-op Store used when persistence is administratively disabled
// ABOUTME: Writes silently succeed without ids; reads fail with ErrDisabled

package store

import "context"

// NoopStore satisfies Store without persisting anything. SaveTurn reports
// thread id 0 so callers know not to expect a thread id back; read
// operations fail with ErrDisabled.
type NoopStore struct{}

// NewNoopStore returns the disabled-persistence store.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

func (n *NoopStore) CreateThread(ctx context.Context, modelName string) (*Thread, error) {
	return nil, ErrDisabled
}

func (n *NoopStore) AppendMessage(ctx context.Context, params AppendParams) (*Message, error) {
	return nil, ErrDisabled
}

func (n *NoopStore) SaveTurn(ctx context.Context, turn Turn) (int64, error) {
	return 0, nil
}

func (n *NoopStore) ListSnapshots(ctx context.Context) ([]Snapshot, error) {
	return nil, ErrDisabled
}

func (n *NoopStore) GetThread(ctx context.Context, threadID int64) (*ThreadDetail, error) {
	return nil, ErrDisabled
}

func (n *NoopStore) WipeAll(ctx context.Context) error {
	return ErrDisabled
}

func (n *NoopStore) Close() error {
	return nil
}
