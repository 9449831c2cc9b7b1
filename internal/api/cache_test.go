package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"simcash/pkg/errors"

	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[key] = data
	return nil
}

func (f *fakeCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, ok := f.entries[key]
	if !ok {
		return errors.New("cache: key not found")
	}
	return json.Unmarshal(data, dest)
}

func TestAgentBalanceCache_InvalidatesOnTick(t *testing.T) {
	srv := testServer(t)
	fc := newFakeCache()
	srv.cache = fc

	resp := agentBalanceResponse{AgentID: "bank_a", Balance: "1000.00"}
	srv.storeAgentBalance(context.Background(), "bank_a", resp)

	got, hit := srv.cachedAgentBalance(context.Background(), "bank_a")
	require.True(t, hit)
	require.Equal(t, resp, got)

	srv.bumpCacheGeneration()

	_, hit = srv.cachedAgentBalance(context.Background(), "bank_a")
	require.False(t, hit)
}

func TestQueue2Cache_RoundTrips(t *testing.T) {
	srv := testServer(t)
	fc := newFakeCache()
	srv.cache = fc

	entries := []queue2EntryResponse{{TxID: "tx1", SenderID: "bank_a", ReceiverID: "bank_b"}}
	srv.storeQueue2(context.Background(), entries)

	got, hit := srv.cachedQueue2(context.Background())
	require.True(t, hit)
	require.Equal(t, entries, got)
}
