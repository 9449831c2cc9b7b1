package api

import (
	"context"
	"fmt"
	"time"
)

// readCache is the bounded-staleness cache in front of the query
// endpoints. It never influences simulation outcomes: every tick bumps
// the generation, which changes every cache key and makes prior entries
// unreachable without an explicit eviction pass.
type readCache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}

const queryCacheTTL = 2 * time.Second

func (s *Server) cacheKey(namespace, id string) string {
	return fmt.Sprintf("simcash:%s:run:%s:gen:%d:%s", namespace, s.runID, s.cacheGeneration, id)
}

// bumpCacheGeneration invalidates every previously cached query response
// by changing the key prefix future reads and writes use. Cheap and
// avoids a network round trip per tick to flush keys individually.
func (s *Server) bumpCacheGeneration() {
	s.cacheGeneration++
}

func (s *Server) cachedAgentBalance(ctx context.Context, agentID string) (agentBalanceResponse, bool) {
	var resp agentBalanceResponse
	if s.cache == nil {
		return resp, false
	}
	if err := s.cache.Get(ctx, s.cacheKey("agent", agentID), &resp); err != nil {
		return agentBalanceResponse{}, false
	}
	return resp, true
}

func (s *Server) storeAgentBalance(ctx context.Context, agentID string, resp agentBalanceResponse) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, s.cacheKey("agent", agentID), resp, queryCacheTTL)
}

func (s *Server) cachedQueue2(ctx context.Context) ([]queue2EntryResponse, bool) {
	var resp []queue2EntryResponse
	if s.cache == nil {
		return nil, false
	}
	if err := s.cache.Get(ctx, s.cacheKey("queue2", "all"), &resp); err != nil {
		return nil, false
	}
	return resp, true
}

func (s *Server) storeQueue2(ctx context.Context, resp []queue2EntryResponse) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Set(ctx, s.cacheKey("queue2", "all"), resp, queryCacheTTL)
}
