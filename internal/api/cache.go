package api

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"streamchat/internal/core"
)

// Fetcher loads a conversation from its source of truth.
type Fetcher interface {
	GetConversation(ctx context.Context, id string) (*Conversation, error)
}

// RefreshFunc receives the result of a background refresh.
type RefreshFunc func(conv *Conversation, err error)

// ConversationCache keeps recently fetched conversations in memory.
// Concurrent lookups of the same id share one request.
type ConversationCache struct {
	fetcher Fetcher
	store   *gocache.Cache
	group   singleflight.Group
	logger  core.Logger
	timeout time.Duration

	// mu guards the fields below and orders store writes against
	// Invalidate.
	mu      sync.Mutex
	onFresh RefreshFunc
	gens    map[string]uint64
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewConversationCache creates a cache in front of fetcher. timeout bounds
// each fetch.
func NewConversationCache(fetcher Fetcher, ttl, timeout time.Duration, logger core.Logger) *ConversationCache {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ConversationCache{
		fetcher: fetcher,
		store:   gocache.New(ttl, 2*ttl),
		logger:  logger,
		timeout: timeout,
		gens:    make(map[string]uint64),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OnRefresh sets the hook that receives background refreshes triggered by
// Invalidate.
func (c *ConversationCache) OnRefresh(fn RefreshFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFresh = fn
}

// Get returns the cached conversation or fetches it. The result is a copy.
// ctx only bounds the wait: a shared fetch keeps running for the other
// callers when one of them gives up.
func (c *ConversationCache) Get(ctx context.Context, id string) (*Conversation, error) {
	if v, ok := c.store.Get(id); ok {
		c.logger.Debug("Conversation cache hit", "conversation_id", id)
		return v.(*Conversation).Clone(), nil
	}

	ch := c.group.DoChan(id, func() (any, error) {
		return c.fetch(id)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		c.logger.Debug("Conversation fetched", "conversation_id", id, "shared", res.Shared)
		return res.Val.(*Conversation).Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetch loads a conversation and caches it unless it was invalidated while
// the request was in flight.
func (c *ConversationCache) fetch(id string) (*Conversation, error) {
	c.mu.Lock()
	gen := c.gens[id]
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	conv, err := c.fetcher.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[id] != gen {
		c.logger.Debug("Discarding conversation fetched before invalidation", "conversation_id", id)
		return conv, nil
	}
	c.store.Set(id, conv, gocache.DefaultExpiration)
	return conv, nil
}

// Invalidate drops the cached copy of a conversation. A fetch in flight for
// it will not be cached. If a refresh hook is set the conversation is
// fetched again in the background.
func (c *ConversationCache) Invalidate(id string) {
	c.mu.Lock()
	c.gens[id]++
	c.store.Delete(id)
	c.group.Forget(id)

	hook := c.onFresh
	if hook == nil || c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		conv, err := c.Get(c.ctx, id)
		if err != nil {
			c.logger.Warn("Background conversation refresh failed",
				"conversation_id", id,
				"error", err.Error(),
			)
		}
		hook(conv, err)
	}()
}

// Close cancels background refreshes and waits for them to finish. The
// cache must not be used afterwards.
func (c *ConversationCache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
