// Package cache stores aggregated chat completions for identical
// non-streaming requests. It is opt-in; the default backend stores nothing.
package cache

import (
	"context"
	"fmt"
	"time"
)

// ExactCacheKey scopes a cached completion to the caller's credential, the
// resolved upstream model and the gateway version. Hash is the sha256 of the
// normalized inbound request.
type ExactCacheKey struct {
	Tenant    string
	ModelID   string
	VersionID string
	Hash      string
}

// String converts the structured key into the final string used in Redis/map.
func (k ExactCacheKey) String() string {
	// exact:<TENANT>:<MODEL_ID>:<VERSION_ID>:<HASH_HEX>
	return fmt.Sprintf("exact:%s:%s:%s:%s", k.Tenant, k.ModelID, k.VersionID, k.Hash)
}

// ExactCache is the interface used by the chat handler.
type ExactCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NopExactCache never stores anything.
type NopExactCache struct{}

func (NopExactCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

func (NopExactCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
