package nats

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/clausebit/companion/internal/cache"
	"github.com/clausebit/companion/internal/model"
)

// SummaryBucket is the JetStream KV bucket holding cached summaries.
const SummaryBucket = "CLAUSEBIT_SUMMARIES"

// SummaryStore is a cache.Store backed by a JetStream key-value bucket.
type SummaryStore struct {
	kv jetstream.KeyValue
}

// OpenSummaryStore binds to the summary bucket, creating it if needed.
func OpenSummaryStore(ctx context.Context, client *Client) (*SummaryStore, error) {
	js := client.JetStream()

	kv, err := js.KeyValue(ctx, SummaryBucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      SummaryBucket,
			Description: "Latest risk summary per origin",
			History:     1,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open summary bucket: %w", err)
	}
	return &SummaryStore{kv: kv}, nil
}

// BucketKey maps an origin to a KV key. Origins contain characters KV
// keys do not allow, so the cache key is base64url-encoded.
func BucketKey(origin string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cache.Key(origin)))
}

func (s *SummaryStore) Get(ctx context.Context, origin string) (*model.CachedSummary, error) {
	entry, err := s.kv.Get(ctx, BucketKey(origin))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read summary: %w", err)
	}

	var cached model.CachedSummary
	if err := json.Unmarshal(entry.Value(), &cached); err != nil {
		return nil, fmt.Errorf("failed to decode summary: %w", err)
	}
	return &cached, nil
}

func (s *SummaryStore) Put(ctx context.Context, entry *model.CachedSummary) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode summary: %w", err)
	}
	if _, err := s.kv.Put(ctx, BucketKey(entry.Origin), data); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
