package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/paylink/reconciler/internal/model"
	"github.com/paylink/reconciler/internal/port/outbound"
	"github.com/redis/go-redis/v9"
)

const (
	linkingKeyPrefix  = "linking:"
	defaultLinkingTTL = 72 * time.Hour
)

// linkingRecordStore implements outbound.LinkingRecordPort.
type linkingRecordStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewLinkingRecordStore creates a linking record store whose records expire after ttl.
func NewLinkingRecordStore(client redis.UniversalClient, ttl time.Duration) outbound.LinkingRecordPort {
	if ttl <= 0 {
		ttl = defaultLinkingTTL
	}
	return &linkingRecordStore{client: client, ttl: ttl}
}

func (s *linkingRecordStore) Create(ctx context.Context, record *model.LinkingRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode linking record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, linkingKeyPrefix+record.ID, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create linking record %s: %w", record.ID, err)
	}
	if !ok {
		return outbound.ErrLinkingRecordExists
	}
	return nil
}

func (s *linkingRecordStore) Get(ctx context.Context, id string) (*model.LinkingRecord, error) {
	data, err := s.client.Get(ctx, linkingKeyPrefix+id).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get linking record %s: %w", id, err)
	}

	var record model.LinkingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode linking record %s: %w", id, err)
	}
	return &record, nil
}

func (s *linkingRecordStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, linkingKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete linking record %s: %w", id, err)
	}
	return nil
}

// Compile-time check
var _ outbound.LinkingRecordPort = (*linkingRecordStore)(nil)
