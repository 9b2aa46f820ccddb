package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/querywarden/querywarden/pkg/model"
)

// GroupSource reads query-group definitions from a redis hash shared by the
// cluster's management plane. Field = group id, value = JSON-encoded
// definition. This source is read-only: authoring and replicating the
// definitions belongs to that management plane.
type GroupSource struct {
	rdb redis.UniversalClient
	key string
}

func NewGroupSource(client redis.UniversalClient, key string) *GroupSource {
	return &GroupSource{rdb: client, key: key}
}

func (s *GroupSource) Groups(ctx context.Context) ([]*model.GroupConfig, error) {
	entries, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("read group definitions from %s: %w", s.key, err)
	}

	configs := make([]*model.GroupConfig, 0, len(entries))
	for id, raw := range entries {
		var def model.GroupDefinition
		if err := json.Unmarshal([]byte(raw), &def); err != nil {
			return nil, fmt.Errorf("decode group definition %s: %w", id, err)
		}
		if def.ID == "" {
			def.ID = id
		}
		cfg, err := def.Config()
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
