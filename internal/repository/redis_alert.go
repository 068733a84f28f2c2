package repository

import (
	"context"
	"encoding/json"

	"github.com/GoPolymarket/dexgate/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisAlertRepo keeps a capped list of alerts, newest first.
type RedisAlertRepo struct {
	client  redis.UniversalClient
	listKey string
	listMax int
}

func NewRedisAlertRepo(client redis.UniversalClient, listKey string, listMax int) *RedisAlertRepo {
	if listKey == "" {
		listKey = "dexgate:alerts"
	}
	if listMax <= 0 {
		listMax = 10000
	}
	return &RedisAlertRepo{
		client:  client,
		listKey: listKey,
		listMax: listMax,
	}
}

func (r *RedisAlertRepo) Insert(ctx context.Context, alert *model.Alert) error {
	if alert == nil {
		return nil
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.listKey, payload)
		pipe.LTrim(ctx, r.listKey, 0, int64(r.listMax-1))
		return nil
	})
	return err
}

func (r *RedisAlertRepo) List(ctx context.Context, limit int) ([]*model.Alert, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	raw, err := r.client.LRange(ctx, r.listKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	payloads := make([][]byte, len(raw))
	for i, s := range raw {
		payloads[i] = []byte(s)
	}
	return decodeAlerts(payloads), nil
}
