package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tracker keeps who is online in redis so any instance can answer presence
// queries. One key per user: <prefix>:presence:<id> -> {status,last_seen}.
type Tracker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type Status struct {
	Status   string `json:"status"` // "online" | "offline"
	LastSeen int64  `json:"last_seen"`
}

func NewTracker(rdb *redis.Client, prefix string, ttl time.Duration) *Tracker {
	return &Tracker{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (t *Tracker) key(userID string) string { return t.prefix + ":presence:" + userID }

func (t *Tracker) SetOnline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(Status{Status: "online", LastSeen: time.Now().Unix()})
	return t.rdb.Set(ctx, t.key(userID), b, t.ttl).Err()
}

func (t *Tracker) SetOffline(ctx context.Context, userID string) error {
	b, _ := json.Marshal(Status{Status: "offline", LastSeen: time.Now().Unix()})
	// no expiry: the final last_seen should survive
	return t.rdb.Set(ctx, t.key(userID), b, 0).Err()
}

func (t *Tracker) Get(ctx context.Context, userID string) (Status, error) {
	b, err := t.rdb.Get(ctx, t.key(userID)).Bytes()
	if err == redis.Nil {
		return Status{Status: "offline"}, nil
	}
	if err != nil {
		return Status{}, err
	}
	var s Status
	if err := json.Unmarshal(b, &s); err != nil {
		return Status{}, err
	}
	return s, nil
}
