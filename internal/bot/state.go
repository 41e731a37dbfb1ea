package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const registrationKeyTpl = "yogaroll:register:%d" // yogaroll:register:${chatID}

type RegistrationStep string

const (
	StepFirstName RegistrationStep = "first_name"
	StepLastName  RegistrationStep = "last_name"
	StepPhone     RegistrationStep = "phone"
)

// Registration is a /register conversation that has not finished yet.
type Registration struct {
	Step      RegistrationStep
	FirstName string
	LastName  string
}

// StateStore keeps per-chat conversation state in redis hashes that expire on their own.
type StateStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStateStore(client *redis.Client, ttl time.Duration) *StateStore {
	return &StateStore{redis: client, ttl: ttl}
}

func ConnectStateStore(ctx context.Context, redisURL string, ttl time.Duration) (*StateStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewStateStore(client, ttl), nil
}

func (ss *StateStore) Start(ctx context.Context, chatID int64) error {
	key := fmt.Sprintf(registrationKeyTpl, chatID)

	pipe := ss.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "step", string(StepFirstName))
	pipe.Expire(ctx, key, ss.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to start registration: %w", err)
	}
	return nil
}

// Fetch returns nil when the chat has no registration in progress.
func (ss *StateStore) Fetch(ctx context.Context, chatID int64) (*Registration, error) {
	key := fmt.Sprintf(registrationKeyTpl, chatID)

	values, err := ss.redis.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch registration for chat %d: %w", chatID, err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	return &Registration{
		Step:      RegistrationStep(values["step"]),
		FirstName: values["first_name"],
		LastName:  values["last_name"],
	}, nil
}

// Advance stores the answer for the current step and moves on to next.
func (ss *StateStore) Advance(ctx context.Context, chatID int64, field RegistrationStep, value string, next RegistrationStep) error {
	key := fmt.Sprintf(registrationKeyTpl, chatID)

	pipe := ss.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		string(field): value,
		"step":        string(next),
	})
	pipe.Expire(ctx, key, ss.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update registration: %w", err)
	}
	return nil
}

func (ss *StateStore) Clear(ctx context.Context, chatID int64) error {
	return ss.redis.Del(ctx, fmt.Sprintf(registrationKeyTpl, chatID)).Err()
}

func (ss *StateStore) Close() error {
	if ss.redis != nil {
		return ss.redis.Close()
	}
	return nil
}
