package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sunward-travel/agent-ledger/internal/logging"
)

// RedisNotifier enqueues agent notifications onto a Redis list; the
// messaging subsystem drains it and handles actual delivery.
type RedisNotifier struct {
	client *redis.Client
	queue  string
}

func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("NewRedisClient: ping: %w", err)
	}
	return client, nil
}

func NewRedisNotifier(client *redis.Client, queue string) *RedisNotifier {
	return &RedisNotifier{client: client, queue: queue}
}

type message struct {
	AgentID   string    `json:"agent_id"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (n *RedisNotifier) NotifyAgent(ctx context.Context, agentID uuid.UUID, subject, msg string) error {
	payload, err := json.Marshal(message{
		AgentID:   agentID.String(),
		Subject:   subject,
		Message:   msg,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("NotifyAgent: marshal: %w", err)
	}

	if err := n.client.LPush(ctx, n.queue, payload).Err(); err != nil {
		return fmt.Errorf("NotifyAgent: enqueue: %w", err)
	}
	return nil
}

// LogNotifier is the fallback sink when Redis is not configured; alerts are
// only logged. Used in development and tests.
type LogNotifier struct{}

func (LogNotifier) NotifyAgent(ctx context.Context, agentID uuid.UUID, subject, msg string) error {
	logging.FromContext(ctx).Info("agent notification",
		"agent_id", agentID,
		"subject", subject,
		"message", msg,
	)
	return nil
}
