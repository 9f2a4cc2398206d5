package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/shy020501/Video-Automation/internal/models"
)

const QueueVideoRuns = "queue:video_runs"

type Queue struct {
	client *redis.Client
	name   string
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse redis URL: %v", models.ErrConfiguration, err)
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Queue {
	return &Queue{client: client, name: QueueVideoRuns}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue appends a run request, assigning an id and timestamp when unset.
func (q *Queue) Enqueue(ctx context.Context, req *models.RunRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal run request: %w", err)
	}

	return q.client.RPush(ctx, q.name, data).Err()
}

// Dequeue blocks up to timeout. A nil request with nil error means the queue was empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*models.RunRequest, error) {
	result, err := q.client.BLPop(ctx, timeout, q.name).Result()
	if err == redis.Nil {
		return nil, nil // No run available
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	var req models.RunRequest
	if err := json.Unmarshal([]byte(result[1]), &req); err != nil {
		return nil, &models.ParseError{Raw: result[1], Err: err}
	}

	return &req, nil
}

func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}
