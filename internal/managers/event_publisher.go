package managers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/techwithparamesh/agent-app-sub006/pkg/domain"
)

const DefaultEventChannelPrefix = "flowcore:executions"

// RedisPublisher is the part of *redis.Client the event publisher needs.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisEventPublisher fans execution events out on one pub/sub channel per
// workflow.
type RedisEventPublisher struct {
	client        RedisPublisher
	channelPrefix string
}

func NewRedisEventPublisher(client RedisPublisher, channelPrefix string) *RedisEventPublisher {
	if channelPrefix == "" {
		channelPrefix = DefaultEventChannelPrefix
	}

	return &RedisEventPublisher{
		client:        client,
		channelPrefix: channelPrefix,
	}
}

func (p *RedisEventPublisher) Channel(workflowID string) string {
	return fmt.Sprintf("%s:%s", p.channelPrefix, workflowID)
}

func (p *RedisEventPublisher) PublishEvent(ctx context.Context, event domain.ExecutionEvent) error {
	payloadJSON, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, p.Channel(event.WorkflowID), payloadJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	return nil
}
