package trust

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis keys shared with out-of-process enforcement points.
const (
	RedisChanSuspend   = "policyguard:agents:suspend-signal"
	RedisSuspendedSet  = "policyguard:agents:suspended_set"
	suspendSignalValue = "suspended"
)

// redisPublisher is the subset of *redis.Client used by RedisNotifier.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// RedisNotifier broadcasts suspensions so gateways holding their own kill
// switch can block the agent without polling. Delivery is best effort: the
// Store has already committed the suspension when it is called.
type RedisNotifier struct {
	rdb    redisPublisher
	logger *zap.Logger
}

// NewRedisNotifier wraps a redis client.
func NewRedisNotifier(rdb redisPublisher, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, logger: logger.Named("redis-notifier")}
}

func (n *RedisNotifier) AgentSuspended(ctx context.Context, agent Agent) {
	if err := n.rdb.SAdd(ctx, RedisSuspendedSet, agent.AgentID).Err(); err != nil {
		n.logger.Warn("failed to record suspended agent",
			zap.String("agent_id", agent.AgentID),
			zap.String("key", RedisSuspendedSet),
			zap.Error(err))
	}

	payload := fmt.Sprintf("%s:%s", agent.AgentID, suspendSignalValue)
	if err := n.rdb.Publish(ctx, RedisChanSuspend, payload).Err(); err != nil {
		n.logger.Warn("suspend signal delivery failed",
			zap.String("agent_id", agent.AgentID),
			zap.String("channel", RedisChanSuspend),
			zap.Error(err))
		return
	}
	n.logger.Info("suspend signal published", zap.String("agent_id", agent.AgentID))
}
