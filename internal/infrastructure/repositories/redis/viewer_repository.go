package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisViewerRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisViewerRepository(client *redis.Client) ports.ViewerRepository {
	return &RedisViewerRepository{
		client: client,
		prefix: "streamgate:viewer:",
	}
}

func (r *RedisViewerRepository) viewerKey(id domain.ViewerID) string {
	return r.prefix + string(id)
}

func (r *RedisViewerRepository) presenceKey(channel domain.ChannelID) string {
	return fmt.Sprintf("streamgate:channel:%s:present", channel)
}

func (r *RedisViewerRepository) peakKey(channel domain.ChannelID) string {
	return fmt.Sprintf("streamgate:channel:%s:peak", channel)
}

func (r *RedisViewerRepository) joinsKey(channel domain.ChannelID) string {
	return fmt.Sprintf("streamgate:channel:%s:joins", channel)
}

func (r *RedisViewerRepository) SaveViewer(ctx context.Context, viewer *domain.Viewer) error {
	data, err := json.Marshal(viewer)
	if err != nil {
		return fmt.Errorf("failed to marshal viewer: %w", err)
	}

	if err := r.client.Set(ctx, r.viewerKey(viewer.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set viewer in Redis: %w", err)
	}

	return nil
}

func (r *RedisViewerRepository) GetViewer(ctx context.Context, id domain.ViewerID) (*domain.Viewer, error) {
	data, err := r.client.Get(ctx, r.viewerKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrViewerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get viewer from Redis: %w", err)
	}

	var viewer domain.Viewer
	if err := json.Unmarshal([]byte(data), &viewer); err != nil {
		return nil, fmt.Errorf("failed to unmarshal viewer: %w", err)
	}

	return &viewer, nil
}

func (r *RedisViewerRepository) RecordJoin(ctx context.Context, channel domain.ChannelID, subject domain.SubjectID) error {
	if err := r.client.SAdd(ctx, r.presenceKey(channel), fmt.Sprint(subject)).Err(); err != nil {
		return fmt.Errorf("failed to add viewer to presence set: %w", err)
	}
	if err := r.client.Incr(ctx, r.joinsKey(channel)).Err(); err != nil {
		return fmt.Errorf("failed to increment join counter: %w", err)
	}

	active, err := r.client.SCard(ctx, r.presenceKey(channel)).Result()
	if err != nil {
		return fmt.Errorf("failed to read presence set size: %w", err)
	}

	// Keep the peak monotonic; concurrent joins may race but SCard after
	// SAdd never undercounts this join.
	peak, _ := r.client.Get(ctx, r.peakKey(channel)).Int64()
	if active > peak {
		if err := r.client.Set(ctx, r.peakKey(channel), active, 0).Err(); err != nil {
			return fmt.Errorf("failed to update peak: %w", err)
		}
	}

	return nil
}

func (r *RedisViewerRepository) RecordLeave(ctx context.Context, channel domain.ChannelID, subject domain.SubjectID) error {
	if err := r.client.SRem(ctx, r.presenceKey(channel), fmt.Sprint(subject)).Err(); err != nil {
		return fmt.Errorf("failed to remove viewer from presence set: %w", err)
	}
	return nil
}

func (r *RedisViewerRepository) ChannelStats(ctx context.Context, channel domain.ChannelID) (*domain.ChannelStats, error) {
	joins, err := r.client.Get(ctx, r.joinsKey(channel)).Int64()
	if err == redis.Nil {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read join counter: %w", err)
	}

	active, err := r.client.SCard(ctx, r.presenceKey(channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence set size: %w", err)
	}

	peak, _ := r.client.Get(ctx, r.peakKey(channel)).Int64()

	return &domain.ChannelStats{
		Channel:       channel,
		ActiveViewers: int(active),
		PeakViewers:   int(peak),
		TotalJoins:    int(joins),
		CollectedAt:   time.Now(),
	}, nil
}
