package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/sitemirror/internal/entity"
	"github.com/user/sitemirror/internal/repository"
	"github.com/user/sitemirror/pkg/utils"
)

const (
	crawlStatusPrefix = "crawl_status:"
	defaultStatusTTL  = 48 * time.Hour
)

// StatusRepoImpl stores per-URL crawl state in Redis hashes.
type StatusRepoImpl struct {
	client *redis.Client
	ttl    time.Duration
}

var _ repository.StatusRepository = (*StatusRepoImpl)(nil)

// NewStatusRepo creates a new instance of StatusRepoImpl.
func NewStatusRepo(client *redis.Client) *StatusRepoImpl {
	return &StatusRepoImpl{client: client, ttl: defaultStatusTTL}
}

// generateKey creates a consistent Redis key for a given URL by hashing it.
func (r *StatusRepoImpl) generateKey(url string) string {
	return fmt.Sprintf("%s%s", crawlStatusPrefix, utils.HashURL(url))
}

// SetStatus writes the state hash and refreshes its expiry in one transaction.
func (r *StatusRepoImpl) SetStatus(ctx context.Context, status *entity.CrawlStatus) error {
	key := r.generateKey(status.URL)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"url", status.URL,
			"state", string(status.State),
			"depth", status.Depth,
			"updated_at", status.UpdatedAt.UTC().Format(time.RFC3339Nano),
			"failure_reason", status.FailureReason,
		)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set crawl status %s: %w", status.URL, err)
	}
	return nil
}

// GetStatus returns the last recorded state for url.
func (r *StatusRepoImpl) GetStatus(ctx context.Context, url string) (*entity.CrawlStatus, error) {
	fields, err := r.client.HGetAll(ctx, r.generateKey(url)).Result()
	if err != nil {
		return nil, fmt.Errorf("get crawl status %s: %w", url, err)
	}
	// HGETALL on a missing key yields an empty map.
	if len(fields) == 0 {
		return nil, repository.ErrNotFound
	}

	depth, _ := strconv.Atoi(fields["depth"])
	updated, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])
	return &entity.CrawlStatus{
		URL:           fields["url"],
		State:         entity.CrawlState(fields["state"]),
		Depth:         depth,
		UpdatedAt:     updated,
		FailureReason: fields["failure_reason"],
	}, nil
}
