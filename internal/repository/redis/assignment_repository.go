package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"evoloop/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// AssignmentRepository keeps sticky visitor assignments in Redis. Keys are
// (site, visitor) pairs, values JSON assignment records bounded by the
// session TTL. Insert-if-absent is SETNX, which gives the first-write-wins
// guarantee the stickiness layer relies on.
type AssignmentRepository struct {
	client *redis.Client
}

func NewAssignmentRepository(client *redis.Client) *AssignmentRepository {
	return &AssignmentRepository{client: client}
}

func assignmentKey(siteID uuid.UUID, visitorID string) string {
	return fmt.Sprintf("assign:%s:%s", siteID, visitorID)
}

func (r *AssignmentRepository) Get(ctx context.Context, siteID uuid.UUID, visitorID string) (*domain.Assignment, error) {
	key := assignmentKey(siteID, visitorID)

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: get assignment: %v", domain.ErrStoreUnavailable, err)
	}

	var a domain.Assignment
	if err := json.Unmarshal([]byte(val), &a); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assignment: %w", err)
	}

	return &a, nil
}

func (r *AssignmentRepository) PutIfAbsent(ctx context.Context, a domain.Assignment, ttl time.Duration) (domain.Assignment, bool, error) {
	key := assignmentKey(a.SiteID, a.VisitorID)

	raw, err := json.Marshal(a)
	if err != nil {
		return domain.Assignment{}, false, fmt.Errorf("failed to marshal assignment: %w", err)
	}

	created, err := r.client.SetNX(ctx, key, raw, ttl).Result()
	if err != nil {
		return domain.Assignment{}, false, fmt.Errorf("%w: setnx assignment: %v", domain.ErrStoreUnavailable, err)
	}
	if created {
		return a, true, nil
	}

	// lost the race: read back the winner
	winner, err := r.Get(ctx, a.SiteID, a.VisitorID)
	if err != nil {
		return domain.Assignment{}, false, err
	}
	if winner == nil {
		// winner expired between SETNX and the read; claim the key
		if err := r.Replace(ctx, a, ttl); err != nil {
			return domain.Assignment{}, false, err
		}
		return a, true, nil
	}

	return *winner, false, nil
}

func (r *AssignmentRepository) Replace(ctx context.Context, a domain.Assignment, ttl time.Duration) error {
	key := assignmentKey(a.SiteID, a.VisitorID)

	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}

	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set assignment: %v", domain.ErrStoreUnavailable, err)
	}

	return nil
}
