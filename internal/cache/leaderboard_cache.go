package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// LeaderboardCache mirrors room scores into a Redis ZSET so the REST read
// path never touches the primary store. Best effort: the engine stays
// correct if these calls fail.
type LeaderboardCache interface {
	UpdateScore(ctx context.Context, room, player string, score int) error
	Remove(ctx context.Context, room, player string) error
	GetTop(ctx context.Context, room string, limit int) ([]LeaderboardEntry, error)
}

// LeaderboardEntry is a single ranked row.
type LeaderboardEntry struct {
	Player string `json:"player"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
}

type leaderboardCache struct {
	client *redis.Client
}

// NewLeaderboardCache creates a new leaderboard cache.
func NewLeaderboardCache(client *redis.Client) LeaderboardCache {
	return &leaderboardCache{client: client}
}

func (c *leaderboardCache) key(room string) string {
	return fmt.Sprintf("room:%s:lb", room)
}

func (c *leaderboardCache) UpdateScore(ctx context.Context, room, player string, score int) error {
	return c.client.ZAdd(ctx, c.key(room), redis.Z{
		Score:  float64(score),
		Member: player,
	}).Err()
}

func (c *leaderboardCache) Remove(ctx context.Context, room, player string) error {
	return c.client.ZRem(ctx, c.key(room), player).Err()
}

func (c *leaderboardCache) GetTop(ctx context.Context, room string, limit int) ([]LeaderboardEntry, error) {
	results, err := c.client.ZRevRangeWithScores(ctx, c.key(room), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(results))
	for i, z := range results {
		entries[i] = LeaderboardEntry{
			Player: z.Member.(string),
			Score:  int(z.Score),
			Rank:   i + 1,
		}
	}
	return entries, nil
}
