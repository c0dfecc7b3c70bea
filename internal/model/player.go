package model

import "time"

// PlayerScore is the durable per-player record for one room. At most one
// record exists per (room, player); the repository enforces this with a
// unique index.
type PlayerScore struct {
	ID       string    `json:"id,omitempty" bson:"_id,omitempty"`
	Room     string    `json:"room" bson:"room"`
	Player   string    `json:"player" bson:"player"`
	Hero     string    `json:"hero" bson:"hero"`
	Score    int       `json:"score" bson:"score"`
	Finished bool      `json:"finished" bson:"finished"`
	JoinedAt time.Time `json:"joinedAt" bson:"joinedAt"`
}
