package service

import (
	"context"
	"log/slog"

	"quizclash/internal/cache"
	"quizclash/internal/model"
)

// Outbound broadcast event names.
const (
	EventGetPlayer    = "get-player"
	EventStart        = "start"
	EventScore        = "score"
	EventPlayerFinish = "player-finish"
)

// Dispatcher turns inbound session events into one mutation plus one
// broadcast each. Ledger and store failures are logged and degraded, never
// propagated: a bad event from one client must not stall the room.
type Dispatcher struct {
	registry    Registry
	ledger      *Ledger
	leaderboard cache.LeaderboardCache
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(
	registry Registry,
	ledger *Ledger,
	leaderboard cache.LeaderboardCache,
	broadcaster Broadcaster,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		ledger:      ledger,
		leaderboard: leaderboard,
		broadcaster: broadcaster,
		logger:      logger,
	}
}

// Join adds the session to the room, ensures a score record exists for the
// player and broadcasts the updated roster. If the ledger is down the
// roster broadcast still happens with whatever could be read.
func (d *Dispatcher) Join(ctx context.Context, s Session, room, name, hero string) {
	d.registry.Join(room, s)

	if err := d.ledger.EnsurePlayer(ctx, room, name, hero); err != nil {
		d.logger.Error("ensure player failed", "room", room, "player", name, "err", err)
	}
	d.broadcastRoster(ctx, room)
}

// RequestPlayers re-joins the session to the room (read-only rejoin) and
// broadcasts the current roster.
func (d *Dispatcher) RequestPlayers(ctx context.Context, s Session, room string) {
	d.registry.Join(room, s)
	d.broadcastRoster(ctx, room)
}

// Start signals the room that the quiz has begun. No state changes.
func (d *Dispatcher) Start(room string) {
	d.broadcaster.BroadcastToRoom(room, EventStart, nil)
}

// SetScore applies a score delta for the player and broadcasts the updated
// record. On failure the player's last committed record is broadcast
// instead, so the room's view never stalls on one bad event.
func (d *Dispatcher) SetScore(ctx context.Context, room, name string, delta int) {
	rec, err := d.ledger.IncrementScore(ctx, room, name, delta)
	if err != nil {
		d.logger.Error("increment failed", "room", room, "player", name, "delta", delta, "err", err)
		if prior := d.findPlayer(ctx, room, name); prior != nil {
			d.broadcaster.BroadcastToRoom(room, EventScore, prior)
		}
		return
	}

	if err := d.leaderboard.UpdateScore(ctx, room, name, rec.Score); err != nil {
		d.logger.Warn("leaderboard cache update failed", "room", room, "player", name, "err", err)
	}
	d.broadcaster.BroadcastToRoom(room, EventScore, rec)
}

// Finish marks the player finished and broadcasts the room's full ranked
// leaderboard, not just the finishing player.
func (d *Dispatcher) Finish(ctx context.Context, room, name string) {
	if _, err := d.ledger.MarkFinished(ctx, room, name); err != nil {
		d.logger.Error("mark finished failed", "room", room, "player", name, "err", err)
	}

	records, err := d.ledger.Snapshot(ctx, room)
	if err != nil {
		d.logger.Error("room snapshot failed", "room", room, "err", err)
		return
	}
	d.broadcaster.BroadcastToRoom(room, EventPlayerFinish, Rank(records))
}

// Leave is the explicit cleanup event: the player's record is deleted and
// the session dropped from the room. Socket disconnects never reach here.
func (d *Dispatcher) Leave(ctx context.Context, s Session, room, name string) {
	d.registry.Leave(room, s)

	if err := d.ledger.RemovePlayer(ctx, room, name); err != nil {
		d.logger.Error("remove player failed", "room", room, "player", name, "err", err)
	}
	if err := d.leaderboard.Remove(ctx, room, name); err != nil {
		d.logger.Warn("leaderboard cache remove failed", "room", room, "player", name, "err", err)
	}
	d.broadcastRoster(ctx, room)
}

// SessionClosed drops the session from every room it joined. The player's
// score record persists so a reconnect under the same name resumes it.
func (d *Dispatcher) SessionClosed(s Session) {
	d.registry.OnSessionClosed(s)
}

func (d *Dispatcher) broadcastRoster(ctx context.Context, room string) {
	records, err := d.ledger.Snapshot(ctx, room)
	if err != nil {
		d.logger.Error("room snapshot failed", "room", room, "err", err)
		return
	}
	d.broadcaster.BroadcastToRoom(room, EventGetPlayer, records)
}

func (d *Dispatcher) findPlayer(ctx context.Context, room, name string) *model.PlayerScore {
	records, err := d.ledger.Snapshot(ctx, room)
	if err != nil {
		return nil
	}
	for i := range records {
		if records[i].Player == name {
			return &records[i]
		}
	}
	return nil
}
