package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quizclash/internal/model"
	"quizclash/internal/repository"
)

var (
	// ErrPlayerNotFound means an event referenced a record that does not
	// exist. Client desync, not a store fault.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrUnavailable means the underlying store call failed.
	ErrUnavailable = errors.New("ledger unavailable")
	// ErrConflict means an increment lost the conditional-update race more
	// times than the retry bound allows.
	ErrConflict = errors.New("increment conflict retries exhausted")
)

const incrementRetries = 5

// Ledger owns score mutation semantics on top of the score store. Every
// increment for a given (room, player) is linearizable: the write is
// conditioned on the score read, and a miss re-reads and retries.
type Ledger struct {
	store repository.ScoreStore
}

// NewLedger creates a ledger over the given store.
func NewLedger(store repository.ScoreStore) *Ledger {
	return &Ledger{store: store}
}

// EnsurePlayer creates a zero-score record for (room, player) if none
// exists. Joining twice never resets an in-progress score.
func (l *Ledger) EnsurePlayer(ctx context.Context, room, player, hero string) error {
	records, err := l.store.Find(ctx, repository.ScoreFilter{Room: room, Player: player})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(records) > 0 {
		return nil
	}

	rec := &model.PlayerScore{
		Room:     room,
		Player:   player,
		Hero:     hero,
		Score:    0,
		Finished: false,
		JoinedAt: time.Now().UTC(),
	}
	err = l.store.Create(ctx, rec)
	if errors.Is(err, repository.ErrStoreRejected) {
		// Lost a create race against another join; the record exists,
		// which is all join needs.
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// IncrementScore applies score += delta for the one (room, player) record.
// Read-modify-write: the update filter includes the score that was read,
// so a concurrent increment makes the write miss and we retry from a
// fresh read. Deltas are never lost or double-applied.
func (l *Ledger) IncrementScore(ctx context.Context, room, player string, delta int) (*model.PlayerScore, error) {
	for attempt := 0; attempt < incrementRetries; attempt++ {
		records, err := l.store.Find(ctx, repository.ScoreFilter{Room: room, Player: player})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(records) == 0 {
			return nil, ErrPlayerNotFound
		}

		prior := records[0].Score
		next := prior + delta
		updated, err := l.store.Update(ctx,
			repository.ScoreFilter{Room: room, Player: player, Score: &prior},
			repository.ScorePatch{Score: &next},
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(updated) > 0 {
			return &updated[0], nil
		}
	}
	return nil, ErrConflict
}

// MarkFinished flags the player's record as finished. Idempotent.
func (l *Ledger) MarkFinished(ctx context.Context, room, player string) (*model.PlayerScore, error) {
	finished := true
	updated, err := l.store.Update(ctx,
		repository.ScoreFilter{Room: room, Player: player},
		repository.ScorePatch{Finished: &finished},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(updated) == 0 {
		return nil, ErrPlayerNotFound
	}
	return &updated[0], nil
}

// RemovePlayer deletes the (room, player) record. Only the explicit leave
// event calls this; a socket closing never does.
func (l *Ledger) RemovePlayer(ctx context.Context, room, player string) error {
	if err := l.store.Delete(ctx, repository.ScoreFilter{Room: room, Player: player}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Snapshot returns the room's records in join order.
func (l *Ledger) Snapshot(ctx context.Context, room string) ([]model.PlayerScore, error) {
	records, err := l.store.Find(ctx, repository.ScoreFilter{Room: room})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return records, nil
}
