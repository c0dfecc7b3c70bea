package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"quizclash/internal/model"
	"quizclash/internal/repository"
)

// fakeStore is an in-memory ScoreStore. Each call is atomic (like a single
// store round-trip) but nothing serializes a read against a later write,
// so the ledger's conditional-update protocol is genuinely exercised.
type fakeStore struct {
	mu      sync.Mutex
	records []model.PlayerScore
	nextID  int

	createErr error
	findErr   error
	updateErr error
	deleteErr error

	alwaysConflict bool
	updateCalls    int
}

func matches(f repository.ScoreFilter, rec *model.PlayerScore) bool {
	if f.Room != "" && rec.Room != f.Room {
		return false
	}
	if f.Player != "" && rec.Player != f.Player {
		return false
	}
	if f.Score != nil && rec.Score != *f.Score {
		return false
	}
	return true
}

func (s *fakeStore) Create(_ context.Context, rec *model.PlayerScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return s.createErr
	}
	for i := range s.records {
		if s.records[i].Room == rec.Room && s.records[i].Player == rec.Player {
			return fmt.Errorf("%w: duplicate key", repository.ErrStoreRejected)
		}
	}
	s.nextID++
	rec.ID = strconv.Itoa(s.nextID)
	s.records = append(s.records, *rec)
	return nil
}

func (s *fakeStore) Find(_ context.Context, filter repository.ScoreFilter) ([]model.PlayerScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []model.PlayerScore
	for i := range s.records {
		if matches(filter, &s.records[i]) {
			out = append(out, s.records[i])
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, filter repository.ScoreFilter, patch repository.ScorePatch) ([]model.PlayerScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateCalls++
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if s.alwaysConflict {
		return nil, nil
	}
	for i := range s.records {
		if matches(filter, &s.records[i]) {
			if patch.Score != nil {
				s.records[i].Score = *patch.Score
			}
			if patch.Finished != nil {
				s.records[i].Finished = *patch.Finished
			}
			return []model.PlayerScore{s.records[i]}, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Delete(_ context.Context, filter repository.ScoreFilter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deleteErr != nil {
		return s.deleteErr
	}
	kept := s.records[:0]
	for i := range s.records {
		if !matches(filter, &s.records[i]) {
			kept = append(kept, s.records[i])
		}
	}
	s.records = kept
	return nil
}

func (s *fakeStore) get(room, player string) *model.PlayerScore {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].Room == room && s.records[i].Player == player {
			rec := s.records[i]
			return &rec
		}
	}
	return nil
}

func seedPlayer(t *testing.T, store *fakeStore, room, player, hero string, score int) {
	t.Helper()
	err := store.Create(context.Background(), &model.PlayerScore{
		Room:     room,
		Player:   player,
		Hero:     hero,
		Score:    score,
		JoinedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestEnsurePlayerCreatesZeroScore(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)

	err := ledger.EnsurePlayer(context.Background(), "R1", "Alice", "Mage")
	require.NoError(t, err)

	rec := store.get("R1", "Alice")
	require.NotNil(t, rec)
	require.Equal(t, 0, rec.Score)
	require.False(t, rec.Finished)
	require.Equal(t, "Mage", rec.Hero)
}

func TestEnsurePlayerNeverResetsScore(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)
	seedPlayer(t, store, "R1", "Alice", "Mage", 42)

	err := ledger.EnsurePlayer(context.Background(), "R1", "Alice", "Knight")
	require.NoError(t, err)

	rec := store.get("R1", "Alice")
	require.Equal(t, 42, rec.Score)
	require.Equal(t, "Mage", rec.Hero, "hero is immutable after join")
}

func TestEnsurePlayerLostCreateRace(t *testing.T) {
	store := &fakeStore{
		createErr: fmt.Errorf("%w: E11000 duplicate key", repository.ErrStoreRejected),
	}
	ledger := NewLedger(store)

	// Another join inserted the record between our read and write. The
	// record exists, so join succeeds.
	err := ledger.EnsurePlayer(context.Background(), "R1", "Alice", "Mage")
	require.NoError(t, err)
}

func TestEnsurePlayerStoreDown(t *testing.T) {
	store := &fakeStore{findErr: errors.New("connection refused")}
	ledger := NewLedger(store)

	err := ledger.EnsurePlayer(context.Background(), "R1", "Alice", "Mage")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestIncrementScore(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)
	seedPlayer(t, store, "R1", "Alice", "Mage", 0)

	rec, err := ledger.IncrementScore(context.Background(), "R1", "Alice", 5)
	require.NoError(t, err)
	require.Equal(t, 5, rec.Score)

	rec, err = ledger.IncrementScore(context.Background(), "R1", "Alice", 3)
	require.NoError(t, err)
	require.Equal(t, 8, rec.Score)
}

func TestIncrementScoreConcurrentDeltasAllLand(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)
	seedPlayer(t, store, "R1", "Alice", "Mage", 0)
	seedPlayer(t, store, "R1", "Bob", "Knight", 0)

	const workers = 8
	const perWorker = 25

	// A conflict commits nothing, so re-issuing the delta is safe; any
	// other error is a real failure.
	increment := func(player string, delta int) {
		for {
			_, err := ledger.IncrementScore(context.Background(), "R1", player, delta)
			if err == nil {
				return
			}
			if !errors.Is(err, ErrConflict) {
				t.Errorf("increment %s: %v", player, err)
				return
			}
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				increment("Alice", 2)
				increment("Bob", 1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*perWorker*2, store.get("R1", "Alice").Score)
	require.Equal(t, workers*perWorker, store.get("R1", "Bob").Score)
}

func TestIncrementScoreUnknownPlayer(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)

	_, err := ledger.IncrementScore(context.Background(), "R1", "Ghost", 5)
	require.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestIncrementScoreConflictRetriesExhausted(t *testing.T) {
	store := &fakeStore{alwaysConflict: true}
	ledger := NewLedger(store)
	seedPlayer(t, store, "R1", "Alice", "Mage", 0)

	_, err := ledger.IncrementScore(context.Background(), "R1", "Alice", 5)
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, incrementRetries, store.updateCalls)
}

func TestIncrementScoreStoreDown(t *testing.T) {
	store := &fakeStore{findErr: errors.New("server selection timeout")}
	ledger := NewLedger(store)

	_, err := ledger.IncrementScore(context.Background(), "R1", "Alice", 5)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestMarkFinishedIdempotent(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)
	seedPlayer(t, store, "R1", "Alice", "Mage", 8)

	rec, err := ledger.MarkFinished(context.Background(), "R1", "Alice")
	require.NoError(t, err)
	require.True(t, rec.Finished)
	require.Equal(t, 8, rec.Score)

	rec, err = ledger.MarkFinished(context.Background(), "R1", "Alice")
	require.NoError(t, err)
	require.True(t, rec.Finished)
}

func TestMarkFinishedUnknownPlayer(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)

	_, err := ledger.MarkFinished(context.Background(), "R1", "Ghost")
	require.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestRemovePlayer(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)
	seedPlayer(t, store, "R1", "Alice", "Mage", 8)
	seedPlayer(t, store, "R1", "Bob", "Knight", 3)

	err := ledger.RemovePlayer(context.Background(), "R1", "Alice")
	require.NoError(t, err)

	require.Nil(t, store.get("R1", "Alice"))
	require.NotNil(t, store.get("R1", "Bob"))
}

func TestSnapshotScopedToRoom(t *testing.T) {
	store := &fakeStore{}
	ledger := NewLedger(store)
	seedPlayer(t, store, "R1", "Alice", "Mage", 8)
	seedPlayer(t, store, "R2", "Carol", "Rogue", 2)

	records, err := ledger.Snapshot(context.Background(), "R1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Alice", records[0].Player)
}
