package session

import (
	"sync"
	"testing"
	"time"

	"github.com/venturelab/sprint-copilot/internal/domain"
	"github.com/venturelab/sprint-copilot/internal/shared"
)

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h, err := r.Create("s1", "u1", "item_01")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	snap := h.Snapshot()
	if snap.ID != "s1" || snap.UserID != "u1" || snap.SprintItemID != "item_01" {
		t.Errorf("Unexpected session fields: %+v", snap)
	}
	if snap.Phase != domain.PhaseDesign {
		t.Errorf("New session should start in design, got %s", snap.Phase)
	}

	got, err := r.Get("s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != h {
		t.Error("Get should return the same handle")
	}
}

func TestCreateGeneratesID(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h, err := r.Create("", "u1", "item_01")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if h.ID() == "" {
		t.Error("Expected a generated session id")
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Create("s1", "u1", "item_01"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err := r.Create("s1", "u2", "item_02")
	if !shared.IsValidation(err) {
		t.Errorf("Expected Validation error for duplicate id, got %v", err)
	}
}

func TestGetUnknownSession(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Get("ghost"); !shared.IsNotFound(err) {
		t.Errorf("Expected NotFound, got %v", err)
	}
}

func TestGetOrCreate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	h1, created, err := r.GetOrCreate("s1", "u1", "item_01")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Error("First call should create")
	}

	h2, created, err := r.GetOrCreate("s1", "u1", "item_99")
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if created {
		t.Error("Second call should find the existing session")
	}
	if h2 != h1 {
		t.Error("Expected the same handle back")
	}
	if h2.Snapshot().SprintItemID != "item_01" {
		t.Error("Existing session must keep its sprint item")
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.Create("s1", "u1", "item_01"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	r.Remove("s1")
	if _, err := r.Get("s1"); !shared.IsNotFound(err) {
		t.Errorf("Expected NotFound after removal, got %v", err)
	}

	// Removing twice is fine.
	r.Remove("s1")
	if r.Len() != 0 {
		t.Errorf("Expected empty registry, got %d", r.Len())
	}
}

func TestBeginTurnBusy(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h, err := r.Create("s1", "u1", "item_01")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := h.BeginTurn(); err != nil {
		t.Fatalf("First BeginTurn failed: %v", err)
	}

	if err := h.BeginTurn(); !shared.IsBusy(err) {
		t.Errorf("Expected Busy while a turn is in flight, got %v", err)
	}

	h.EndTurn()

	if err := h.BeginTurn(); err != nil {
		t.Errorf("BeginTurn after EndTurn failed: %v", err)
	}
	h.EndTurn()
}

func TestConcurrentTurnsOnlyOneWins(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h, err := r.Create("s1", "u1", "item_01")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const attempts = 16
	var wg sync.WaitGroup
	wg.Add(attempts)
	start := make(chan struct{})
	won := make(chan struct{}, attempts)

	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			<-start
			if err := h.BeginTurn(); err == nil {
				won <- struct{}{}
				time.Sleep(10 * time.Millisecond)
				h.EndTurn()
			} else if !shared.IsBusy(err) {
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(won)

	winners := 0
	for range won {
		winners++
	}
	if winners == 0 {
		t.Error("At least one goroutine should claim the turn")
	}
}

func TestSnapshotIsolatedFromMutation(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h, err := r.Create("s1", "u1", "item_01")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	snap := h.Snapshot()
	snap.PhaseSummaries[domain.PhaseDesign] = "tampered"

	err = h.WithSession(func(s *domain.Session) error {
		if _, ok := s.PhaseSummaries[domain.PhaseDesign]; ok {
			t.Error("Snapshot mutation leaked into the live session")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithSession failed: %v", err)
	}
}

func TestEvictIdleRemovesStaleSessions(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	stale, err := r.Create("stale", "u1", "item_01")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	fresh, err := r.Create("fresh", "u1", "item_02")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	backdate := func(h *Handle, d time.Duration) {
		_ = h.WithSession(func(s *domain.Session) error {
			s.LastActiveAt = time.Now().Add(-d)
			return nil
		})
	}
	backdate(stale, time.Hour)
	backdate(fresh, time.Second)

	r.evictIdle(30 * time.Minute)

	if _, err := r.Get("stale"); !shared.IsNotFound(err) {
		t.Errorf("Expected stale session evicted, got %v", err)
	}
	if _, err := r.Get("fresh"); err != nil {
		t.Errorf("Fresh session should survive, got %v", err)
	}
}

func TestEvictIdleSkipsInFlightTurn(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	h, err := r.Create("busy", "u1", "item_01")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := h.BeginTurn(); err != nil {
		t.Fatalf("BeginTurn failed: %v", err)
	}
	_ = h.WithSession(func(s *domain.Session) error {
		s.LastActiveAt = time.Now().Add(-time.Hour)
		return nil
	})

	r.evictIdle(time.Minute)

	if _, err := r.Get("busy"); err != nil {
		t.Errorf("Session with an in-flight turn must not be evicted, got %v", err)
	}
	h.EndTurn()
}
