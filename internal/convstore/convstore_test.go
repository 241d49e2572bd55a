package convstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/StudyLine/internal/models"
)

func TestGetCreatesInitialRecord(t *testing.T) {
	s := NewInMemoryStore()
	rec, err := s.Get(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.State != models.StateInitial {
		t.Errorf("fresh record should be INITIAL, got %s", rec.State)
	}
	if rec.Identity != "1234567890" {
		t.Errorf("unexpected identity %s", rec.Identity)
	}
}

func TestPeekDoesNotCreate(t *testing.T) {
	s := NewInMemoryStore()
	rec, err := s.Peek(context.Background(), "1234567890")
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if rec != nil {
		t.Fatal("Peek of unseen identity should return nil")
	}

	if _, err := s.Get(context.Background(), "1234567890"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	rec, err = s.Peek(context.Background(), "1234567890")
	if err != nil || rec == nil {
		t.Fatalf("Peek after Get should find the record, rec=%v err=%v", rec, err)
	}
}

func TestEmptyIdentityRejected(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.Get(context.Background(), ""); !errors.Is(err, models.ErrEmptyIdentity) {
		t.Errorf("expected ErrEmptyIdentity, got %v", err)
	}
	if _, err := s.Update(context.Background(), "", func(r *models.ConversationRecord) error { return nil }); !errors.Is(err, models.ErrEmptyIdentity) {
		t.Errorf("expected ErrEmptyIdentity, got %v", err)
	}
}

func TestUpdateCommitsOnlyOnNilError(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	failed := errors.New("boom")
	rec, err := s.Update(ctx, "1234567890", func(r *models.ConversationRecord) error {
		r.State = models.StateIdle
		return failed
	})
	if !errors.Is(err, failed) {
		t.Fatalf("expected mutator error surfaced, got %v", err)
	}
	if rec.State != models.StateInitial {
		t.Errorf("failed update must not commit, state = %s", rec.State)
	}

	rec, err = s.Update(ctx, "1234567890", func(r *models.ConversationRecord) error {
		r.State = models.StateIdle
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if rec.State != models.StateIdle {
		t.Errorf("successful update should commit, state = %s", rec.State)
	}
}

func TestUpdateSnapshotsDoNotAlias(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	rec, _ := s.Update(ctx, "1234567890", func(r *models.ConversationRecord) error {
		r.AppendLog(models.MessageEntry{ID: "m_1", Text: "hi"})
		return nil
	})

	// Mutating the returned snapshot must not affect stored state.
	rec.MessageLog[0].Text = "tampered"
	stored, _ := s.Get(ctx, "1234567890")
	if stored.MessageLog[0].Text != "hi" {
		t.Error("snapshot aliased the stored message log")
	}
}

func TestUpdateSerializesPerIdentity(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	const workers = 20
	const perWorker = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				_, err := s.Update(ctx, "1234567890", func(r *models.ConversationRecord) error {
					r.AppendLog(models.MessageEntry{Direction: models.DirectionUser})
					return nil
				})
				if err != nil {
					t.Errorf("Update failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	rec, _ := s.Get(ctx, "1234567890")
	if len(rec.MessageLog) != workers*perWorker {
		t.Errorf("expected %d log entries after concurrent updates, got %d", workers*perWorker, len(rec.MessageLog))
	}
}

func TestSweepIdleResetsStaleFlows(t *testing.T) {
	s := NewInMemoryStore(WithIdleTTL(time.Minute))
	ctx := context.Background()

	// Stuck mid-registration and stale.
	s.Update(ctx, "1111111111", func(r *models.ConversationRecord) error {
		r.State = models.StateRegisteringEmail
		r.Registration.Name = "Jane"
		return nil
	})
	// Live chat, also stale, must be left alone.
	s.Update(ctx, "2222222222", func(r *models.ConversationRecord) error {
		r.State = models.StateChatSupport
		r.LiveChat = true
		return nil
	})

	s.sweepIdle(time.Now().Add(2 * time.Minute))

	rec, _ := s.Get(ctx, "1111111111")
	if rec.State != models.StateIdle {
		t.Errorf("stale mid-flow conversation should reset to IDLE, got %s", rec.State)
	}
	if rec.Registration.Name != "" {
		t.Error("sweep should clear collected flow fields")
	}

	rec, _ = s.Get(ctx, "2222222222")
	if rec.State != models.StateChatSupport || !rec.LiveChat {
		t.Error("sweep must never touch live-chat conversations")
	}
}

func TestSweepIdleSkipsFreshRecords(t *testing.T) {
	s := NewInMemoryStore(WithIdleTTL(time.Hour))
	ctx := context.Background()

	s.Update(ctx, "1111111111", func(r *models.ConversationRecord) error {
		r.State = models.StateHomeworkSubject
		return nil
	})

	s.sweepIdle(time.Now())

	rec, _ := s.Get(ctx, "1111111111")
	if rec.State != models.StateHomeworkSubject {
		t.Errorf("fresh conversation should survive the sweep, got %s", rec.State)
	}
}
