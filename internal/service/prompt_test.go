package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/repository"
	"github.com/DukeRupert/regdesk/internal/testdb"
	"github.com/google/uuid"
)

func newTestPromptTracker(t *testing.T, cooldown time.Duration) (*PromptTracker, *testClock) {
	t.Helper()
	clock := newTestClock(testNow)
	tracker := NewPromptTracker(repository.New(testdb.Open(t)), testLogger(), cooldown).WithClock(clock.Now)
	return tracker, clock
}

func searchPromptParams(userID uuid.UUID) domain.CreatePromptParams {
	return domain.CreatePromptParams{
		UserID:        userID,
		QuotaType:     domain.QuotaTypeSearch,
		CurrentTier:   domain.TierFree,
		SuggestedTier: domain.TierPro,
		Metadata:      map[string]any{"usage": 21, "limit": 20},
	}
}

func TestPromptTracker_CreateOnlyOnceWhileActive(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestPromptTracker(t, DefaultPromptCooldown)
	userID := uuid.New()

	prompt, created, err := tracker.MaybeCreatePrompt(ctx, searchPromptParams(userID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created || prompt == nil {
		t.Fatal("expected first prompt to be created")
	}
	if prompt.State() != domain.PromptStateActive {
		t.Errorf("expected active prompt, got %s", prompt.State())
	}

	var meta map[string]int
	if err := json.Unmarshal(prompt.Metadata, &meta); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta["usage"] != 21 {
		t.Errorf("expected metadata usage 21, got %d", meta["usage"])
	}

	again, created, err := tracker.MaybeCreatePrompt(ctx, searchPromptParams(userID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || again != nil {
		t.Error("expected no second prompt while one is active")
	}

	// A different quota type has its own slot.
	exportParams := searchPromptParams(userID)
	exportParams.QuotaType = domain.QuotaTypeExport
	if _, created, err := tracker.MaybeCreatePrompt(ctx, exportParams); err != nil || !created {
		t.Errorf("expected export prompt to be created, created=%v err=%v", created, err)
	}
}

func TestPromptTracker_DismissCooldown(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestPromptTracker(t, 24*time.Hour)
	userID := uuid.New()

	prompt, _, err := tracker.MaybeCreatePrompt(ctx, searchPromptParams(userID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dismissed, err := tracker.Dismiss(ctx, userID, prompt.ID)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}
	if dismissed.State() != domain.PromptStateDismissed {
		t.Errorf("expected dismissed, got %s", dismissed.State())
	}

	clock.Advance(time.Hour)
	if _, created, _ := tracker.MaybeCreatePrompt(ctx, searchPromptParams(userID)); created {
		t.Error("expected no prompt within the dismissal cooldown")
	}

	clock.Advance(24 * time.Hour)
	if _, created, err := tracker.MaybeCreatePrompt(ctx, searchPromptParams(userID)); err != nil || !created {
		t.Errorf("expected prompt after cooldown, created=%v err=%v", created, err)
	}
}

func TestPromptTracker_StateTransitions(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestPromptTracker(t, 0)
	userID := uuid.New()

	prompt, _, err := tracker.MaybeCreatePrompt(ctx, searchPromptParams(userID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, err := tracker.Dismiss(ctx, userID, prompt.ID)
	if err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	clock.Advance(time.Minute)
	second, err := tracker.Dismiss(ctx, userID, prompt.ID)
	if err != nil {
		t.Fatalf("second dismiss: %v", err)
	}
	if !second.DismissedAt.Equal(*first.DismissedAt) {
		t.Error("dismissing twice must not move dismissedAt")
	}

	converted, err := tracker.MarkConverted(ctx, userID, prompt.ID)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if converted.State() != domain.PromptStateConverted {
		t.Errorf("expected converted after dismissal, got %s", converted.State())
	}

	clock.Advance(time.Minute)
	again, err := tracker.MarkConverted(ctx, userID, prompt.ID)
	if err != nil {
		t.Fatalf("second convert: %v", err)
	}
	if !again.ConvertedAt.Equal(*converted.ConvertedAt) {
		t.Error("converting twice must not move convertedAt")
	}

	afterDismiss, err := tracker.Dismiss(ctx, userID, prompt.ID)
	if err != nil {
		t.Fatalf("dismiss converted: %v", err)
	}
	if afterDismiss.State() != domain.PromptStateConverted {
		t.Errorf("converted prompt must stay converted, got %s", afterDismiss.State())
	}
}

func TestPromptTracker_ConvertActive(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestPromptTracker(t, 0)
	userID := uuid.New()

	prompt, _, err := tracker.MaybeCreatePrompt(ctx, searchPromptParams(userID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	converted, err := tracker.MarkConverted(ctx, userID, prompt.ID)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if converted.DismissedAt != nil {
		t.Error("converting an active prompt must not set dismissedAt")
	}

	active, err := tracker.ListActive(ctx, userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active prompts, got %d", len(active))
	}
}

func TestPromptTracker_NotFound(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestPromptTracker(t, 0)
	owner := uuid.New()

	prompt, _, err := tracker.MaybeCreatePrompt(ctx, searchPromptParams(owner))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		userID   uuid.UUID
		promptID uuid.UUID
	}{
		{"other user's prompt", uuid.New(), prompt.ID},
		{"unknown prompt", owner, uuid.New()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tracker.Dismiss(ctx, tt.userID, tt.promptID); domain.ErrorCode(err) != domain.ENOTFOUND {
				t.Errorf("dismiss: expected %s, got %v", domain.ENOTFOUND, err)
			}
			if _, err := tracker.MarkConverted(ctx, tt.userID, tt.promptID); domain.ErrorCode(err) != domain.ENOTFOUND {
				t.Errorf("convert: expected %s, got %v", domain.ENOTFOUND, err)
			}
		})
	}

	// The owner's prompt is untouched.
	active, err := tracker.ListActive(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("expected owner's prompt to stay active, got %d", len(active))
	}
}
