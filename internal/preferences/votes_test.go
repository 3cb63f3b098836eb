package preferences

import (
	"context"
	"testing"
)

type recordingObserver struct {
	events []VoteEvent
}

func (observer *recordingObserver) VoteRecorded(_ context.Context, event VoteEvent) {
	observer.events = append(observer.events, event)
}

func TestCastVoteTalliesExactCounts(t *testing.T) {
	service, _ := newTestService(t)
	colors := mustCategory(t, service, "Colors")
	preference := mustPreference(t, service, colors.ID, "Red", "Blue", true)

	for index := 0; index < 4; index++ {
		mustVote(t, service, preference.ID, SidePreference1)
	}
	for index := 0; index < 7; index++ {
		mustVote(t, service, preference.ID, SidePreference2)
	}

	tally, err := service.Tally(context.Background(), preference.ID)
	if err != nil {
		t.Fatalf("tally failed: %v", err)
	}
	if tally.Preference1 != 4 || tally.Preference2 != 7 {
		t.Fatalf("expected 4/7, got %+v", tally)
	}
}

func TestCastVoteRejectsInvalidInput(t *testing.T) {
	service, db := newTestService(t)
	colors := mustCategory(t, service, "Colors")
	preference := mustPreference(t, service, colors.ID, "Red", "Blue", true)

	for _, side := range []string{"", "preference3", "PREFERENCE1", "both"} {
		_, err := service.CastVote(context.Background(), preference.ID, side)
		requireErrorIs(t, err, ErrValidation)
		requireCode(t, err, "preferences.cast_vote.invalid_input")
	}

	_, err := service.CastVote(context.Background(), 999, "preference1")
	requireErrorIs(t, err, ErrNotFound)
	requireCode(t, err, "preferences.cast_vote.preference_not_found")

	if stored := countRows(t, db, &Vote{}, ""); stored != 0 {
		t.Fatalf("expected no votes stored, got %d", stored)
	}
}

func TestCastVoteNotifiesObserver(t *testing.T) {
	recorder := &recordingObserver{}
	service, _ := newTestService(t, func(cfg *ServiceConfig) {
		cfg.Observer = recorder
	})
	colors := mustCategory(t, service, "Colors")
	preference := mustPreference(t, service, colors.ID, "Red", "Blue", true)

	vote := mustVote(t, service, preference.ID, SidePreference2)

	if len(recorder.events) != 1 {
		t.Fatalf("expected one event, got %d", len(recorder.events))
	}
	event := recorder.events[0]
	if event.CategoryID != colors.ID || event.Vote.ID != vote.ID || event.Vote.Vote != SidePreference2 {
		t.Fatalf("unexpected event: %+v", event)
	}

	_, _ = service.CastVote(context.Background(), preference.ID, "nope")
	if len(recorder.events) != 1 {
		t.Fatalf("expected rejected vote not to notify, got %d events", len(recorder.events))
	}
}

func TestTallyUnknownPreference(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Tally(context.Background(), 77)
	requireErrorIs(t, err, ErrNotFound)
	requireCode(t, err, "preferences.tally.preference_not_found")
}

func TestParseSide(t *testing.T) {
	side, err := ParseSide(" preference2 ")
	if err != nil || side != SidePreference2 {
		t.Fatalf("expected preference2, got %q, %v", side, err)
	}
	if _, err := ParseSide("left"); err == nil {
		t.Fatalf("expected error for unknown side")
	}
}
