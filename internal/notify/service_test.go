package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pockets/internal/core"
	"pockets/internal/kv"
	"pockets/internal/storage/memory"
)

type staticSource []core.Pocket

func (s staticSource) Pockets() []core.Pocket { return core.ClonePockets(s) }

type recordingDispatcher struct {
	sent []core.BillReminder
	err  error
}

func (d *recordingDispatcher) PublishBillReminder(_ context.Context, r core.BillReminder) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, r)
	return nil
}

func bill(id string, due time.Time, paid bool) core.Pocket {
	goal := core.Cents(4200)
	return core.Pocket{ID: id, Name: "Bill " + id, Category: core.CategoryBills, Goal: &goal, DueDate: &due, IsPaid: paid}
}

func TestRules(t *testing.T) {
	tests := []struct {
		rule string
		days int
		want bool
	}{
		{"3d", 3, true},
		{"3d", 2, false},
		{"1d", 1, true},
		{"due", 0, true},
		{"due", -1, false},
		{"overdue", -1, true},
		{"overdue", -30, true},
		{"overdue", 0, false},
	}
	for _, tt := range tests {
		r, err := GetRule(tt.rule)
		if err != nil {
			t.Fatalf("GetRule(%s): %v", tt.rule, err)
		}
		if got := r.Fires(tt.days); got != tt.want {
			t.Errorf("%s.Fires(%d) = %v, want %v", tt.rule, tt.days, got, tt.want)
		}
	}

	if _, err := GetRule("weekly"); err == nil {
		t.Fatal("expected error for unknown rule")
	}
	RegisterRule("7d", DaysBeforeRule{Days: 7})
	if _, err := GetRule("7d"); err != nil {
		t.Fatalf("registered rule not found: %v", err)
	}
}

func TestServiceRequiresInitialize(t *testing.T) {
	s := NewService(memory.New(), staticSource{}, &recordingDispatcher{}, nil)
	if _, err := s.CheckUpcoming(context.Background(), time.Now()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
	if _, err := s.Settings(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("err = %v, want ErrNotInitialized", err)
	}
}

func TestCheckUpcomingDispatchesOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	source := staticSource{
		bill("soon", time.Date(2024, 3, 18, 0, 0, 0, 0, time.UTC), false),
		bill("today", time.Date(2024, 3, 15, 23, 0, 0, 0, time.UTC), false),
		bill("late", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), false),
		bill("paid", time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), true),
		bill("later", time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), false),
		{ID: "plain", Category: core.CategoryGeneral},
	}
	store := memory.New()
	d := &recordingDispatcher{}
	s := NewService(store, source, d, nil)
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	fired, err := s.CheckUpcoming(ctx, now)
	if err != nil {
		t.Fatalf("CheckUpcoming: %v", err)
	}
	got := map[string]string{}
	for _, r := range fired {
		got[r.BillID] = r.Rule
	}
	want := map[string]string{"soon": "3d", "today": "due", "late": "overdue"}
	if len(got) != len(want) {
		t.Fatalf("fired %+v, want %+v", got, want)
	}
	for id, rule := range want {
		if got[id] != rule {
			t.Fatalf("bill %s fired %q, want %q", id, got[id], rule)
		}
	}

	again, err := s.CheckUpcoming(ctx, now.Add(time.Hour))
	if err != nil || len(again) != 0 {
		t.Fatalf("second check fired %+v, err %v", again, err)
	}

	raw, ok, _ := store.Get(ctx, kv.KeySentNotifications)
	var keys []string
	if !ok || json.Unmarshal(raw, &keys) != nil || len(keys) != 3 {
		t.Fatalf("sent set not persisted: %s", raw)
	}

	// A fresh service over the same store remembers what was sent.
	s2 := NewService(store, source, d, nil)
	if err := s2.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if fired, _ := s2.CheckUpcoming(ctx, now); len(fired) != 0 {
		t.Fatalf("reinitialized service re-sent %+v", fired)
	}
}

func TestCheckUpcomingDispatchFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	source := staticSource{bill("b", time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), false)}
	d := &recordingDispatcher{err: errors.New("broker down")}
	s := NewService(memory.New(), source, d, nil)
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if _, err := s.CheckUpcoming(ctx, now); err == nil {
		t.Fatal("expected dispatch error")
	}
	d.err = nil
	fired, err := s.CheckUpcoming(ctx, now)
	if err != nil || len(fired) != 1 || fired[0].Rule != "1d" {
		t.Fatalf("retry fired %+v, err %v", fired, err)
	}
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	source := staticSource{bill("b", now, false)}
	d := &recordingDispatcher{}
	s := NewService(store, source, d, nil)
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	got, _ := s.Settings()
	if !got.Enabled || len(got.Rules) != 4 {
		t.Fatalf("unexpected defaults %+v", got)
	}

	if err := s.UpdateSettings(ctx, Settings{Enabled: true, Rules: []string{"fortnight"}}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if err := s.UpdateSettings(ctx, Settings{Enabled: false, Rules: []string{"due"}}); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	if fired, _ := s.CheckUpcoming(ctx, now); len(fired) != 0 {
		t.Fatalf("disabled service fired %+v", fired)
	}

	_ = s.Close()
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	got, _ = s.Settings()
	if got.Enabled || len(got.Rules) != 1 || got.Rules[0] != "due" {
		t.Fatalf("settings not persisted: %+v", got)
	}
}

func TestInitializeIgnoresCorruptValues(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_ = store.Set(ctx, kv.KeyNotificationSettings, []byte("{"))
	_ = store.Set(ctx, kv.KeySentNotifications, []byte("nope"))

	s := NewService(store, staticSource{}, &recordingDispatcher{}, nil)
	if err := s.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	got, _ := s.Settings()
	if !got.Enabled || len(got.Rules) != len(DefaultSettings().Rules) {
		t.Fatalf("expected defaults, got %+v", got)
	}
}
