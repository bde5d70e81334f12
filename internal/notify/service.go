package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"pockets/internal/core"
	"pockets/internal/kv"
	"pockets/internal/ledger"
)

var ErrNotInitialized = errors.New("notification service not initialized")

// Settings is persisted under kv.KeyNotificationSettings.
type Settings struct {
	Enabled bool     `json:"enabled"`
	Rules   []string `json:"rules"`
}

func DefaultSettings() Settings {
	return Settings{Enabled: true, Rules: []string{"3d", "1d", "due", "overdue"}}
}

func (s Settings) Validate() error {
	for _, name := range s.Rules {
		if _, err := GetRule(name); err != nil {
			return fmt.Errorf("%w: %v", core.ErrValidation, err)
		}
	}
	return nil
}

// Dispatcher delivers a reminder. *amqp.Client implements it.
type Dispatcher interface {
	PublishBillReminder(ctx context.Context, r core.BillReminder) error
}

// PocketSource supplies the bills to check. *ledger.Store implements it.
type PocketSource interface {
	Pockets() []core.Pocket
}

// Service checks unpaid bills against the enabled reminder rules and
// dispatches each reminder once per bill, due date and rule. It must be
// initialized before use and closed when done.
type Service struct {
	kv         kv.Store
	source     PocketSource
	dispatcher Dispatcher
	logger     *slog.Logger

	mu          sync.Mutex
	initialized bool
	settings    Settings
	sent        map[string]struct{}
}

func NewService(store kv.Store, source PocketSource, dispatcher Dispatcher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		kv:         store,
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Initialize loads settings and the sent set. Missing or unreadable
// values fall back to defaults.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := DefaultSettings()
	raw, ok, err := s.kv.Get(ctx, kv.KeyNotificationSettings)
	if err != nil {
		return fmt.Errorf("%w: read notification settings: %v", core.ErrPersistence, err)
	}
	if ok {
		var stored Settings
		if err := json.Unmarshal(raw, &stored); err != nil || stored.Validate() != nil {
			s.logger.WarnContext(ctx, "Ignoring unreadable notification settings", "error", err)
		} else {
			settings = stored
		}
	}

	sent := make(map[string]struct{})
	raw, ok, err = s.kv.Get(ctx, kv.KeySentNotifications)
	if err != nil {
		return fmt.Errorf("%w: read sent notifications: %v", core.ErrPersistence, err)
	}
	if ok {
		var keys []string
		if err := json.Unmarshal(raw, &keys); err != nil {
			s.logger.WarnContext(ctx, "Ignoring unreadable sent notifications", "error", err)
		}
		for _, k := range keys {
			sent[k] = struct{}{}
		}
	}

	s.settings = settings
	s.sent = sent
	s.initialized = true
	s.logger.InfoContext(ctx, "Notification service initialized",
		"enabled", settings.Enabled, "rules", settings.Rules, "sent", len(sent))
	return nil
}

// Close releases the service. It can be initialized again afterwards.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.sent = nil
	return nil
}

func (s *Service) Settings() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return Settings{}, ErrNotInitialized
	}
	out := s.settings
	out.Rules = append([]string(nil), s.settings.Rules...)
	return out, nil
}

// UpdateSettings validates and persists settings.
func (s *Service) UpdateSettings(ctx context.Context, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	b, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := s.kv.Set(ctx, kv.KeyNotificationSettings, b); err != nil {
		return fmt.Errorf("%w: save notification settings: %v", core.ErrPersistence, err)
	}
	s.settings = settings
	return nil
}

// CheckUpcoming dispatches every reminder that fires at now and has not
// been sent yet. Dispatch failures are logged and joined into the
// returned error; the reminders that were delivered are still recorded.
func (s *Service) CheckUpcoming(ctx context.Context, now time.Time) ([]core.BillReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}
	if !s.settings.Enabled {
		return nil, nil
	}

	today := startOfDay(now)
	pockets := s.source.Pockets()
	live := make(map[string]struct{})

	var (
		fired   []core.BillReminder
		errs    []error
		changed bool
	)
	for _, p := range pockets {
		if !p.IsBill() || p.IsPaid || p.DueDate == nil {
			continue
		}
		live[p.ID] = struct{}{}
		days := int(math.Round(startOfDay(p.DueDate.In(now.Location())).Sub(today).Hours() / 24))

		for _, name := range s.settings.Rules {
			rule, err := GetRule(name)
			if err != nil || !rule.Fires(days) {
				continue
			}
			key := sentKey(p.ID, *p.DueDate, name)
			if _, done := s.sent[key]; done {
				continue
			}
			r := core.BillReminder{
				BillID:    p.ID,
				BillName:  p.Name,
				Amount:    p.GoalAmount(),
				DueDate:   *p.DueDate,
				Rule:      name,
				DaysUntil: days,
				Timestamp: now.UTC(),
			}
			if err := s.dispatcher.PublishBillReminder(ctx, r); err != nil {
				s.logger.ErrorContext(ctx, "Failed to dispatch bill reminder",
					"bill_id", p.ID, "rule", name, "error", err)
				errs = append(errs, fmt.Errorf("bill %s rule %s: %w", p.ID, name, err))
				continue
			}
			s.sent[key] = struct{}{}
			changed = true
			fired = append(fired, r)
		}
	}

	// Forget reminders for bills that were paid or removed.
	for key := range s.sent {
		id, _, _ := strings.Cut(key, "|")
		if _, ok := live[id]; !ok {
			delete(s.sent, key)
			changed = true
		}
	}

	if changed {
		if err := s.saveSentLocked(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(fired) > 0 {
		s.logger.InfoContext(ctx, "Bill reminders dispatched", "count", len(fired))
	}
	return fired, errors.Join(errs...)
}

func (s *Service) saveSentLocked(ctx context.Context) error {
	keys := make([]string, 0, len(s.sent))
	for k := range s.sent {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encode sent notifications: %w", err)
	}
	if err := s.kv.Set(ctx, kv.KeySentNotifications, b); err != nil {
		return fmt.Errorf("%w: save sent notifications: %v", core.ErrPersistence, err)
	}
	return nil
}

func sentKey(billID string, due time.Time, rule string) string {
	return billID + "|" + due.UTC().Format(time.DateOnly) + "|" + rule
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// LogDispatcher writes reminders to the log instead of a broker.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) PublishBillReminder(ctx context.Context, r core.BillReminder) error {
	l := d.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "Bill reminder",
		"bill_id", r.BillID,
		"bill", r.BillName,
		"rule", r.Rule,
		"days_until", r.DaysUntil,
		"amount_cents", r.Amount.Cents)
	return nil
}

// LogNotifier reports ledger notices through the log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, notice ledger.Notice) {
	l := n.Logger
	if l == nil {
		l = slog.Default()
	}
	level := slog.LevelInfo
	switch notice.Level {
	case ledger.LevelError:
		level = slog.LevelError
	case ledger.LevelWarning:
		level = slog.LevelWarn
	}
	l.Log(ctx, level, "Notice", "level", notice.Level, "message", notice.Message)
}
