// Package notify sends bill reminders.
//
// This file implements the reminder rules as a strategy registry. Each
// rule decides, from the number of calendar days until a bill is due,
// whether its reminder should fire.
package notify

import (
	"fmt"
	"sort"
	"sync"
)

// Rule is the strategy interface for reminder rules.
type Rule interface {
	// Fires reports whether the reminder applies. daysUntil is negative
	// once the due date has passed.
	Fires(daysUntil int) bool
}

// DaysBeforeRule fires exactly Days days before the due date.
type DaysBeforeRule struct {
	Days int
}

func (r DaysBeforeRule) Fires(daysUntil int) bool {
	return daysUntil == r.Days
}

// DueTodayRule fires on the due date.
type DueTodayRule struct{}

func (DueTodayRule) Fires(daysUntil int) bool { return daysUntil == 0 }

// OverdueRule fires on any day after the due date.
type OverdueRule struct{}

func (OverdueRule) Fires(daysUntil int) bool { return daysUntil < 0 }

var (
	rulesMu sync.RWMutex
	rules   = map[string]Rule{
		"3d":      DaysBeforeRule{Days: 3},
		"1d":      DaysBeforeRule{Days: 1},
		"due":     DueTodayRule{},
		"overdue": OverdueRule{},
	}
)

// GetRule returns the rule registered under name.
func GetRule(name string) (Rule, error) {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	r, ok := rules[name]
	if !ok {
		return nil, fmt.Errorf("unknown reminder rule: %s", name)
	}
	return r, nil
}

// RegisterRule adds or replaces a rule.
func RegisterRule(name string, r Rule) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	rules[name] = r
}

// RuleNames lists registered rule names, sorted.
func RuleNames() []string {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	out := make([]string, 0, len(rules))
	for name := range rules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
