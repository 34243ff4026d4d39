package schedule

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/podflow/engine"
)

// Mode is when a submitted job should run.
type Mode string

const (
	ModeImmediate    Mode = "IMMEDIATE"
	ModeRecurring    Mode = "RECURRING"
	ModeSpecificTime Mode = "SPECIFIC_TIME"
)

// Unit is the recurring interval unit.
type Unit string

const (
	UnitHours Unit = "HOURS"
	UnitDays  Unit = "DAYS"
	UnitWeeks Unit = "WEEKS"
)

// Recurring holds the interval of a RECURRING schedule.
type Recurring struct {
	IntervalValue  int    `json:"intervalValue"`
	IntervalUnit   Unit   `json:"intervalUnit"`
	CronExpression string `json:"cronExpression,omitempty"`
}

// Interval returns the recurring period, capped at the longest
// representable duration.
func (r Recurring) Interval() time.Duration {
	unit := r.IntervalUnit.Duration()
	if r.IntervalValue > MaxInterval(r.IntervalUnit) {
		return time.Duration(MaxInterval(r.IntervalUnit)) * unit
	}
	return time.Duration(r.IntervalValue) * unit
}

// Duration returns the length of one unit; unknown units count as days.
func (u Unit) Duration() time.Duration {
	switch u {
	case UnitHours:
		return time.Hour
	case UnitWeeks:
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// MaxInterval is the largest interval value of unit u that fits in a
// time.Duration.
func MaxInterval(u Unit) int {
	return int(math.MaxInt64 / int64(u.Duration()))
}

// Config is a normalized schedule intent.
type Config struct {
	Mode         Mode       `json:"mode"`
	Recurring    *Recurring `json:"recurring,omitempty"`
	SpecificTime *time.Time `json:"specificTime,omitempty"`
	IsActive     bool       `json:"isActive"`
}

// Raw is the intent as submitted. IntervalValue accepts a number or a
// numeric string.
type Raw struct {
	Mode           string `json:"mode"`
	IntervalValue  any    `json:"intervalValue"`
	IntervalUnit   string `json:"intervalUnit"`
	CronExpression string `json:"cronExpression"`
	SpecificTime   string `json:"specificTime"`
	IsActive       *bool  `json:"isActive"`
}

// timeLayouts are tried in order; the second is what datetime-local inputs
// send.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
}

// Parse normalizes raw and never fails: an unknown mode becomes IMMEDIATE,
// a missing, non-numeric, < 1 or unrepresentable interval becomes 1, an unknown unit becomes
// DAYS and an unparsable time is cleared.
func Parse(raw Raw) Config {
	cfg := Config{Mode: parseMode(raw.Mode)}
	cfg.IsActive = cfg.Mode != ModeImmediate
	if raw.IsActive != nil && !*raw.IsActive {
		cfg.IsActive = false
	}

	switch cfg.Mode {
	case ModeRecurring:
		unit := parseUnit(raw.IntervalUnit)
		value := parseInterval(raw.IntervalValue)
		if value > MaxInterval(unit) {
			value = 1
		}
		cfg.Recurring = &Recurring{
			IntervalValue:  value,
			IntervalUnit:   unit,
			CronExpression: strings.TrimSpace(raw.CronExpression),
		}
	case ModeSpecificTime:
		if t, ok := parseTime(raw.SpecificTime); ok {
			cfg.SpecificTime = &t
		}
	}
	return cfg
}

func parseMode(s string) Mode {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case ModeImmediate, ModeRecurring, ModeSpecificTime:
		return m
	}
	return ModeImmediate
}

func parseUnit(s string) Unit {
	switch u := Unit(strings.ToUpper(strings.TrimSpace(s))); u {
	case UnitHours, UnitDays, UnitWeeks:
		return u
	}
	return UnitDays
}

func parseInterval(v any) int {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case int:
		n = float64(x)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 1
		}
		n = float64(i)
	default:
		return 1
	}
	if math.IsNaN(n) || n < 1 || n > math.MaxInt32 {
		return 1
	}
	return int(n)
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Starter starts a run.
type Starter interface {
	StartRun(ctx context.Context, name string) (engine.RunInfo, error)
}

// Submission reports what Submit did.
type Submission struct {
	Scheduled bool            `json:"scheduled"`
	Mode      Mode            `json:"mode"`
	Run       *engine.RunInfo `json:"run,omitempty"`
	// NextRun is informational; nothing is armed for it.
	NextRun *time.Time `json:"nextRun,omitempty"`
}

// Submit starts a run when cfg is inactive or IMMEDIATE. Other modes start
// nothing and return a scheduled stub.
func Submit(ctx context.Context, cfg Config, starter Starter, name string) (Submission, error) {
	if !cfg.IsActive || cfg.Mode == ModeImmediate {
		info, err := starter.StartRun(ctx, name)
		if err != nil {
			return Submission{}, err
		}
		return Submission{Mode: ModeImmediate, Run: &info}, nil
	}

	sub := Submission{Scheduled: true, Mode: cfg.Mode}
	switch {
	case cfg.Mode == ModeRecurring && cfg.Recurring != nil:
		next := time.Now().Add(cfg.Recurring.Interval())
		sub.NextRun = &next
	case cfg.Mode == ModeSpecificTime && cfg.SpecificTime != nil:
		sub.NextRun = cfg.SpecificTime
	}
	return sub, nil
}
