package appointment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

// Weekdays in ISO order, Monday=0 ... Sunday=6.
var Weekdays = [7]Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// BlockedDates is not a weekday. Its entries are YYYY-MM-DD dates on which the
// physician takes no bookings, whatever the weekday windows say.
const BlockedDates Weekday = "blocked"

const blockedDateLayout = "2006-01-02"

// Rule sets written by the first releases used Portuguese keys.
var legacyWeekdayNames = map[string]Weekday{
	"segunda": Monday,
	"terca":   Tuesday,
	"terça":   Tuesday,
	"quarta":  Wednesday,
	"quinta":  Thursday,
	"sexta":   Friday,
	"sabado":  Saturday,
	"sábado":  Saturday,
	"domingo": Sunday,
}

func (d Weekday) valid() bool {
	for _, w := range Weekdays {
		if d == w {
			return true
		}
	}
	return false
}

// WeekdayOf returns the weekday name of t.
func WeekdayOf(t time.Time) Weekday {
	return Weekdays[isoWeekdayIndex(t)]
}

func isoWeekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// ruleKey maps a rule document key onto a weekday or BlockedDates.
func ruleKey(key string) (Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case string(BlockedDates), "bloqueios":
		return BlockedDates, nil
	}
	return ParseWeekday(key)
}

// ParseWeekday accepts English or legacy Portuguese names, case-insensitively.
func ParseWeekday(s string) (Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, d := range Weekdays {
		if string(d) == name {
			return d, nil
		}
	}
	if d, ok := legacyWeekdayNames[name]; ok {
		return d, nil
	}
	return "", fmt.Errorf("unknown weekday %q", s)
}

// Interval is a half-open window [Start, End) measured from midnight.
type Interval struct {
	Start time.Duration
	End   time.Duration
}

// ParseInterval parses "HH:MM-HH:MM".
func ParseInterval(s string) (Interval, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Interval{}, fmt.Errorf("interval %q: expected HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return Interval{}, fmt.Errorf("interval %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return Interval{}, fmt.Errorf("interval %q: %w", s, err)
	}
	if start >= end {
		return Interval{}, fmt.Errorf("interval %q: start must be before end", s)
	}
	return Interval{Start: start, End: end}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (i Interval) String() string {
	return formatClock(i.Start) + "-" + formatClock(i.End)
}

func formatClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// RuleSet maps a weekday to the "HH:MM-HH:MM" windows a physician works on
// that day. A weekday missing from the map is a day off. The BlockedDates key
// lists single dates that are off regardless of the weekday.
type RuleSet map[Weekday][]string

// NewRuleSet normalises weekday keys and validates every interval.
func NewRuleSet(raw map[string][]string) (RuleSet, error) {
	rs := make(RuleSet, len(raw))
	for key, intervals := range raw {
		day, err := ruleKey(key)
		if err != nil {
			return nil, err
		}
		rs[day] = append(rs[day], intervals...)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// Validate reports every malformed interval.
func (rs RuleSet) Validate() error {
	var problems []string
	for _, day := range Weekdays {
		for _, raw := range rs[day] {
			if _, err := ParseInterval(raw); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", day, err))
			}
		}
	}
	for _, raw := range rs[BlockedDates] {
		if _, err := time.Parse(blockedDateLayout, raw); err != nil {
			problems = append(problems, fmt.Sprintf("%s: date %q must be YYYY-MM-DD", BlockedDates, raw))
		}
	}
	for day := range rs {
		if day != BlockedDates && !day.valid() {
			problems = append(problems, fmt.Sprintf("unknown weekday %q", string(day)))
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid availability rules: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Intervals returns the parsed windows for day, skipping malformed entries.
func (rs RuleSet) Intervals(day Weekday) []Interval {
	raw := rs[day]
	out := make([]Interval, 0, len(raw))
	for _, s := range raw {
		iv, err := ParseInterval(s)
		if err != nil {
			continue
		}
		out = append(out, iv)
	}
	return out
}

func (rs RuleSet) WorksOn(day Weekday) bool {
	_, ok := rs[day]
	return ok
}

// IsBlocked reports whether the calendar date of t is a blocked date.
func (rs RuleSet) IsBlocked(t time.Time) bool {
	if len(rs[BlockedDates]) == 0 {
		return false
	}
	date := t.Format(blockedDateLayout)
	for _, d := range rs[BlockedDates] {
		if strings.TrimSpace(d) == date {
			return true
		}
	}
	return false
}

// MarshalJSON writes weekdays in Monday..Sunday order, then blocked dates.
func (rs RuleSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, day := range append(Weekdays[:], BlockedDates) {
		intervals, ok := rs[day]
		if !ok {
			continue
		}
		if intervals == nil {
			intervals = []string{}
		}
		val, err := json.Marshal(intervals)
		if err != nil {
			return nil, err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&buf, "%q:", day)
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts the weekday map (English or Portuguese keys) and the
// legacy daily-window document.
func (rs *RuleSet) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode availability rules: %w", err)
	}
	if doc == nil {
		*rs = RuleSet{}
		return nil
	}

	if isLegacyDocument(doc) {
		for key := range doc {
			if !legacyKeys[key] {
				return fmt.Errorf("decode availability rules: key %q cannot be mixed with the legacy daily-window fields", key)
			}
		}
		var legacy LegacyRules
		if err := json.Unmarshal(data, &legacy); err != nil {
			return fmt.Errorf("decode legacy availability rules: %w", err)
		}
		converted, err := legacy.RuleSet()
		if err != nil {
			return err
		}
		*rs = converted
		return nil
	}

	out := make(RuleSet, len(doc))
	for key, raw := range doc {
		day, err := ruleKey(key)
		if err != nil {
			return fmt.Errorf("decode availability rules: %w", err)
		}
		var intervals []string
		if err := json.Unmarshal(raw, &intervals); err != nil {
			return fmt.Errorf("decode availability rules for %s: %w", day, err)
		}
		// a listed weekday with no windows stays listed
		out[day] = append(out[day], intervals...)
		if out[day] == nil {
			out[day] = []string{}
		}
	}
	*rs = out
	return nil
}

var legacyKeys = map[string]bool{
	"dias_semana": true,
	"hora_inicio": true,
	"hora_fim":    true,
	"bloqueios":   true,
}

func isLegacyDocument(doc map[string]json.RawMessage) bool {
	for key := range legacyKeys {
		if _, ok := doc[key]; ok {
			return true
		}
	}
	return false
}

// LegacyRules is the single daily window schema: one start/end pair applied to
// a list of ISO weekday numbers (0=Monday), plus blocked dates.
type LegacyRules struct {
	Weekdays []int    `json:"dias_semana"`
	Start    string   `json:"hora_inicio"`
	End      string   `json:"hora_fim"`
	Blocked  []string `json:"bloqueios"`
}

// RuleSet converts the legacy document, applying its historical defaults
// (Monday to Friday, 08:00-17:00).
func (l LegacyRules) RuleSet() (RuleSet, error) {
	days := l.Weekdays
	if days == nil {
		days = []int{0, 1, 2, 3, 4}
	}
	start, end := l.Start, l.End
	if start == "" {
		start = "08:00"
	}
	if end == "" {
		end = "17:00"
	}
	window := strings.TrimSpace(start) + "-" + strings.TrimSpace(end)
	if _, err := ParseInterval(window); err != nil {
		return nil, fmt.Errorf("legacy availability rules: %w", err)
	}

	rs := make(RuleSet, len(days)+1)
	for _, n := range days {
		if n < 0 || n > 6 {
			return nil, fmt.Errorf("legacy availability rules: weekday %d out of range", n)
		}
		rs[Weekdays[n]] = []string{window}
	}
	if len(l.Blocked) > 0 {
		rs[BlockedDates] = append([]string(nil), l.Blocked...)
		if err := rs.Validate(); err != nil {
			return nil, fmt.Errorf("legacy availability rules: %w", err)
		}
	}
	return rs, nil
}
