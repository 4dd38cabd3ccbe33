package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Level is an ordinal attribute value.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Rank maps a level onto {low:1, medium:2, high:3}; unknown levels rank 0.
func (l Level) Rank() int {
	switch l {
	case LevelLow:
		return 1
	case LevelMedium:
		return 2
	case LevelHigh:
		return 3
	}
	return 0
}

// ParseLevel accepts low/medium/high in any case, surrounded by whitespace.
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if l.Rank() == 0 {
		return "", false
	}
	return l, true
}

// Profile keys as they appear in dialogue and in the mapped dictionary.
const (
	KeyGPUIntensity    = "GPU intensity"
	KeyDisplayQuality  = "Display quality"
	KeyPortability     = "Portability"
	KeyMultitasking    = "Multitasking"
	KeyProcessingSpeed = "Processing speed"
	KeyBudget          = "Budget"
)

// OrdinalKeys lists the five ordinal attributes in canonical order.
var OrdinalKeys = []string{KeyGPUIntensity, KeyDisplayQuality, KeyPortability, KeyMultitasking, KeyProcessingSpeed}

// DefaultMinBudget is the smallest budget for which laptops are offered.
const DefaultMinBudget int64 = 25000

// Profile is the six-attribute requirement schema shared by users and products.
// Its JSON form is the canonical dictionary: lower-case levels and a bare
// integer budget string.
type Profile struct {
	GPUIntensity    Level
	DisplayQuality  Level
	Portability     Level
	Multitasking    Level
	ProcessingSpeed Level
	Budget          int64
}

// Level returns the ordinal value stored under key.
func (p Profile) Level(key string) Level {
	switch key {
	case KeyGPUIntensity:
		return p.GPUIntensity
	case KeyDisplayQuality:
		return p.DisplayQuality
	case KeyPortability:
		return p.Portability
	case KeyMultitasking:
		return p.Multitasking
	case KeyProcessingSpeed:
		return p.ProcessingSpeed
	}
	return ""
}

func (p *Profile) setLevel(key string, l Level) {
	switch key {
	case KeyGPUIntensity:
		p.GPUIntensity = l
	case KeyDisplayQuality:
		p.DisplayQuality = l
	case KeyPortability:
		p.Portability = l
	case KeyMultitasking:
		p.Multitasking = l
	case KeyProcessingSpeed:
		p.ProcessingSpeed = l
	}
}

// Dictionary returns the canonical six-key dictionary.
func (p Profile) Dictionary() map[string]string {
	out := make(map[string]string, len(OrdinalKeys)+1)
	for _, k := range OrdinalKeys {
		out[k] = string(p.Level(k))
	}
	out[KeyBudget] = strconv.FormatInt(p.Budget, 10)
	return out
}

// String renders the dictionary in canonical key order.
func (p Profile) String() string {
	parts := make([]string, 0, len(OrdinalKeys)+1)
	for _, k := range OrdinalKeys {
		parts = append(parts, fmt.Sprintf("'%s': '%s'", k, p.Level(k)))
	}
	parts = append(parts, fmt.Sprintf("'%s': '%d'", KeyBudget, p.Budget))
	return "{" + strings.Join(parts, ", ") + "}"
}

// IsZero reports whether no attribute has been set.
func (p Profile) IsZero() bool { return p == Profile{} }

// MarshalJSON encodes the canonical dictionary.
func (p Profile) MarshalJSON() ([]byte, error) { return json.Marshal(p.Dictionary()) }

// UnmarshalJSON decodes any dictionary that passes mapped-profile validation.
func (p *Profile) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	out, err := MappedProfileFromMap(raw)
	if err != nil {
		return err
	}
	*p = out
	return nil
}

// Completeness is the outcome of validating a raw profile dictionary.
type Completeness struct {
	Complete bool
	Missing  []string
	Invalid  []string
	// BudgetTooLow is set when the budget parses but is below the minimum.
	BudgetTooLow bool
	Reason       string
}

// ValidateProfile checks a raw user dictionary: all six keys present, the five
// ordinal keys in {low, medium, high}, and a numeric budget >= minBudget.
func ValidateProfile(raw map[string]any, minBudget int64) Completeness {
	return validate(raw, true, minBudget)
}

func validate(raw map[string]any, requireBudget bool, minBudget int64) Completeness {
	var c Completeness
	for _, k := range OrdinalKeys {
		v, ok := lookup(raw, k)
		if !ok {
			c.Missing = append(c.Missing, k)
			continue
		}
		s, isStr := v.(string)
		if !isStr {
			c.Invalid = append(c.Invalid, k)
			continue
		}
		if _, ok := ParseLevel(s); !ok {
			c.Invalid = append(c.Invalid, k)
		}
	}
	v, ok := lookup(raw, KeyBudget)
	switch {
	case !ok && requireBudget:
		c.Missing = append(c.Missing, KeyBudget)
	case ok:
		b, parsed := budgetValue(v)
		switch {
		case !parsed && requireBudget:
			c.Invalid = append(c.Invalid, KeyBudget)
		case parsed && requireBudget && b < minBudget:
			c.BudgetTooLow = true
		}
	}
	c.Complete = len(c.Missing) == 0 && len(c.Invalid) == 0 && !c.BudgetTooLow
	c.Reason = c.reason(minBudget)
	return c
}

func (c Completeness) reason(minBudget int64) string {
	if c.Complete {
		return ""
	}
	var parts []string
	if len(c.Missing) > 0 {
		parts = append(parts, "missing keys: "+strings.Join(c.Missing, ", "))
	}
	if len(c.Invalid) > 0 {
		parts = append(parts, "invalid values for: "+strings.Join(c.Invalid, ", "))
	}
	if c.BudgetTooLow {
		parts = append(parts, fmt.Sprintf("Budget below minimum %d", minBudget))
	}
	return strings.Join(parts, "; ")
}

// ProfileFromMap validates and normalises a user dictionary.
// Budgets below minBudget yield ErrBudgetTooLow; other failures ErrSchemaInvalid.
func ProfileFromMap(raw map[string]any, minBudget int64) (Profile, error) {
	c := ValidateProfile(raw, minBudget)
	if !c.Complete {
		if c.BudgetTooLow && len(c.Missing) == 0 && len(c.Invalid) == 0 {
			return Profile{}, fmt.Errorf("%w: %s", ErrBudgetTooLow, c.Reason)
		}
		return Profile{}, fmt.Errorf("%w: %s", ErrSchemaInvalid, c.Reason)
	}
	return buildProfile(raw), nil
}

// MappedProfileFromMap validates a product dictionary. The five ordinal keys
// are required; the budget is best effort and defaults to 0.
func MappedProfileFromMap(raw map[string]any) (Profile, error) {
	c := validate(raw, false, 0)
	if !c.Complete {
		return Profile{}, fmt.Errorf("%w: %s", ErrSchemaInvalid, c.Reason)
	}
	return buildProfile(raw), nil
}

func buildProfile(raw map[string]any) Profile {
	var p Profile
	for _, k := range OrdinalKeys {
		v, _ := lookup(raw, k)
		s, _ := v.(string)
		l, _ := ParseLevel(s)
		p.setLevel(k, l)
	}
	if v, ok := lookup(raw, KeyBudget); ok {
		p.Budget, _ = budgetValue(v)
	}
	return p
}

// lookup finds key exactly, then case-insensitively with surrounding spaces ignored.
func lookup(raw map[string]any, key string) (any, bool) {
	if v, ok := raw[key]; ok {
		return v, true
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			return raw[k], true
		}
	}
	return nil, false
}

func budgetValue(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), t >= 0
	case int64:
		return t, t >= 0
	case json.Number:
		f, err := t.Float64()
		if err != nil || f < 0 {
			return 0, false
		}
		return int64(f), true
	case string:
		return ParseBudget(t)
	}
	return 0, false
}

var budgetRe = regexp.MustCompile(`(?i)(\d[\d,]*)(?:\.\d+)?(\s*(?:k|thousand|lakhs?|lacs?|l|crores?|cr)\b)?`)

// ParseBudget extracts the first run of digits and commas from free text,
// e.g. "50,000 INR" -> 50000 and "Budget: 90000" -> 90000. A number written
// with a magnitude word ("80k", "1.5 lakh") is reported as unparsed.
func ParseBudget(s string) (int64, bool) {
	m := budgetRe.FindStringSubmatch(s)
	if m == nil || m[2] != "" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(m[1], ",", ""), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// NormalizePrice coerces a catalog price cell ("₹55,990", "55990.00") to an
// integer. Unparseable cells become 0 so that filters stay total.
func NormalizePrice(s string) int64 {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	f, err := strconv.ParseFloat(strings.Trim(b.String(), "."), 64)
	if err != nil || f < 0 {
		return 0
	}
	return int64(f)
}
