// Package rules loads the controlled vocabulary ("rule tables") used to
// validate data submissions and answers lookup, fuzzy-match and range
// queries against it. A Set is immutable once built and safe to share
// across all diagnosis stages of a submission.
package rules

import (
	"math"
	"sort"
	"strings"
)

// RangeKey identifies the value bounds registered for a variable measured
// in a particular unit.
type RangeKey struct {
	Variable string
	Unit     string
}

// Range holds the minimum and maximum acceptable value for a RangeKey.
type Range struct {
	Min float64
	Max float64
}

// Tables carries the raw rule tables used to build a Set. Load fills it
// from the rule workbook; tests may construct it directly.
type Tables struct {
	Models    []string
	Scenarios []string
	Regions   []string
	Variables []string
	Items     []string
	Units     []string
	Years     []string

	// RegionFixes maps a lower-cased raw region spelling to its canonical
	// replacement. ValueFixes maps a lower-cased raw value token to the
	// numeric string that should be used in its place.
	RegionFixes map[string]string
	ValueFixes  map[string]string

	// Ranges holds the registered value bounds per (variable, unit) pair.
	Ranges map[RangeKey]Range
}

// Set is the loaded rule context. All query methods are read-only.
type Set struct {
	models    map[string]struct{}
	scenarios map[string]struct{}
	regions   map[string]struct{}
	variables map[string]struct{}
	items     map[string]struct{}
	units     map[string]struct{}
	years     map[string]struct{}

	modelList    []string
	scenarioList []string
	regionList   []string
	variableList []string
	itemList     []string
	unitList     []string
	yearList     []string

	// Lower-cased lookup maps for the two categories queried once per row.
	variableByLower map[string]string
	unitByLower     map[string]string

	regionFixes map[string]string
	valueFixes  map[string]string
	ranges      map[RangeKey]Range

	// Minimum similarity a fuzzy match must reach to be reported. Zero
	// keeps the always-return-top-1 behavior.
	cutoff float64
}

// Option adjusts how a Set behaves.
type Option func(*Set)

// WithSimilarityCutoff sets the minimum similarity ratio for Closest*
// queries. Candidates scoring below the cutoff are not suggested.
func WithSimilarityCutoff(cutoff float64) Option {
	return func(s *Set) { s.cutoff = cutoff }
}

// NewSet builds an immutable rule set from the given tables.
func NewSet(t Tables, opts ...Option) *Set {
	s := &Set{
		models:    toSet(t.Models),
		scenarios: toSet(t.Scenarios),
		regions:   toSet(t.Regions),
		variables: toSet(t.Variables),
		items:     toSet(t.Items),
		units:     toSet(t.Units),
		years:     toSet(t.Years),

		variableByLower: make(map[string]string, len(t.Variables)),
		unitByLower:     make(map[string]string, len(t.Units)),
		regionFixes:     make(map[string]string, len(t.RegionFixes)),
		valueFixes:      make(map[string]string, len(t.ValueFixes)),
		ranges:          make(map[RangeKey]Range, len(t.Ranges)),
	}

	s.modelList = sortedKeys(s.models)
	s.scenarioList = sortedKeys(s.scenarios)
	s.regionList = sortedKeys(s.regions)
	s.variableList = sortedKeys(s.variables)
	s.itemList = sortedKeys(s.items)
	s.unitList = sortedKeys(s.units)
	s.yearList = sortedKeys(s.years)

	for _, v := range s.variableList {
		s.variableByLower[strings.ToLower(v)] = v
	}
	for _, u := range s.unitList {
		s.unitByLower[strings.ToLower(u)] = u
	}
	for raw, fix := range t.RegionFixes {
		s.regionFixes[strings.ToLower(raw)] = fix
	}
	for raw, fix := range t.ValueFixes {
		s.valueFixes[strings.ToLower(raw)] = fix
	}
	for key, rng := range t.Ranges {
		s.ranges[key] = rng
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sorted table accessors, used by the configuration surface to offer
// valid choices.

func (s *Set) Models() []string    { return append([]string(nil), s.modelList...) }
func (s *Set) Scenarios() []string { return append([]string(nil), s.scenarioList...) }
func (s *Set) Regions() []string   { return append([]string(nil), s.regionList...) }
func (s *Set) Variables() []string { return append([]string(nil), s.variableList...) }
func (s *Set) Items() []string     { return append([]string(nil), s.itemList...) }
func (s *Set) Units() []string     { return append([]string(nil), s.unitList...) }
func (s *Set) Years() []string     { return append([]string(nil), s.yearList...) }

// Membership queries (exact, case-sensitive).

func (s *Set) HasModel(label string) bool    { return has(s.models, label) }
func (s *Set) HasScenario(label string) bool { return has(s.scenarios, label) }
func (s *Set) HasRegion(label string) bool   { return has(s.regions, label) }
func (s *Set) HasVariable(label string) bool { return has(s.variables, label) }
func (s *Set) HasItem(label string) bool     { return has(s.items, label) }
func (s *Set) HasUnit(label string) bool     { return has(s.units, label) }
func (s *Set) HasYear(label string) bool     { return has(s.years, label) }

// MatchScenario returns the canonical scenario spelled the same as label
// up to case, if one exists.
func (s *Set) MatchScenario(label string) (string, bool) {
	return matchFold(s.scenarioList, label)
}

// MatchRegion returns the canonical region spelled the same as label up
// to case, if one exists.
func (s *Set) MatchRegion(label string) (string, bool) {
	return matchFold(s.regionList, label)
}

// MatchItem returns the canonical item spelled the same as label up to
// case, if one exists.
func (s *Set) MatchItem(label string) (string, bool) {
	return matchFold(s.itemList, label)
}

// MatchVariable returns the canonical variable spelled the same as label
// up to case, if one exists. O(1): variables are checked once per row.
func (s *Set) MatchVariable(label string) (string, bool) {
	v, ok := s.variableByLower[strings.ToLower(label)]
	return v, ok
}

// MatchUnit returns the canonical unit spelled the same as label up to
// case, if one exists. O(1): units are checked once per row.
func (s *Set) MatchUnit(label string) (string, bool) {
	u, ok := s.unitByLower[strings.ToLower(label)]
	return u, ok
}

// Closest* return the canonical value whose spelling is most similar to
// label. With a zero cutoff a candidate is always returned for non-empty
// tables; a non-zero cutoff may report no suggestion.

func (s *Set) ClosestScenario(label string) (string, bool) {
	return closestMatch(label, s.scenarioList, s.cutoff)
}

func (s *Set) ClosestRegion(label string) (string, bool) {
	return closestMatch(label, s.regionList, s.cutoff)
}

func (s *Set) ClosestVariable(label string) (string, bool) {
	return closestMatch(label, s.variableList, s.cutoff)
}

func (s *Set) ClosestItem(label string) (string, bool) {
	return closestMatch(label, s.itemList, s.cutoff)
}

func (s *Set) ClosestUnit(label string) (string, bool) {
	return closestMatch(label, s.unitList, s.cutoff)
}

// ValueFix returns the replacement registered for a raw value token.
// The lookup is case-insensitive.
func (s *Set) ValueFix(value string) (string, bool) {
	fix, ok := s.valueFixes[strings.ToLower(value)]
	return fix, ok
}

// RegionFix returns the canonical region registered for a known bad
// region spelling. The lookup is case-insensitive.
func (s *Set) RegionFix(region string) (string, bool) {
	fix, ok := s.regionFixes[strings.ToLower(region)]
	return fix, ok
}

// RangeCount returns how many (variable, unit) pairs carry registered
// bounds.
func (s *Set) RangeCount() int { return len(s.ranges) }

// RangeFor returns the value bounds registered for the (variable, unit)
// pair. Pairs absent from the table are unbounded.
func (s *Set) RangeFor(variable, unit string) (min, max float64) {
	if rng, ok := s.ranges[RangeKey{Variable: variable, Unit: unit}]; ok {
		return rng.Min, rng.Max
	}
	return math.Inf(-1), math.Inf(1)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func has(set map[string]struct{}, label string) bool {
	_, ok := set[label]
	return ok
}

func matchFold(list []string, label string) (string, bool) {
	for _, candidate := range list {
		if strings.EqualFold(candidate, label) {
			return candidate, true
		}
	}
	return "", false
}
