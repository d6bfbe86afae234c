// Package schemadiff compares two extractions from the same source and
// classifies how the source's shape drifted. Drift is advisory: it is
// logged for scraper maintainers but never blocks promotion.
package schemadiff

import (
	"fmt"
	"sort"

	"github.com/propsight/market-cli/internal/canonhash"
)

// ChangeType classifies the overall delta between two extractions.
type ChangeType string

const (
	StructureChange ChangeType = "structure_change"
	NewFields       ChangeType = "new_fields"
	RemovedFields   ChangeType = "removed_fields"
	TypeChange      ChangeType = "type_change"
	ValueChange     ChangeType = "value_change"
)

// Reason classifies why a single common field differs.
type Reason string

const (
	ReasonTypeChange        Reason = "type_change"
	ReasonNestedChange      Reason = "nested_change"
	ReasonListLengthChange  Reason = "list_length_change"
	ReasonListContentChange Reason = "list_content_change"
	ReasonValueChange       Reason = "value_change"
)

// FieldDelta records one changed common field.
type FieldDelta struct {
	Old    any    `json:"old"`
	New    any    `json:"new"`
	Reason Reason `json:"reason"`
}

// Change is the result of diffing two extractions. A nil *Change means the
// two are identical.
type Change struct {
	Type    ChangeType            `json:"type"`
	Added   []string              `json:"added,omitempty"`
	Removed []string              `json:"removed,omitempty"`
	Changed map[string]FieldDelta `json:"changed,omitempty"`
}

// summaryValueLen bounds rendered values so drift logs stay readable.
const summaryValueLen = 80

// Diff compares two field maps, skipping ignored fields. It returns nil when
// there is no difference. Neither input is mutated.
func Diff(previous, current map[string]any, ignore []string) *Change {
	skip := make(map[string]bool, len(ignore))
	for _, f := range ignore {
		skip[f] = true
	}

	var added, removed []string
	changed := make(map[string]FieldDelta)

	for k := range current {
		if skip[k] {
			continue
		}
		if _, ok := previous[k]; !ok {
			added = append(added, k)
		}
	}
	for k, oldVal := range previous {
		if skip[k] {
			continue
		}
		newVal, ok := current[k]
		if !ok {
			removed = append(removed, k)
			continue
		}
		if reason, differs := compare(oldVal, newVal); differs {
			changed[k] = FieldDelta{Old: oldVal, New: newVal, Reason: reason}
		}
	}

	if len(added) == 0 && len(removed) == 0 && len(changed) == 0 {
		return nil
	}

	sort.Strings(added)
	sort.Strings(removed)

	c := &Change{Added: added, Removed: removed}
	if len(changed) > 0 {
		c.Changed = changed
	}
	c.Type = classify(c)
	return c
}

// classify derives the overall change type by precedence.
func classify(c *Change) ChangeType {
	switch {
	case len(c.Added) > 0 && len(c.Removed) > 0:
		return StructureChange
	case len(c.Added) > 0:
		return NewFields
	case len(c.Removed) > 0:
		return RemovedFields
	}
	for _, d := range c.Changed {
		if d.Reason == ReasonTypeChange {
			return TypeChange
		}
	}
	return ValueChange
}

// compare reports whether two values differ and why. Reason precedence:
// type mismatch first, then container shape, else generic value change.
func compare(oldVal, newVal any) (Reason, bool) {
	oldKind, newKind := kindOf(oldVal), kindOf(newVal)
	if oldKind != newKind {
		return ReasonTypeChange, true
	}

	if canonhash.MustHash(oldVal) == canonhash.MustHash(newVal) {
		return "", false
	}

	switch oldKind {
	case kindList:
		oldList, newList := oldVal.([]any), newVal.([]any)
		if len(oldList) != len(newList) {
			return ReasonListLengthChange, true
		}
		return ReasonListContentChange, true
	case kindMap:
		return ReasonNestedChange, true
	default:
		return ReasonValueChange, true
	}
}

type kind int

const (
	kindNull kind = iota
	kindBool
	kindNumber
	kindString
	kindList
	kindMap
	kindOther
)

func kindOf(v any) kind {
	switch v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case float64, float32, int, int32, int64:
		return kindNumber
	case string:
		return kindString
	case []any:
		return kindList
	case map[string]any:
		return kindMap
	default:
		return kindOther
	}
}

// Summary renders a one-line human summary with values truncated so a noisy
// source cannot flood the logs.
func (c *Change) Summary() string {
	if c == nil {
		return "no change"
	}
	s := fmt.Sprintf("%s: +%d -%d ~%d", c.Type, len(c.Added), len(c.Removed), len(c.Changed))

	keys := make([]string, 0, len(c.Changed))
	for k := range c.Changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d := c.Changed[k]
		s += fmt.Sprintf("; %s: %s -> %s (%s)", k, truncate(d.Old), truncate(d.New), d.Reason)
	}
	return s
}

func truncate(v any) string {
	s := fmt.Sprintf("%v", v)
	if len(s) > summaryValueLen {
		return s[:summaryValueLen] + "..."
	}
	return s
}
