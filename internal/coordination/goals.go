package coordination

import (
	"bytes"
	"encoding/json"
	"strings"
)

// MaxGenericGoals bounds the owner-defined goal set of a generic pod.
const MaxGenericGoals = 5

// GoalStatus reports whether the hunt engine has filled a goal.
type GoalStatus string

const (
	GoalStatusPending   GoalStatus = "pending"
	GoalStatusCompleted GoalStatus = "completed"
)

// Goal is a named sub-objective of a pod whose value is produced by the hunt engine.
type Goal struct {
	ID           string
	PodToken     string
	Name         string
	Type         string
	Instructions string
	Value        *string
	Status       GoalStatus
	Position     int
}

// GoalValue is one engine-provided value keyed by goal id or, failing that, name.
type GoalValue struct {
	GoalID string
	Name   string
	Value  *string
}

// Clone returns a copy that does not share the value pointer.
func (g Goal) Clone() Goal {
	out := g
	if g.Value != nil {
		v := *g.Value
		out.Value = &v
	}
	return out
}

// SetValue stores the value and derives the status from it.
func (g *Goal) SetValue(value *string) {
	if value == nil {
		g.Value = nil
		g.Status = GoalStatusPending
		return
	}
	v := *value
	g.Value = &v
	g.Status = GoalStatusCompleted
}

// HasResults reports whether the pod has goals and every one of them carries a value.
func (p Pod) HasResults() bool {
	if len(p.Goals) == 0 {
		return false
	}
	for _, goal := range p.Goals {
		if goal.Value == nil {
			return false
		}
	}
	return true
}

// FindGoal returns the index of the goal with the given id, or -1.
func (p Pod) FindGoal(goalID string) int {
	for i, goal := range p.Goals {
		if goal.ID == goalID {
			return i
		}
	}
	return -1
}

// MeetingGoals returns the fixed goal set of a meeting pod.
func MeetingGoals() []Goal {
	return []Goal{
		{
			Name:         "Meeting time",
			Type:         "time",
			Instructions: "Find a time that works for every participant.",
			Status:       GoalStatusPending,
			Position:     0,
		},
		{
			Name:         "Meeting format",
			Type:         "format",
			Instructions: "Pick virtual or in-person based on participant preferences.",
			Status:       GoalStatusPending,
			Position:     1,
		},
	}
}

// RenderValue produces a deterministic display form of a goal value.
//
// Values may arrive as a bare string, a JSON-encoded string or a JSON-encoded
// structure. Structures are pretty-printed with sorted keys, JSON strings are
// unwrapped (and rendered again when they hold a structure), and anything that
// does not parse is shown as is.
func RenderValue(value *string) string {
	if value == nil {
		return ""
	}
	return render(*value, true)
}

func render(raw string, unwrap bool) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}

	var decoded any
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil || dec.More() {
		return raw
	}

	switch v := decoded.(type) {
	case string:
		if unwrap {
			return render(v, false)
		}
		return raw
	case map[string]any, []any:
		// encoding/json sorts map keys, which keeps the output stable.
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return raw
		}
		return strings.TrimRight(buf.String(), "\n")
	case nil:
		return "null"
	default:
		return trimmed
	}
}
