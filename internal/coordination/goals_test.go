package coordination

import "testing"

func TestRenderValue(t *testing.T) {
	tests := []struct {
		name  string
		value *string
		want  string
	}{
		{name: "nil", value: nil, want: ""},
		{name: "bare string", value: strPtr("Tuesday 10am"), want: "Tuesday 10am"},
		{name: "json string", value: strPtr(`"Tuesday 10am"`), want: "Tuesday 10am"},
		{name: "json object sorted", value: strPtr(`{"b":1,"a":"x"}`), want: "{\n  \"a\": \"x\",\n  \"b\": 1\n}"},
		{name: "json string holding object", value: strPtr(`"{\"slot\":\"mon\"}"`), want: "{\n  \"slot\": \"mon\"\n}"},
		{name: "json array", value: strPtr(`[1,2]`), want: "[\n  1,\n  2\n]"},
		{name: "malformed json", value: strPtr(`{"slot":`), want: `{"slot":`},
		{name: "trailing garbage", value: strPtr(`{"a":1} extra`), want: `{"a":1} extra`},
		{name: "number", value: strPtr(`42`), want: "42"},
		{name: "html is not escaped", value: strPtr(`{"a":"<b>"}`), want: "{\n  \"a\": \"<b>\"\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderValue(tt.value); got != tt.want {
				t.Fatalf("RenderValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderValueIsDeterministic(t *testing.T) {
	a := strPtr(`{"z":{"y":1,"x":2},"a":[3]}`)
	b := strPtr(`{"a":[3],"z":{"x":2,"y":1}}`)
	if RenderValue(a) != RenderValue(b) {
		t.Fatalf("expected equal renderings:\n%s\n%s", RenderValue(a), RenderValue(b))
	}
}

func TestMeetingGoals(t *testing.T) {
	goals := MeetingGoals()
	if len(goals) != 2 {
		t.Fatalf("expected 2 meeting goals, got %d", len(goals))
	}
	for _, goal := range goals {
		if goal.Value != nil || goal.Status != GoalStatusPending {
			t.Fatalf("meeting goals start pending without value: %+v", goal)
		}
	}
}
