package model

import (
	"encoding/json"
	"testing"
)

func TestUserStaffFlagVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"snake case", `{"username":"a","is_staff":true}`, true},
		{"camel case", `{"username":"a","isStaff":true}`, true},
		{"short", `{"username":"a","staff":true}`, true},
		{"absent", `{"username":"a"}`, false},
		{"explicit false", `{"username":"a","is_staff":false,"isStaff":false}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u User
			if err := json.Unmarshal([]byte(tt.body), &u); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if u.IsStaff != tt.want {
				t.Errorf("IsStaff = %v, want %v", u.IsStaff, tt.want)
			}
			if u.Username != "a" {
				t.Errorf("Username = %q, want 'a'", u.Username)
			}
		})
	}
}

func TestChoiceCorrectMarker(t *testing.T) {
	var q Question
	body := `{"id":1,"text":"Q","choices":[{"id":1,"text":"a"},{"id":2,"text":"b","correct":true},{"id":3,"text":"c","is_correct":true}]}`
	if err := json.Unmarshal([]byte(body), &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	c, ok := q.CorrectChoice()
	if !ok || c.ID != 2 {
		t.Fatalf("CorrectChoice() = %+v, %v; want id 2", c, ok)
	}
	if _, ok := q.Choice(3); !ok {
		t.Error("expected choice 3 to exist")
	}
	if _, ok := q.Choice(9); ok {
		t.Error("expected choice 9 to be missing")
	}
}

func TestDurationSeconds(t *testing.T) {
	if got := (QuizConfig{TimerDuration: 1}).DurationSeconds(); got != 60 {
		t.Errorf("DurationSeconds(1) = %d, want 60", got)
	}
	if got := (QuizConfig{}).DurationSeconds(); got != DefaultTimerMinutes*60 {
		t.Errorf("DurationSeconds(0) = %d, want %d", got, DefaultTimerMinutes*60)
	}
	if got := (QuizConfig{TimerDuration: -3}).DurationSeconds(); got != DefaultTimerMinutes*60 {
		t.Errorf("DurationSeconds(-3) = %d, want %d", got, DefaultTimerMinutes*60)
	}
}

func TestAnswerMapEncodesStringKeys(t *testing.T) {
	data, err := json.Marshal(Submission{Answers: AnswerMap{1: 3}, TimeTaken: 5, SessionID: "abc"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"answers":{"1":3},"time_taken":5,"session_id":"abc"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}
