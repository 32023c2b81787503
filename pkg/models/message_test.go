package models

import (
	"encoding/json"
	"testing"
)

func TestRoleValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleUser, true},
		{RoleAssistant, true},
		{Role("system"), false},
		{Role(""), false},
	}
	for _, tt := range tests {
		if got := tt.role.Valid(); got != tt.want {
			t.Errorf("Role(%q).Valid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestTurnConstructors(t *testing.T) {
	if got := UserTurn("hi"); got.Role != RoleUser || got.Content != "hi" {
		t.Errorf("UserTurn() = %+v", got)
	}
	if got := AssistantTurn("hello"); got.Role != RoleAssistant || got.Content != "hello" {
		t.Errorf("AssistantTurn() = %+v", got)
	}
}

func TestTurnJSONShape(t *testing.T) {
	data, err := json.Marshal(UserTurn("hi"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"role":"user","content":"hi"}` {
		t.Errorf("unexpected json: %s", data)
	}
}
