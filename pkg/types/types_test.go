package types

import (
	"errors"
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestIsValidTeacherID(t *testing.T) {
	tests := []struct {
		name      string
		teacherID string
		valid     bool
	}{
		{"simple", "ms-chen", true},
		{"alphanumeric", "teacher42", true},
		{"underscore", "room_101", true},
		{"single char", "a", true},
		{"max length", strings.Repeat("a", 50), true},
		{"empty", "", false},
		{"too long", strings.Repeat("a", 51), false},
		{"spaces", "ms chen", false},
		{"slash", "ms/chen", false},
		{"unicode", "教師", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidTeacherID(tt.teacherID); got != tt.valid {
				t.Errorf("IsValidTeacherID(%q) = %v, want %v", tt.teacherID, got, tt.valid)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare host", "example.com", "https://example.com"},
		{"https kept", "https://example.com", "https://example.com"},
		{"http kept", "http://example.com", "http://example.com"},
		{"mixed case scheme", "HTTPS://Example.com/Path", "HTTPS://Example.com/Path"},
		{"whitespace trimmed", "  example.com  ", "https://example.com"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"path preserved", "docs.google.com/d/abc", "https://docs.google.com/d/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.raw); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{"example.com", "http://example.com", "  kahoot.it "}
	for _, raw := range inputs {
		once := NormalizeURL(raw)
		twice := NormalizeURL(once)
		if once != twice {
			t.Errorf("NormalizeURL not idempotent for %q: %q then %q", raw, once, twice)
		}
	}
}

func TestClassSessionValidate(t *testing.T) {
	tests := []struct {
		name    string
		session ClassSession
		wantErr error
	}{
		{
			name:    "valid minimal",
			session: ClassSession{TeacherID: "ms-chen"},
			wantErr: nil,
		},
		{
			name: "valid with slots",
			session: ClassSession{
				TeacherID: "ms-chen",
				Slots:     []Slot{{ID: "1"}, {ID: "2"}},
			},
			wantErr: nil,
		},
		{
			name:    "invalid teacher ID",
			session: ClassSession{TeacherID: "ms chen"},
			wantErr: ErrInvalidTeacherID,
		},
		{
			name: "too many slots",
			session: ClassSession{
				TeacherID: "ms-chen",
				Slots:     make([]Slot, MaxSlots+1),
			},
			wantErr: ErrTooManySlots,
		},
		{
			name: "empty slot ID",
			session: ClassSession{
				TeacherID: "ms-chen",
				Slots:     []Slot{{ID: ""}},
			},
			wantErr: ErrInvalidSlotID,
		},
		{
			name: "duplicate slot IDs",
			session: ClassSession{
				TeacherID: "ms-chen",
				Slots:     []Slot{{ID: "1"}, {ID: "1"}},
			},
			wantErr: ErrDuplicateSlotID,
		},
		{
			name: "stale active pointer is legal",
			session: ClassSession{
				TeacherID:    "ms-chen",
				Slots:        []Slot{{ID: "1"}},
				ActiveSlotID: strPtr("gone"),
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Fill in IDs for the over-limit case so the limit check is
			// what fails, not the empty-ID check.
			for i := range tt.session.Slots {
				if tt.session.Slots[i].ID == "" && tt.wantErr != ErrInvalidSlotID {
					tt.session.Slots[i].ID = string(rune('a' + i))
				}
			}
			err := tt.session.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestActiveSlot(t *testing.T) {
	session := ClassSession{
		TeacherID: "ms-chen",
		Slots: []Slot{
			{ID: "1", Title: "Warm-up", URL: "https://kahoot.it"},
			{ID: "2", Title: "Reading", URL: "https://example.com"},
		},
	}

	if got := session.ActiveSlot(); got != nil {
		t.Errorf("ActiveSlot() with nil pointer = %+v, want nil", got)
	}

	session.ActiveSlotID = strPtr("2")
	got := session.ActiveSlot()
	if got == nil || got.Title != "Reading" {
		t.Errorf("ActiveSlot() = %+v, want Reading slot", got)
	}

	session.ActiveSlotID = strPtr("missing")
	if got := session.ActiveSlot(); got != nil {
		t.Errorf("ActiveSlot() with stale pointer = %+v, want nil", got)
	}
}

func TestClone(t *testing.T) {
	original := &ClassSession{
		TeacherID:    "ms-chen",
		Username:     "Ms. Chen",
		Slots:        []Slot{{ID: "1", Title: "Warm-up"}},
		ActiveSlotID: strPtr("1"),
	}

	clone := original.Clone()
	clone.Slots[0].Title = "changed"
	*clone.ActiveSlotID = "changed"

	if original.Slots[0].Title != "Warm-up" {
		t.Error("Clone shares slot backing array with original")
	}
	if *original.ActiveSlotID != "1" {
		t.Error("Clone shares active pointer with original")
	}
}
