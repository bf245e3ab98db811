package types

import (
	"regexp"
	"strings"
)

var teacherIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidTeacherID checks if a teacher ID meets format requirements.
// IDs appear in student URLs and as the primary key of the session row,
// so they are restricted to URL-safe characters.
func IsValidTeacherID(teacherID string) bool {
	if len(teacherID) < 1 || len(teacherID) > 50 {
		return false
	}
	return teacherIDRegex.MatchString(teacherID)
}

// NormalizeURL prefixes a scheme when one is missing. An explicit http://
// is preserved; everything else defaults to https://. Idempotent, so
// re-saving an already normalized URL never double-prefixes.
func NormalizeURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	lower := strings.ToLower(trimmed)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return trimmed
	}
	return "https://" + trimmed
}

// Validate ensures the session meets all structural requirements.
// A stale active pointer is deliberately not an error: the pointer may
// briefly reference a removed slot between racing edits, and readers
// handle that by not navigating.
func (s *ClassSession) Validate() error {
	if !IsValidTeacherID(s.TeacherID) {
		return ErrInvalidTeacherID
	}
	if len(s.Slots) > MaxSlots {
		return ErrTooManySlots
	}
	seen := make(map[string]bool, len(s.Slots))
	for _, slot := range s.Slots {
		if slot.ID == "" {
			return ErrInvalidSlotID
		}
		if seen[slot.ID] {
			return ErrDuplicateSlotID
		}
		seen[slot.ID] = true
	}
	return nil
}
