package types

import "time"

// MaxSlots is the upper bound on the number of link slots per teacher.
const MaxSlots = 10

// Slot is a named, orderable link entry owned by a teacher.
type Slot struct {
	ID    string `json:"id" db:"id"`
	Title string `json:"title" db:"title"`
	URL   string `json:"url" db:"url"`
}

// ClassSession is the full persisted record for one teacher: the ordered
// slot list plus the pointer to the slot currently broadcast to students.
// The row is owned exclusively by the teacher; students only read it.
type ClassSession struct {
	TeacherID    string    `json:"teacher_id" db:"teacher_id"`
	Username     string    `json:"username" db:"username"`
	Slots        []Slot    `json:"slots" db:"slots"`
	ActiveSlotID *string   `json:"active_slot_id" db:"active_slot_id"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// FindSlot looks up a slot by ID. A stale active pointer is legal state,
// so callers must handle the not-found case instead of assuming membership.
func (s *ClassSession) FindSlot(id string) (*Slot, bool) {
	for i := range s.Slots {
		if s.Slots[i].ID == id {
			return &s.Slots[i], true
		}
	}
	return nil, false
}

// ActiveSlot resolves the active pointer against the slot list.
// Returns nil when no slot is active or the pointer is stale.
func (s *ClassSession) ActiveSlot() *Slot {
	if s.ActiveSlotID == nil {
		return nil
	}
	slot, ok := s.FindSlot(*s.ActiveSlotID)
	if !ok {
		return nil
	}
	return slot
}

// Clone returns a deep copy safe to hand across goroutine boundaries.
func (s *ClassSession) Clone() *ClassSession {
	c := *s
	c.Slots = make([]Slot, len(s.Slots))
	copy(c.Slots, s.Slots)
	if s.ActiveSlotID != nil {
		id := *s.ActiveSlotID
		c.ActiveSlotID = &id
	}
	return &c
}

// Credential is the stored authentication record for a teacher account.
// The recovery code is issued once at registration and persisted only as
// a hash; there is no mechanism to regenerate it.
type Credential struct {
	TeacherID        string    `json:"teacher_id" db:"teacher_id"`
	Username         string    `json:"username" db:"username"`
	PasswordHash     string    `json:"-" db:"password_hash"`
	RecoveryCodeHash string    `json:"-" db:"recovery_code_hash"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}
