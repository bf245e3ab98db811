package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classlink/pkg/interfaces"
	"classlink/pkg/types"
)

// SlotFieldTitle and SlotFieldURL name the editable fields of a slot.
const (
	SlotFieldTitle = "title"
	SlotFieldURL   = "url"
)

// Manager owns the teacher-side editing state: one in-memory session per
// teacher, persisted as a full-row replace. All mutation of a teacher's
// session goes through this manager, so students only ever observe
// committed rows.
type Manager struct {
	store    interfaces.SessionStore
	sessions map[string]*types.ClassSession // teacherID -> working copy
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewManager creates a new session manager.
func NewManager(store interfaces.SessionStore, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		sessions: make(map[string]*types.ClassSession),
		logger:   logger,
	}
}

// Load fetches the teacher's session row, or builds the default session
// (one empty slot, nothing active) when no row exists yet. The default is
// not persisted until the first save, so registering a teacher writes no
// session row by itself.
func (m *Manager) Load(ctx context.Context, teacherID, username string) (*types.ClassSession, error) {
	stored, err := m.store.GetSession(ctx, teacherID)
	switch {
	case err == nil:
		if username != "" {
			stored.Username = username
		}
	case errors.Is(err, interfaces.ErrSessionNotFound):
		stored = &types.ClassSession{
			TeacherID: teacherID,
			Username:  username,
			Slots:     []types.Slot{newSlot()},
			UpdatedAt: time.Now(),
		}
		m.logger.Info("no session row yet, starting with default",
			zap.String("teacher_id", teacherID))
	default:
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	m.mu.Lock()
	m.sessions[teacherID] = stored
	m.mu.Unlock()

	return stored.Clone(), nil
}

// Get returns a snapshot of the teacher's working copy.
func (m *Manager) Get(teacherID string) (*types.ClassSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[teacherID]
	if !exists {
		return nil, ErrNotLoaded
	}
	return session.Clone(), nil
}

// AddSlot appends a fresh empty slot and persists. Rejected at the cap.
func (m *Manager) AddSlot(ctx context.Context, teacherID string) (*types.Slot, error) {
	m.mu.Lock()
	session, exists := m.sessions[teacherID]
	if !exists {
		m.mu.Unlock()
		return nil, ErrNotLoaded
	}
	if len(session.Slots) >= types.MaxSlots {
		m.mu.Unlock()
		return nil, ErrSlotLimitReached
	}
	slot := newSlot()
	session.Slots = append(session.Slots, slot)
	m.mu.Unlock()

	if err := m.persist(ctx, teacherID); err != nil {
		return nil, err
	}
	return &slot, nil
}

// RemoveSlot deletes the matching slot and persists. When the removed
// slot was the active one, the active pointer is cleared in the same
// operation: there is no persisted state where the pointer references a
// slot that is gone.
func (m *Manager) RemoveSlot(ctx context.Context, teacherID, slotID string) error {
	m.mu.Lock()
	session, exists := m.sessions[teacherID]
	if !exists {
		m.mu.Unlock()
		return ErrNotLoaded
	}

	index := -1
	for i := range session.Slots {
		if session.Slots[i].ID == slotID {
			index = i
			break
		}
	}
	if index < 0 {
		m.mu.Unlock()
		return ErrSlotNotFound
	}

	session.Slots = append(session.Slots[:index], session.Slots[index+1:]...)
	if session.ActiveSlotID != nil && *session.ActiveSlotID == slotID {
		session.ActiveSlotID = nil
	}
	m.mu.Unlock()

	return m.persist(ctx, teacherID)
}

// UpdateSlot edits a slot's title or url in local state only. Nothing is
// persisted until an explicit Save, matching edit-then-blur behavior.
func (m *Manager) UpdateSlot(teacherID, slotID, field, value string) error {
	if field != SlotFieldTitle && field != SlotFieldURL {
		return ErrInvalidField
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[teacherID]
	if !exists {
		return ErrNotLoaded
	}
	slot, ok := session.FindSlot(slotID)
	if !ok {
		return ErrSlotNotFound
	}

	switch field {
	case SlotFieldTitle:
		slot.Title = value
	case SlotFieldURL:
		slot.URL = value
	}
	return nil
}

// Reorder moves a slot within the list, preserving the relative order of
// everything else, and persists.
func (m *Manager) Reorder(ctx context.Context, teacherID string, fromIndex, toIndex int) error {
	m.mu.Lock()
	session, exists := m.sessions[teacherID]
	if !exists {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	if fromIndex < 0 || fromIndex >= len(session.Slots) ||
		toIndex < 0 || toIndex >= len(session.Slots) {
		m.mu.Unlock()
		return ErrInvalidIndex
	}

	slot := session.Slots[fromIndex]
	session.Slots = append(session.Slots[:fromIndex], session.Slots[fromIndex+1:]...)
	session.Slots = append(session.Slots[:toIndex],
		append([]types.Slot{slot}, session.Slots[toIndex:]...)...)
	m.mu.Unlock()

	return m.persist(ctx, teacherID)
}

// SetActive points the broadcast at a slot, or at nothing when slotID is
// nil, and persists immediately: unlike other edits this transition is
// observable by every connected student and must not wait for a manual
// save.
func (m *Manager) SetActive(ctx context.Context, teacherID string, slotID *string) error {
	m.mu.Lock()
	session, exists := m.sessions[teacherID]
	if !exists {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	if slotID != nil {
		if _, ok := session.FindSlot(*slotID); !ok {
			m.mu.Unlock()
			return ErrSlotNotFound
		}
	}
	session.ActiveSlotID = slotID
	m.mu.Unlock()

	if err := m.persist(ctx, teacherID); err != nil {
		return err
	}

	m.logger.Info("active slot changed",
		zap.String("teacher_id", teacherID),
		zap.Stringp("active_slot_id", slotID))
	return nil
}

// Replace swaps in a full slot list and active pointer from the client
// (the dashboard saves its whole state at once) and persists.
func (m *Manager) Replace(ctx context.Context, teacherID string, slots []types.Slot, activeSlotID *string) error {
	replacement := &types.ClassSession{
		TeacherID:    teacherID,
		Slots:        slots,
		ActiveSlotID: activeSlotID,
	}
	if err := replacement.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	session, exists := m.sessions[teacherID]
	if !exists {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	session.Slots = slots
	session.ActiveSlotID = activeSlotID
	m.mu.Unlock()

	return m.persist(ctx, teacherID)
}

// Save normalizes every slot URL and persists the full row. No automatic
// retry: the caller may invoke Save again after a failure.
func (m *Manager) Save(ctx context.Context, teacherID string) error {
	return m.persist(ctx, teacherID)
}

// persist normalizes, timestamps, and writes the full row. The working
// copy keeps the normalized URLs so a re-save is a no-op transform.
func (m *Manager) persist(ctx context.Context, teacherID string) error {
	m.mu.Lock()
	session, exists := m.sessions[teacherID]
	if !exists {
		m.mu.Unlock()
		return ErrNotLoaded
	}
	for i := range session.Slots {
		session.Slots[i].URL = types.NormalizeURL(session.Slots[i].URL)
	}
	session.UpdatedAt = time.Now()
	snapshot := session.Clone()
	m.mu.Unlock()

	if err := m.store.UpsertSession(ctx, snapshot); err != nil {
		m.logger.Warn("session save failed",
			zap.String("teacher_id", teacherID),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	return nil
}

// Unload drops the working copy for a teacher, typically on logout.
func (m *Manager) Unload(teacherID string) {
	m.mu.Lock()
	delete(m.sessions, teacherID)
	m.mu.Unlock()
}

func newSlot() types.Slot {
	return types.Slot{ID: uuid.New().String()}
}
