package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"classlink/pkg/interfaces"
	"classlink/pkg/types"
)

// mockStore records upserts and serves one session row.
type mockStore struct {
	mu         sync.Mutex
	session    *types.ClassSession
	upserts    int
	shouldFail bool
}

func (s *mockStore) GetSession(ctx context.Context, teacherID string) (*types.ClassSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.TeacherID != teacherID {
		return nil, interfaces.ErrSessionNotFound
	}
	return s.session.Clone(), nil
}

func (s *mockStore) UpsertSession(ctx context.Context, session *types.ClassSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shouldFail {
		return errors.New("disk full")
	}
	s.session = session.Clone()
	s.upserts++
	return nil
}

func (s *mockStore) stored() *types.ClassSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return s.session.Clone()
}

func (s *mockStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func strPtr(s string) *string { return &s }

func newTestManager() (*Manager, *mockStore) {
	store := &mockStore{}
	return NewManager(store, zap.NewNop()), store
}

func TestLoadDefaultSession(t *testing.T) {
	manager, store := newTestManager()

	session, err := manager.Load(context.Background(), "ms-chen", "Ms. Chen")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if session.TeacherID != "ms-chen" || session.Username != "Ms. Chen" {
		t.Errorf("default session identity = %q/%q", session.TeacherID, session.Username)
	}
	if len(session.Slots) != 1 {
		t.Errorf("default session has %d slots, want 1", len(session.Slots))
	}
	if session.ActiveSlotID != nil {
		t.Error("default session has an active slot")
	}
	if store.upsertCount() != 0 {
		t.Error("Load persisted the default session before any edit")
	}
}

func TestLoadExistingSession(t *testing.T) {
	manager, store := newTestManager()
	store.session = &types.ClassSession{
		TeacherID: "ms-chen",
		Username:  "old name",
		Slots:     []types.Slot{{ID: "1", Title: "Warm-up", URL: "https://kahoot.it"}},
	}

	session, err := manager.Load(context.Background(), "ms-chen", "Ms. Chen")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(session.Slots) != 1 || session.Slots[0].Title != "Warm-up" {
		t.Errorf("loaded slots = %+v", session.Slots)
	}
	if session.Username != "Ms. Chen" {
		t.Errorf("username = %q, want refreshed from login", session.Username)
	}
}

func TestAddSlotLimit(t *testing.T) {
	manager, _ := newTestManager()
	if _, err := manager.Load(context.Background(), "ms-chen", ""); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Default session starts with one slot.
	for i := 1; i < types.MaxSlots; i++ {
		if _, err := manager.AddSlot(context.Background(), "ms-chen"); err != nil {
			t.Fatalf("AddSlot #%d failed: %v", i, err)
		}
	}

	if _, err := manager.AddSlot(context.Background(), "ms-chen"); !errors.Is(err, ErrSlotLimitReached) {
		t.Errorf("AddSlot beyond cap = %v, want ErrSlotLimitReached", err)
	}

	session, err := manager.Get("ms-chen")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if len(session.Slots) != types.MaxSlots {
		t.Errorf("slot count = %d, want %d", len(session.Slots), types.MaxSlots)
	}

	seen := make(map[string]bool)
	for _, slot := range session.Slots {
		if seen[slot.ID] {
			t.Errorf("duplicate slot ID %q", slot.ID)
		}
		seen[slot.ID] = true
	}
}

func TestRemoveActiveSlotClearsPointer(t *testing.T) {
	manager, store := newTestManager()
	session, err := manager.Load(context.Background(), "ms-chen", "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	slotID := session.Slots[0].ID

	if err := manager.UpdateSlot("ms-chen", slotID, SlotFieldURL, "kahoot.it"); err != nil {
		t.Fatalf("UpdateSlot() failed: %v", err)
	}
	if err := manager.SetActive(context.Background(), "ms-chen", &slotID); err != nil {
		t.Fatalf("SetActive() failed: %v", err)
	}

	if err := manager.RemoveSlot(context.Background(), "ms-chen", slotID); err != nil {
		t.Fatalf("RemoveSlot() failed: %v", err)
	}

	stored := store.stored()
	if stored == nil {
		t.Fatal("nothing persisted after removal")
	}
	if stored.ActiveSlotID != nil {
		t.Errorf("persisted active pointer = %q after removing active slot", *stored.ActiveSlotID)
	}
	if len(stored.Slots) != 0 {
		t.Errorf("persisted slots = %+v, want empty", stored.Slots)
	}
}

func TestRemoveSlotNotFound(t *testing.T) {
	manager, _ := newTestManager()
	if _, err := manager.Load(context.Background(), "ms-chen", ""); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := manager.RemoveSlot(context.Background(), "ms-chen", "missing"); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("RemoveSlot(missing) = %v, want ErrSlotNotFound", err)
	}
}

func TestUpdateSlotLocalOnly(t *testing.T) {
	manager, store := newTestManager()
	session, err := manager.Load(context.Background(), "ms-chen", "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	slotID := session.Slots[0].ID

	if err := manager.UpdateSlot("ms-chen", slotID, SlotFieldTitle, "Warm-up"); err != nil {
		t.Fatalf("UpdateSlot() failed: %v", err)
	}
	if store.upsertCount() != 0 {
		t.Error("UpdateSlot persisted without an explicit save")
	}

	if err := manager.Save(context.Background(), "ms-chen"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	stored := store.stored()
	if stored == nil || stored.Slots[0].Title != "Warm-up" {
		t.Errorf("persisted session = %+v, want edited title", stored)
	}
}

func TestUpdateSlotInvalidField(t *testing.T) {
	manager, _ := newTestManager()
	session, _ := manager.Load(context.Background(), "ms-chen", "")
	err := manager.UpdateSlot("ms-chen", session.Slots[0].ID, "color", "red")
	if !errors.Is(err, ErrInvalidField) {
		t.Errorf("UpdateSlot(color) = %v, want ErrInvalidField", err)
	}
}

func TestSaveNormalizesURLs(t *testing.T) {
	manager, store := newTestManager()
	session, err := manager.Load(context.Background(), "ms-chen", "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	slotID := session.Slots[0].ID

	if err := manager.UpdateSlot("ms-chen", slotID, SlotFieldURL, "kahoot.it"); err != nil {
		t.Fatalf("UpdateSlot() failed: %v", err)
	}
	if err := manager.Save(context.Background(), "ms-chen"); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if got := store.stored().Slots[0].URL; got != "https://kahoot.it" {
		t.Errorf("persisted URL = %q, want scheme prefixed", got)
	}

	// A second save of the already normalized URL is a no-op transform.
	if err := manager.Save(context.Background(), "ms-chen"); err != nil {
		t.Fatalf("second Save() failed: %v", err)
	}
	if got := store.stored().Slots[0].URL; got != "https://kahoot.it" {
		t.Errorf("re-saved URL = %q, double prefixed", got)
	}
}

func TestSetActiveUnknownSlot(t *testing.T) {
	manager, _ := newTestManager()
	if _, err := manager.Load(context.Background(), "ms-chen", ""); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	missing := "missing"
	if err := manager.SetActive(context.Background(), "ms-chen", &missing); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("SetActive(missing) = %v, want ErrSlotNotFound", err)
	}
}

func TestSetActivePersistsImmediately(t *testing.T) {
	manager, store := newTestManager()
	session, err := manager.Load(context.Background(), "ms-chen", "")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	slotID := session.Slots[0].ID

	before := store.upsertCount()
	if err := manager.SetActive(context.Background(), "ms-chen", &slotID); err != nil {
		t.Fatalf("SetActive() failed: %v", err)
	}
	if store.upsertCount() != before+1 {
		t.Error("SetActive did not persist")
	}

	if err := manager.SetActive(context.Background(), "ms-chen", nil); err != nil {
		t.Fatalf("SetActive(nil) failed: %v", err)
	}
	if store.stored().ActiveSlotID != nil {
		t.Error("deactivation not persisted")
	}
}

func TestReorder(t *testing.T) {
	manager, _ := newTestManager()
	if _, err := manager.Load(context.Background(), "ms-chen", ""); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := manager.AddSlot(context.Background(), "ms-chen"); err != nil {
			t.Fatalf("AddSlot() failed: %v", err)
		}
	}

	before, _ := manager.Get("ms-chen")
	ids := []string{before.Slots[0].ID, before.Slots[1].ID, before.Slots[2].ID}

	if err := manager.Reorder(context.Background(), "ms-chen", 0, 2); err != nil {
		t.Fatalf("Reorder() failed: %v", err)
	}

	after, _ := manager.Get("ms-chen")
	want := []string{ids[1], ids[2], ids[0]}
	for i, slot := range after.Slots {
		if slot.ID != want[i] {
			t.Errorf("slot[%d] = %q, want %q", i, slot.ID, want[i])
		}
	}

	if err := manager.Reorder(context.Background(), "ms-chen", 0, 5); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("out-of-range Reorder = %v, want ErrInvalidIndex", err)
	}
}

func TestReplaceValidates(t *testing.T) {
	manager, _ := newTestManager()
	if _, err := manager.Load(context.Background(), "ms-chen", ""); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	dup := []types.Slot{{ID: "1"}, {ID: "1"}}
	if err := manager.Replace(context.Background(), "ms-chen", dup, nil); !errors.Is(err, types.ErrDuplicateSlotID) {
		t.Errorf("Replace with duplicate IDs = %v, want ErrDuplicateSlotID", err)
	}

	over := make([]types.Slot, types.MaxSlots+1)
	for i := range over {
		over[i].ID = string(rune('a' + i))
	}
	if err := manager.Replace(context.Background(), "ms-chen", over, nil); !errors.Is(err, types.ErrTooManySlots) {
		t.Errorf("Replace over cap = %v, want ErrTooManySlots", err)
	}
}

func TestSaveFailureWraps(t *testing.T) {
	manager, store := newTestManager()
	if _, err := manager.Load(context.Background(), "ms-chen", ""); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	store.shouldFail = true

	err := manager.Save(context.Background(), "ms-chen")
	if !errors.Is(err, ErrSaveFailed) {
		t.Errorf("Save() with failing store = %v, want ErrSaveFailed", err)
	}
}

func TestOperationsRequireLoad(t *testing.T) {
	manager, _ := newTestManager()

	if _, err := manager.Get("ghost"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Get before Load = %v, want ErrNotLoaded", err)
	}
	if _, err := manager.AddSlot(context.Background(), "ghost"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("AddSlot before Load = %v, want ErrNotLoaded", err)
	}
	if err := manager.SetActive(context.Background(), "ghost", strPtr("x")); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("SetActive before Load = %v, want ErrNotLoaded", err)
	}
}

func TestUnload(t *testing.T) {
	manager, _ := newTestManager()
	if _, err := manager.Load(context.Background(), "ms-chen", ""); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	manager.Unload("ms-chen")
	if _, err := manager.Get("ms-chen"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Get after Unload = %v, want ErrNotLoaded", err)
	}
}
