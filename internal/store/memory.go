package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"permabay/p120/internal/models"
	"permabay/p120/internal/utils"
)

// MemoryStore is an in-process Store used by tests and by the engine's unit
// tests' concurrency checks. The single mutex makes every operation
// linearizable, which is the same guarantee the mongo implementation gets from
// per-document compare-and-set updates.
type MemoryStore struct {
	mu       sync.Mutex
	listings map[utils.SixID]models.Listing
	slots    [models.SlotCount + 1]*utils.SixID // index 1..SlotCount
	queue    map[utils.SixID]models.QueueEntry
}

// NewMemoryStore returns an empty MemoryStore with all slots free.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings: map[utils.SixID]models.Listing{},
		queue:    map[utils.SixID]models.QueueEntry{},
	}
}

func (m *MemoryStore) InsertListing(ctx context.Context, listing *models.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[listing.ID] = *listing
	return nil
}

func (m *MemoryStore) GetListing(ctx context.Context, id utils.SixID) (models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[id]
	if !ok {
		return models.Listing{}, ErrNotFound
	}
	return listing, nil
}

func (m *MemoryStore) ListListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		if filter.Status != nil && l.Status != *filter.Status {
			continue
		}
		if filter.Partition != nil && l.Partition != *filter.Partition {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			if filter.Sort == models.SortSubmittedDesc {
				return a.SubmittedAt.After(b.SubmittedAt)
			}
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		// Same tie-break as the mongo _id sort.
		if filter.Sort == models.SortSubmittedDesc {
			return bytes.Compare(a.ID[:], b.ID[:]) > 0
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ListExpiring(ctx context.Context, now time.Time) ([]models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Listing
	for _, l := range m.listings {
		if l.Status == models.StatusApproved && l.ExpiresAt != nil && !l.ExpiresAt.After(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.ExpiresAt.Equal(*b.ExpiresAt) {
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}
		// Ties resolve by slot number so sweeps free slots in a stable
		// order.
		if a.Slot != nil && b.Slot != nil && *a.Slot != *b.Slot {
			return *a.Slot < *b.Slot
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	return out, nil
}

func (m *MemoryStore) transition(id utils.SixID, from []models.Status, apply func(*models.Listing)) (models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listing, ok := m.listings[id]
	if !ok {
		return models.Listing{}, ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if listing.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return models.Listing{}, ErrWrongStatus
	}
	apply(&listing)
	listing.UpdatedAt = time.Now().UTC()
	m.listings[id] = listing
	return listing, nil
}

func (m *MemoryStore) MarkApproved(ctx context.Context, id utils.SixID, slot int, fee models.Fee, expiresAt time.Time) (models.Listing, error) {
	return m.transition(id, []models.Status{models.StatusPending}, func(l *models.Listing) {
		s := slot
		e := expiresAt
		f := fee
		l.Status = models.StatusApproved
		l.Slot = &s
		l.Fee = &f
		l.ExpiresAt = &e
	})
}

func (m *MemoryStore) MarkRejected(ctx context.Context, id utils.SixID, feedback string) (models.Listing, error) {
	return m.transition(id, []models.Status{models.StatusPending}, func(l *models.Listing) {
		l.Status = models.StatusRejected
		l.Feedback = feedback
		l.Slot = nil
		l.ExpiresAt = nil
	})
}

func (m *MemoryStore) MarkExpired(ctx context.Context, id utils.SixID) (models.Listing, error) {
	return m.transition(id, []models.Status{models.StatusApproved}, func(l *models.Listing) {
		l.Status = models.StatusExpired
		l.Slot = nil
		l.ExpiresAt = nil
	})
}

func (m *MemoryStore) MarkPending(ctx context.Context, id utils.SixID, submittedAt time.Time) (models.Listing, error) {
	return m.transition(id, []models.Status{models.StatusExpired, models.StatusRejected}, func(l *models.Listing) {
		l.Status = models.StatusPending
		l.SubmittedAt = submittedAt
		l.Feedback = ""
		l.Fee = nil
	})
}

func (m *MemoryStore) SetListingSlot(ctx context.Context, id utils.SixID, slot int, expiresAt time.Time) (models.Listing, error) {
	return m.transition(id, []models.Status{models.StatusPending, models.StatusApproved}, func(l *models.Listing) {
		s := slot
		e := expiresAt
		l.Status = models.StatusApproved
		l.Slot = &s
		l.ExpiresAt = &e
	})
}

func (m *MemoryStore) ClearListingSlot(ctx context.Context, id utils.SixID) error {
	_, err := m.transition(id, []models.Status{models.StatusApproved}, func(l *models.Listing) {
		l.Slot = nil
	})
	return err
}

func (m *MemoryStore) ClaimSlot(ctx context.Context, number int, listingID utils.SixID) error {
	if !models.ValidSlotNumber(number) {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots[number] != nil {
		return ErrSlotOccupied
	}
	id := listingID
	m.slots[number] = &id
	return nil
}

func (m *MemoryStore) ReleaseSlot(ctx context.Context, number int) error {
	if !models.ValidSlotNumber(number) {
		return ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots[number] == nil {
		return ErrSlotEmpty
	}
	m.slots[number] = nil
	return nil
}

func (m *MemoryStore) SlotOccupant(ctx context.Context, number int) (*utils.SixID, error) {
	if !models.ValidSlotNumber(number) {
		return nil, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.slots[number] == nil {
		return nil, nil
	}
	id := *m.slots[number]
	return &id, nil
}

func (m *MemoryStore) FirstFreeSlot(ctx context.Context, first, last int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for n := first; n <= last; n++ {
		if m.slots[n] == nil {
			return n, nil
		}
	}
	return 0, ErrNoFreeSlot
}

func (m *MemoryStore) Slots(ctx context.Context) ([]models.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Slot, 0, models.SlotCount)
	for n := 1; n <= models.SlotCount; n++ {
		slot := models.Slot{Number: n}
		if m.slots[n] != nil {
			id := *m.slots[n]
			slot.Occupant = &id
		}
		out = append(out, slot)
	}
	return out, nil
}

func (m *MemoryStore) Enqueue(ctx context.Context, entry models.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue[entry.ListingID] = entry
	return nil
}

func (m *MemoryStore) PeekOldest(ctx context.Context, partition models.Partition) (models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.QueueEntry
	for id := range m.queue {
		entry := m.queue[id]
		if entry.Partition != partition {
			continue
		}
		if best == nil || olderEntry(entry, *best) {
			e := entry
			best = &e
		}
	}
	if best == nil {
		return models.QueueEntry{}, ErrNotFound
	}
	return *best, nil
}

// olderEntry orders by submission time, then listing ID bytes for determinism.
func olderEntry(a, b models.QueueEntry) bool {
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return bytes.Compare(a.ListingID[:], b.ListingID[:]) < 0
}

func (m *MemoryStore) RemoveQueued(ctx context.Context, listingID utils.SixID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queue[listingID]; !ok {
		return ErrNotFound
	}
	delete(m.queue, listingID)
	return nil
}

func (m *MemoryStore) QueueEntries(ctx context.Context, partition models.Partition) ([]models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.QueueEntry
	for _, entry := range m.queue {
		if entry.Partition == partition {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return olderEntry(out[i], out[j]) })
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
