package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permabay/p120/internal/models"
	"permabay/p120/internal/utils"
)

func TestMemoryStore_ClaimSlot_CompareAndSet(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	first := utils.NewSixID()
	require.NoError(t, st.ClaimSlot(ctx, 10, first))

	err := st.ClaimSlot(ctx, 10, utils.NewSixID())
	assert.ErrorIs(t, err, ErrSlotOccupied)

	occupant, err := st.SlotOccupant(ctx, 10)
	require.NoError(t, err)
	require.NotNil(t, occupant)
	assert.Equal(t, first, *occupant)

	require.NoError(t, st.ReleaseSlot(ctx, 10))
	assert.ErrorIs(t, st.ReleaseSlot(ctx, 10), ErrSlotEmpty)
}

func TestMemoryStore_FirstFreeSlot(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	n, err := st.FirstFreeSlot(ctx, 13, 120)
	require.NoError(t, err)
	assert.Equal(t, 13, n)

	require.NoError(t, st.ClaimSlot(ctx, 13, utils.NewSixID()))
	n, err = st.FirstFreeSlot(ctx, 13, 120)
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	for i := 1; i <= 12; i++ {
		require.NoError(t, st.ClaimSlot(ctx, i, utils.NewSixID()))
	}
	_, err = st.FirstFreeSlot(ctx, 1, 12)
	assert.ErrorIs(t, err, ErrNoFreeSlot)
}

func TestMemoryStore_GuardedTransitions(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	listing := models.Listing{
		ID:          utils.NewSixID(),
		Status:      models.StatusPending,
		Partition:   models.PartitionStandard,
		SubmittedAt: now,
	}
	require.NoError(t, st.InsertListing(ctx, &listing))

	fee := models.Fee{Amount: 30, CurrencyCode: "USD", Duration: 30 * 24 * time.Hour}
	approved, err := st.MarkApproved(ctx, listing.ID, 13, fee, now.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.Status)

	// Approving twice fails the status guard.
	_, err = st.MarkApproved(ctx, listing.ID, 14, fee, now)
	assert.ErrorIs(t, err, ErrWrongStatus)

	// Rejection requires pending.
	_, err = st.MarkRejected(ctx, listing.ID, "late")
	assert.ErrorIs(t, err, ErrWrongStatus)

	expired, err := st.MarkExpired(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, expired.Status)
	assert.Nil(t, expired.Slot)
	assert.Nil(t, expired.ExpiresAt)

	_, err = st.MarkExpired(ctx, listing.ID)
	assert.ErrorIs(t, err, ErrWrongStatus)

	pending, err := st.MarkPending(ctx, listing.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, pending.Status)
	assert.Nil(t, pending.Fee)

	_, err = st.MarkExpired(ctx, utils.NewSixID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_QueueOrdering(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	a := models.QueueEntry{ListingID: utils.NewSixID(), Partition: models.PartitionFeatured, SubmittedAt: base.Add(2 * time.Second)}
	b := models.QueueEntry{ListingID: utils.NewSixID(), Partition: models.PartitionFeatured, SubmittedAt: base}
	c := models.QueueEntry{ListingID: utils.NewSixID(), Partition: models.PartitionStandard, SubmittedAt: base.Add(time.Second)}
	for _, e := range []models.QueueEntry{a, b, c} {
		require.NoError(t, st.Enqueue(ctx, e))
	}

	oldest, err := st.PeekOldest(ctx, models.PartitionFeatured)
	require.NoError(t, err)
	assert.Equal(t, b.ListingID, oldest.ListingID)

	// Peek does not remove.
	again, err := st.PeekOldest(ctx, models.PartitionFeatured)
	require.NoError(t, err)
	assert.Equal(t, b.ListingID, again.ListingID)

	require.NoError(t, st.RemoveQueued(ctx, b.ListingID))
	next, err := st.PeekOldest(ctx, models.PartitionFeatured)
	require.NoError(t, err)
	assert.Equal(t, a.ListingID, next.ListingID)

	assert.ErrorIs(t, st.RemoveQueued(ctx, b.ListingID), ErrNotFound)

	_, err = st.PeekOldest(ctx, models.PartitionStandard)
	require.NoError(t, err)
}

func TestMemoryStore_QueueTieBrokenByID(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	lo := utils.SixID{0x01, 0, 0, 0, 0, 0}
	hi := utils.SixID{0xFF, 0, 0, 0, 0, 0}
	require.NoError(t, st.Enqueue(ctx, models.QueueEntry{ListingID: hi, Partition: models.PartitionStandard, SubmittedAt: at}))
	require.NoError(t, st.Enqueue(ctx, models.QueueEntry{ListingID: lo, Partition: models.PartitionStandard, SubmittedAt: at}))

	oldest, err := st.PeekOldest(ctx, models.PartitionStandard)
	require.NoError(t, err)
	assert.Equal(t, lo, oldest.ListingID)
}

func TestMemoryStore_ListExpiring(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mk := func(expires time.Time) utils.SixID {
		l := models.Listing{ID: utils.NewSixID(), Status: models.StatusPending, SubmittedAt: now}
		require.NoError(t, st.InsertListing(ctx, &l))
		_, err := st.MarkApproved(ctx, l.ID, 13, models.Fee{}, expires)
		require.NoError(t, err)
		return l.ID
	}

	overdue := mk(now.Add(-time.Hour))
	onTime := mk(now)
	_ = mk(now.Add(time.Hour))

	expiring, err := st.ListExpiring(ctx, now)
	require.NoError(t, err)
	require.Len(t, expiring, 2)
	assert.Equal(t, overdue, expiring[0].ID)
	assert.Equal(t, onTime, expiring[1].ID)
}

func TestMemoryStore_ListExpiring_TiesBrokenBySlot(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mk := func(slot int) utils.SixID {
		l := models.Listing{ID: utils.NewSixID(), Status: models.StatusPending, SubmittedAt: now}
		require.NoError(t, st.InsertListing(ctx, &l))
		_, err := st.MarkApproved(ctx, l.ID, slot, models.Fee{}, now)
		require.NoError(t, err)
		return l.ID
	}

	// Inserted out of slot order; all share the same expiry instant.
	third := mk(9)
	first := mk(1)
	second := mk(4)

	expiring, err := st.ListExpiring(ctx, now)
	require.NoError(t, err)
	require.Len(t, expiring, 3)
	assert.Equal(t, first, expiring[0].ID)
	assert.Equal(t, second, expiring[1].ID)
	assert.Equal(t, third, expiring[2].ID)
}

func TestMemoryStore_ListListings_TieBrokenByID(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	lo := models.Listing{ID: utils.SixID{0x01, 0, 0, 0, 0, 0}, Status: models.StatusPending, SubmittedAt: at}
	hi := models.Listing{ID: utils.SixID{0xFF, 0, 0, 0, 0, 0}, Status: models.StatusPending, SubmittedAt: at}
	require.NoError(t, st.InsertListing(ctx, &hi))
	require.NoError(t, st.InsertListing(ctx, &lo))

	asc, err := st.ListListings(ctx, models.ListingFilter{Sort: models.SortSubmittedAsc})
	require.NoError(t, err)
	require.Len(t, asc, 2)
	assert.Equal(t, lo.ID, asc[0].ID)
	assert.Equal(t, hi.ID, asc[1].ID)

	desc, err := st.ListListings(ctx, models.ListingFilter{Sort: models.SortSubmittedDesc})
	require.NoError(t, err)
	require.Len(t, desc, 2)
	assert.Equal(t, hi.ID, desc[0].ID)
	assert.Equal(t, lo.ID, desc[1].ID)
}
