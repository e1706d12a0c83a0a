package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"permabay/p120/internal/models"
	"permabay/p120/internal/utils"
)

// setupMongoStore connects to the test MongoDB or skips. Set MONGO_URI_TEST to
// run these against a live instance.
func setupMongoStore(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGO_URI_TEST")
	if uri == "" {
		t.Skip("MONGO_URI_TEST not set; skipping mongo store tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("p120_store_test")
	for _, coll := range []string{listingsCollection, slotsCollection, queueCollection} {
		_ = db.Collection(coll).Drop(context.Background())
	}

	st := NewMongoStore(db)
	require.NoError(t, st.EnsureSlots(context.Background()))
	return st
}

func TestMongoStore_EnsureSlotsIdempotent(t *testing.T) {
	st := setupMongoStore(t)
	ctx := context.Background()

	holder := utils.NewSixID()
	require.NoError(t, st.ClaimSlot(ctx, 5, holder))

	// Re-seeding keeps existing occupants.
	require.NoError(t, st.EnsureSlots(ctx))

	occupant, err := st.SlotOccupant(ctx, 5)
	require.NoError(t, err)
	require.NotNil(t, occupant)
	assert.Equal(t, holder, *occupant)

	slots, err := st.Slots(ctx)
	require.NoError(t, err)
	assert.Len(t, slots, models.SlotCount)
}

func TestMongoStore_ClaimSlot_CompareAndSet(t *testing.T) {
	st := setupMongoStore(t)
	ctx := context.Background()

	require.NoError(t, st.ClaimSlot(ctx, 20, utils.NewSixID()))
	assert.ErrorIs(t, st.ClaimSlot(ctx, 20, utils.NewSixID()), ErrSlotOccupied)

	require.NoError(t, st.ReleaseSlot(ctx, 20))
	assert.ErrorIs(t, st.ReleaseSlot(ctx, 20), ErrSlotEmpty)
}

func TestMongoStore_GuardedTransitions(t *testing.T) {
	st := setupMongoStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	listing := models.Listing{
		ID:          utils.NewSixID(),
		SellerEmail: "seller@example.com",
		Title:       "Guarded",
		Partition:   models.PartitionStandard,
		Delivery:    models.DeliveryPickup,
		Status:      models.StatusPending,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, st.InsertListing(ctx, &listing))

	fee := models.Fee{Amount: 30, CurrencyCode: "USD", Duration: 30 * 24 * time.Hour}
	approved, err := st.MarkApproved(ctx, listing.ID, 13, fee, now.Add(30*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, approved.Slot)
	assert.Equal(t, 13, *approved.Slot)

	_, err = st.MarkApproved(ctx, listing.ID, 14, fee, now)
	assert.ErrorIs(t, err, ErrWrongStatus)

	_, err = st.MarkExpired(ctx, utils.NewSixID())
	assert.ErrorIs(t, err, ErrNotFound)

	expired, err := st.MarkExpired(ctx, listing.ID)
	require.NoError(t, err)
	assert.Nil(t, expired.Slot)
	assert.Nil(t, expired.ExpiresAt)
}

func TestMongoStore_QueueFIFO(t *testing.T) {
	st := setupMongoStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	newer := models.QueueEntry{ListingID: utils.NewSixID(), Partition: models.PartitionFeatured, SubmittedAt: base.Add(time.Second)}
	older := models.QueueEntry{ListingID: utils.NewSixID(), Partition: models.PartitionFeatured, SubmittedAt: base}
	require.NoError(t, st.Enqueue(ctx, newer))
	require.NoError(t, st.Enqueue(ctx, older))

	head, err := st.PeekOldest(ctx, models.PartitionFeatured)
	require.NoError(t, err)
	assert.Equal(t, older.ListingID, head.ListingID)

	require.NoError(t, st.RemoveQueued(ctx, older.ListingID))
	assert.ErrorIs(t, st.RemoveQueued(ctx, older.ListingID), ErrNotFound)

	head, err = st.PeekOldest(ctx, models.PartitionFeatured)
	require.NoError(t, err)
	assert.Equal(t, newer.ListingID, head.ListingID)
}
