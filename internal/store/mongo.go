package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"permabay/p120/internal/models"
	"permabay/p120/internal/utils"
)

const (
	listingsCollection = "listings"
	slotsCollection    = "slots"
	queueCollection    = "slot_queue"
)

// MongoStore persists the engine state in MongoDB. Slot claims and status
// transitions are single-document conditional updates, which is what makes
// them safe under concurrent approvals, sweeps, and manual assignments.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore wraps a connected database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// EnsureSlots seeds the fixed slot table (1..SlotCount). Existing rows keep
// their occupant; the call is idempotent and safe on every startup.
func (s *MongoStore) EnsureSlots(ctx context.Context) error {
	coll := s.db.Collection(slotsCollection)
	for n := 1; n <= models.SlotCount; n++ {
		filter := bson.M{"_id": n}
		update := bson.M{"$setOnInsert": bson.M{"_id": n}}
		if _, err := coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return fmt.Errorf("seed slot %d: %w", n, err)
		}
	}
	return nil
}

func (s *MongoStore) InsertListing(ctx context.Context, listing *models.Listing) error {
	_, err := s.db.Collection(listingsCollection).InsertOne(ctx, listing)
	if err != nil {
		return fmt.Errorf("insert listing %s: %w", listing.ID.String(), err)
	}
	return nil
}

func (s *MongoStore) GetListing(ctx context.Context, id utils.SixID) (models.Listing, error) {
	var listing models.Listing
	err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Listing{}, ErrNotFound
		}
		return models.Listing{}, fmt.Errorf("get listing %s: %w", id.String(), err)
	}
	return listing, nil
}

func (s *MongoStore) ListListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	query := bson.M{}
	if filter.Status != nil {
		query["status"] = *filter.Status
	}
	if filter.Partition != nil {
		query["partition"] = *filter.Partition
	}
	dir := 1
	if filter.Sort == models.SortSubmittedDesc {
		dir = -1
	}
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: dir}, {Key: "_id", Value: dir}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	cursor, err := s.db.Collection(listingsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer cursor.Close(ctx)
	var out []models.Listing
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode listings: %w", err)
	}
	return out, nil
}

func (s *MongoStore) ListExpiring(ctx context.Context, now time.Time) ([]models.Listing, error) {
	query := bson.M{
		"status":     models.StatusApproved,
		"expires_at": bson.M{"$lte": now},
	}
	// Slot then _id break expiry ties so sweeps free slots in a stable order.
	opts := options.Find().SetSort(bson.D{{Key: "expires_at", Value: 1}, {Key: "slot", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(listingsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list expiring listings: %w", err)
	}
	defer cursor.Close(ctx)
	var out []models.Listing
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode expiring listings: %w", err)
	}
	return out, nil
}

// classifyMiss turns a guarded-update miss into ErrNotFound or ErrWrongStatus
// by re-fetching the listing.
func (s *MongoStore) classifyMiss(ctx context.Context, id utils.SixID) error {
	err := s.db.Collection(listingsCollection).FindOne(ctx, bson.M{"_id": id}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("classify transition miss for %s: %w", id.String(), err)
	}
	return ErrWrongStatus
}

func (s *MongoStore) guardedUpdate(ctx context.Context, id utils.SixID, from []models.Status, update bson.M) (models.Listing, error) {
	filter := bson.M{"_id": id, "status": bson.M{"$in": from}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var listing models.Listing
	err := s.db.Collection(listingsCollection).FindOneAndUpdate(ctx, filter, update, opts).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Listing{}, s.classifyMiss(ctx, id)
		}
		return models.Listing{}, fmt.Errorf("update listing %s: %w", id.String(), err)
	}
	return listing, nil
}

func (s *MongoStore) MarkApproved(ctx context.Context, id utils.SixID, slot int, fee models.Fee, expiresAt time.Time) (models.Listing, error) {
	update := bson.M{"$set": bson.M{
		"status":     models.StatusApproved,
		"slot":       slot,
		"fee":        fee,
		"expires_at": expiresAt,
		"updated_at": time.Now().UTC(),
	}}
	return s.guardedUpdate(ctx, id, []models.Status{models.StatusPending}, update)
}

func (s *MongoStore) MarkRejected(ctx context.Context, id utils.SixID, feedback string) (models.Listing, error) {
	update := bson.M{
		"$set": bson.M{
			"status":     models.StatusRejected,
			"feedback":   feedback,
			"updated_at": time.Now().UTC(),
		},
		"$unset": bson.M{"slot": "", "expires_at": ""},
	}
	return s.guardedUpdate(ctx, id, []models.Status{models.StatusPending}, update)
}

func (s *MongoStore) MarkExpired(ctx context.Context, id utils.SixID) (models.Listing, error) {
	update := bson.M{
		"$set": bson.M{
			"status":     models.StatusExpired,
			"updated_at": time.Now().UTC(),
		},
		"$unset": bson.M{"slot": "", "expires_at": ""},
	}
	return s.guardedUpdate(ctx, id, []models.Status{models.StatusApproved}, update)
}

func (s *MongoStore) MarkPending(ctx context.Context, id utils.SixID, submittedAt time.Time) (models.Listing, error) {
	update := bson.M{
		"$set": bson.M{
			"status":       models.StatusPending,
			"submitted_at": submittedAt,
			"updated_at":   time.Now().UTC(),
		},
		"$unset": bson.M{"feedback": "", "fee": ""},
	}
	return s.guardedUpdate(ctx, id, []models.Status{models.StatusExpired, models.StatusRejected}, update)
}

func (s *MongoStore) SetListingSlot(ctx context.Context, id utils.SixID, slot int, expiresAt time.Time) (models.Listing, error) {
	update := bson.M{"$set": bson.M{
		"status":     models.StatusApproved,
		"slot":       slot,
		"expires_at": expiresAt,
		"updated_at": time.Now().UTC(),
	}}
	return s.guardedUpdate(ctx, id, []models.Status{models.StatusPending, models.StatusApproved}, update)
}

func (s *MongoStore) ClearListingSlot(ctx context.Context, id utils.SixID) error {
	update := bson.M{
		"$set":   bson.M{"updated_at": time.Now().UTC()},
		"$unset": bson.M{"slot": ""},
	}
	_, err := s.guardedUpdate(ctx, id, []models.Status{models.StatusApproved}, update)
	return err
}

// ClaimSlot is the engine's compare-and-set: it succeeds only if the slot is
// currently unoccupied.
func (s *MongoStore) ClaimSlot(ctx context.Context, number int, listingID utils.SixID) error {
	coll := s.db.Collection(slotsCollection)
	filter := bson.M{"_id": number, "occupant": nil}
	update := bson.M{"$set": bson.M{"occupant": listingID}}
	result, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("claim slot %d: %w", number, err)
	}
	if result.MatchedCount == 0 {
		err := coll.FindOne(ctx, bson.M{"_id": number}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("claim slot %d: %w", number, err)
		}
		return ErrSlotOccupied
	}
	return nil
}

func (s *MongoStore) ReleaseSlot(ctx context.Context, number int) error {
	coll := s.db.Collection(slotsCollection)
	filter := bson.M{"_id": number, "occupant": bson.M{"$ne": nil}}
	update := bson.M{"$unset": bson.M{"occupant": ""}}
	result, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("release slot %d: %w", number, err)
	}
	if result.MatchedCount == 0 {
		err := coll.FindOne(ctx, bson.M{"_id": number}).Err()
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("release slot %d: %w", number, err)
		}
		return ErrSlotEmpty
	}
	return nil
}

func (s *MongoStore) SlotOccupant(ctx context.Context, number int) (*utils.SixID, error) {
	var slot models.Slot
	err := s.db.Collection(slotsCollection).FindOne(ctx, bson.M{"_id": number}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup slot %d: %w", number, err)
	}
	return slot.Occupant, nil
}

func (s *MongoStore) FirstFreeSlot(ctx context.Context, first, last int) (int, error) {
	filter := bson.M{
		"_id":      bson.M{"$gte": first, "$lte": last},
		"occupant": nil,
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}})
	var slot models.Slot
	err := s.db.Collection(slotsCollection).FindOne(ctx, filter, opts).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNoFreeSlot
		}
		return 0, fmt.Errorf("first free slot in [%d,%d]: %w", first, last, err)
	}
	return slot.Number, nil
}

func (s *MongoStore) Slots(ctx context.Context) ([]models.Slot, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(slotsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer cursor.Close(ctx)
	var out []models.Slot
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode slots: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Enqueue(ctx context.Context, entry models.QueueEntry) error {
	opts := options.Replace().SetUpsert(true)
	_, err := s.db.Collection(queueCollection).ReplaceOne(ctx, bson.M{"_id": entry.ListingID}, entry, opts)
	if err != nil {
		return fmt.Errorf("enqueue listing %s: %w", entry.ListingID.String(), err)
	}
	return nil
}

func (s *MongoStore) PeekOldest(ctx context.Context, partition models.Partition) (models.QueueEntry, error) {
	filter := bson.M{"partition": partition}
	// submitted_at first, listing id second: deterministic backfill order.
	opts := options.FindOne().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "_id", Value: 1}})
	var entry models.QueueEntry
	err := s.db.Collection(queueCollection).FindOne(ctx, filter, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.QueueEntry{}, ErrNotFound
		}
		return models.QueueEntry{}, fmt.Errorf("peek %s queue: %w", partition, err)
	}
	return entry, nil
}

func (s *MongoStore) RemoveQueued(ctx context.Context, listingID utils.SixID) error {
	result, err := s.db.Collection(queueCollection).DeleteOne(ctx, bson.M{"_id": listingID})
	if err != nil {
		return fmt.Errorf("remove queued listing %s: %w", listingID.String(), err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) QueueEntries(ctx context.Context, partition models.Partition) ([]models.QueueEntry, error) {
	filter := bson.M{"partition": partition}
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(queueCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s queue: %w", partition, err)
	}
	defer cursor.Close(ctx)
	var out []models.QueueEntry
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s queue: %w", partition, err)
	}
	return out, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}
