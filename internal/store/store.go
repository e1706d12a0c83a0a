package store

import (
	"context"
	"errors"
	"time"

	"permabay/p120/internal/models"
	"permabay/p120/internal/utils"
)

// Sentinel errors returned by Store implementations. The services layer
// translates these into the caller-facing taxonomy.
var (
	// ErrNotFound: the referenced listing, slot, or queue entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSlotOccupied: a claim lost the compare-and-set on a slot.
	ErrSlotOccupied = errors.New("slot already occupied")
	// ErrSlotEmpty: a release targeted a slot with no occupant.
	ErrSlotEmpty = errors.New("slot already empty")
	// ErrNoFreeSlot: no free slot in the requested numeric range.
	ErrNoFreeSlot = errors.New("no free slot in range")
	// ErrWrongStatus: a guarded transition found the listing in another status.
	ErrWrongStatus = errors.New("listing not in expected status")
)

// Store is the persistence boundary of the engine: the slot table, the listing
// documents, and the per-partition approval queue. Every mutating slot and
// status operation is guarded so that concurrent callers and repeated sweeps
// cannot double-claim or double-expire.
type Store interface {
	// Listings.
	InsertListing(ctx context.Context, listing *models.Listing) error
	GetListing(ctx context.Context, id utils.SixID) (models.Listing, error)
	ListListings(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	// ListExpiring returns approved listings with expires_at <= now.
	ListExpiring(ctx context.Context, now time.Time) ([]models.Listing, error)

	// Guarded status transitions. Each one requires a specific current status
	// and fails with ErrWrongStatus (or ErrNotFound) otherwise.
	MarkApproved(ctx context.Context, id utils.SixID, slot int, fee models.Fee, expiresAt time.Time) (models.Listing, error)
	MarkRejected(ctx context.Context, id utils.SixID, feedback string) (models.Listing, error)
	MarkExpired(ctx context.Context, id utils.SixID) (models.Listing, error)
	MarkPending(ctx context.Context, id utils.SixID, submittedAt time.Time) (models.Listing, error)
	// SetListingSlot is the manual-assignment write: pending or approved
	// listings only; the listing ends up approved in the given slot.
	SetListingSlot(ctx context.Context, id utils.SixID, slot int, expiresAt time.Time) (models.Listing, error)
	// ClearListingSlot detaches a displaced occupant from its slot without
	// touching its status.
	ClearListingSlot(ctx context.Context, id utils.SixID) error

	// Slot table.
	ClaimSlot(ctx context.Context, number int, listingID utils.SixID) error
	ReleaseSlot(ctx context.Context, number int) error
	SlotOccupant(ctx context.Context, number int) (*utils.SixID, error)
	FirstFreeSlot(ctx context.Context, first, last int) (int, error)
	Slots(ctx context.Context) ([]models.Slot, error)

	// Approval queue.
	Enqueue(ctx context.Context, entry models.QueueEntry) error
	PeekOldest(ctx context.Context, partition models.Partition) (models.QueueEntry, error)
	RemoveQueued(ctx context.Context, listingID utils.SixID) error
	QueueEntries(ctx context.Context, partition models.Partition) ([]models.QueueEntry, error)

	Ping(ctx context.Context) error
}
