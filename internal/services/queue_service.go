package services

import (
	"context"
	"errors"

	"permabay/p120/internal/models"
	"permabay/p120/internal/store"
	"permabay/p120/internal/utils"
)

// IQueueService defines the interface for the per-partition approval queue.
// Entries are ordered oldest-submission-first; removal is idempotent.
type IQueueService interface {
	Add(ctx context.Context, listing models.Listing) error
	// Oldest returns the head of the partition's queue, or (nil, nil) when
	// the queue is empty.
	Oldest(ctx context.Context, partition models.Partition) (*models.QueueEntry, error)
	Remove(ctx context.Context, listingID utils.SixID) error
	Entries(ctx context.Context, partition models.Partition) ([]models.QueueEntry, error)
}

// queueService implements IQueueService.
type queueService struct {
	store store.Store
}

// NewQueueService creates a new QueueService.
func NewQueueService(st store.Store) IQueueService {
	return &queueService{store: st}
}

func (s *queueService) Add(ctx context.Context, listing models.Listing) error {
	return s.store.Enqueue(ctx, models.QueueEntry{
		ListingID:   listing.ID,
		Partition:   listing.Partition,
		SubmittedAt: listing.SubmittedAt,
	})
}

func (s *queueService) Oldest(ctx context.Context, partition models.Partition) (*models.QueueEntry, error) {
	entry, err := s.store.PeekOldest(ctx, partition)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *queueService) Remove(ctx context.Context, listingID utils.SixID) error {
	err := s.store.RemoveQueued(ctx, listingID)
	if errors.Is(err, store.ErrNotFound) {
		// Already removed. Removal has to be idempotent because the sweep
		// and an admin decision can race for the same entry.
		return nil
	}
	return err
}

func (s *queueService) Entries(ctx context.Context, partition models.Partition) ([]models.QueueEntry, error) {
	return s.store.QueueEntries(ctx, partition)
}
