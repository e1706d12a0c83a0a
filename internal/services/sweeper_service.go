package services

import (
	"context"
	"errors"
	"log"
	"time"

	"permabay/p120/internal/models"
	"permabay/p120/internal/store"
)

// SweepResult summarizes one expiry pass.
type SweepResult struct {
	Expired    int
	Backfilled int
}

// ISweeperService defines the interface for the periodic expiry sweep.
type ISweeperService interface {
	// Sweep expires every approved listing overdue at now, releases its slot,
	// and backfills each freed slot from the matching partition's queue. It is
	// idempotent: a second pass with no new expirations changes nothing, and
	// two overlapping sweeps cannot double-expire or double-backfill because
	// every transition is guarded on current status and occupancy.
	Sweep(ctx context.Context, now time.Time) (SweepResult, error)
}

// sweeperService implements ISweeperService.
type sweeperService struct {
	store     store.Store
	lifecycle ILifecycleService
	queue     IQueueService
}

// NewSweeperService creates a new SweeperService.
func NewSweeperService(st store.Store, lifecycle ILifecycleService, queue IQueueService) ISweeperService {
	return &sweeperService{store: st, lifecycle: lifecycle, queue: queue}
}

func (s *sweeperService) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult
	overdue, err := s.store.ListExpiring(ctx, now)
	if err != nil {
		return result, err
	}
	for _, listing := range overdue {
		freedSlot := listing.Slot
		if _, err := s.lifecycle.Expire(ctx, listing.ID); err != nil {
			if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
				// A concurrent sweep or admin action got there first.
				continue
			}
			return result, err
		}
		result.Expired++
		if freedSlot == nil {
			continue
		}
		if s.backfill(ctx, *freedSlot) {
			result.Backfilled++
		}
	}
	return result, nil
}

// backfill hands a freed slot to the oldest queued listing of the slot's
// partition. Stale queue entries (listings no longer pending) are dropped and
// the next candidate is tried.
func (s *sweeperService) backfill(ctx context.Context, slot int) bool {
	partition := models.SlotPartition(slot)
	for {
		entry, err := s.queue.Oldest(ctx, partition)
		if err != nil {
			log.Printf("ERROR: reading %s queue for backfill of slot %d: %v", partition, slot, err)
			return false
		}
		if entry == nil {
			return false
		}
		_, err = s.lifecycle.ApproveInto(ctx, entry.ListingID, slot)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrInvalidState) || errors.Is(err, ErrNotFound) {
			// The queue entry is stale; drop it and look at the next one.
			if removeErr := s.queue.Remove(ctx, entry.ListingID); removeErr != nil {
				log.Printf("ERROR: dropping stale queue entry %s: %v", entry.ListingID.String(), removeErr)
				return false
			}
			continue
		}
		if errors.Is(err, ErrConflict) {
			// The slot was taken between release and claim, most likely by a
			// manual assignment. Nothing left to backfill here.
			return false
		}
		log.Printf("ERROR: backfilling slot %d with listing %s: %v", slot, entry.ListingID.String(), err)
		return false
	}
}
