package services

import (
	"context"
	"errors"
	"fmt"

	"permabay/p120/internal/models"
	"permabay/p120/internal/store"
	"permabay/p120/internal/utils"
)

// ISlotRegistryService defines the interface for the fixed slot table.
type ISlotRegistryService interface {
	// ClaimFree claims the lowest-numbered free slot in the partition's range.
	ClaimFree(ctx context.Context, partition models.Partition, listingID utils.SixID) (int, error)
	// ClaimNumber claims one specific slot; fails if it is occupied.
	ClaimNumber(ctx context.Context, number int, listingID utils.SixID) error
	Release(ctx context.Context, number int) error
	Occupant(ctx context.Context, number int) (*utils.SixID, error)
	// Board returns all slots in numeric order, occupied or not.
	Board(ctx context.Context) ([]models.Slot, error)
	FreeCount(ctx context.Context, partition models.Partition) (int, error)
}

// maxClaimAttempts bounds the retry loop when concurrent claimers race for the
// same lowest free slot.
const maxClaimAttempts = 8

// slotRegistryService implements ISlotRegistryService on top of the store's
// per-slot compare-and-set.
type slotRegistryService struct {
	store store.Store
}

// NewSlotRegistryService creates a new SlotRegistryService.
func NewSlotRegistryService(st store.Store) ISlotRegistryService {
	return &slotRegistryService{store: st}
}

func (s *slotRegistryService) ClaimFree(ctx context.Context, partition models.Partition, listingID utils.SixID) (int, error) {
	first, last := partition.Range()
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		number, err := s.store.FirstFreeSlot(ctx, first, last)
		if errors.Is(err, store.ErrNoFreeSlot) {
			return 0, fmt.Errorf("%w: partition %s is full", ErrCapacityExceeded, partition)
		}
		if err != nil {
			return 0, err
		}
		err = s.store.ClaimSlot(ctx, number, listingID)
		if err == nil {
			return number, nil
		}
		if errors.Is(err, store.ErrSlotOccupied) {
			// Somebody else took it between the lookup and the claim.
			// Look again; the loser of the last free slot exits through
			// ErrNoFreeSlot above.
			continue
		}
		return 0, err
	}
	// Lost every race within the retry bound; reported as a full partition.
	return 0, fmt.Errorf("%w: could not claim a %s slot", ErrCapacityExceeded, partition)
}

func (s *slotRegistryService) ClaimNumber(ctx context.Context, number int, listingID utils.SixID) error {
	if !models.ValidSlotNumber(number) {
		return fmt.Errorf("%w: slot number %d out of range", ErrValidation, number)
	}
	err := s.store.ClaimSlot(ctx, number, listingID)
	if errors.Is(err, store.ErrSlotOccupied) {
		return fmt.Errorf("%w: slot %d is occupied", ErrConflict, number)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: slot %d", ErrNotFound, number)
	}
	return err
}

func (s *slotRegistryService) Release(ctx context.Context, number int) error {
	err := s.store.ReleaseSlot(ctx, number)
	if errors.Is(err, store.ErrSlotEmpty) {
		return fmt.Errorf("%w: slot %d is already free", ErrNotFound, number)
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: slot %d", ErrNotFound, number)
	}
	return err
}

func (s *slotRegistryService) Occupant(ctx context.Context, number int) (*utils.SixID, error) {
	if !models.ValidSlotNumber(number) {
		return nil, fmt.Errorf("%w: slot number %d out of range", ErrValidation, number)
	}
	occupant, err := s.store.SlotOccupant(ctx, number)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: slot %d", ErrNotFound, number)
	}
	return occupant, err
}

func (s *slotRegistryService) Board(ctx context.Context) ([]models.Slot, error) {
	return s.store.Slots(ctx)
}

func (s *slotRegistryService) FreeCount(ctx context.Context, partition models.Partition) (int, error) {
	slots, err := s.store.Slots(ctx)
	if err != nil {
		return 0, err
	}
	first, last := partition.Range()
	free := 0
	for _, slot := range slots {
		if slot.Number >= first && slot.Number <= last && slot.Occupant == nil {
			free++
		}
	}
	return free, nil
}
