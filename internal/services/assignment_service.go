package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"permabay/p120/internal/config"
	"permabay/p120/internal/models"
	"permabay/p120/internal/store"
	"permabay/p120/internal/utils"
)

// IAssignmentService defines the interface for the admin manual-override path.
// Assign bypasses the approval queue, capacity checks, and the partition rule
// that constrains automatic allocation: an admin may place a standard listing
// in a featured slot and vice versa. This asymmetry is deliberate.
type IAssignmentService interface {
	Assign(ctx context.Context, slotNumber int, listingID utils.SixID) (models.Listing, error)
	// Lookup resolves a slot to its current occupant listing, or (nil, nil)
	// when the slot is free.
	Lookup(ctx context.Context, slotNumber int) (*models.Listing, error)
}

// assignmentService implements IAssignmentService.
type assignmentService struct {
	store    store.Store
	registry ISlotRegistryService
	queue    IQueueService
	notifier Notifier
	cfg      *config.Config
}

// NewAssignmentService creates a new AssignmentService. notifier may be nil.
func NewAssignmentService(st store.Store, registry ISlotRegistryService, queue IQueueService, notifier Notifier, cfg *config.Config) IAssignmentService {
	return &assignmentService{store: st, registry: registry, queue: queue, notifier: notifier, cfg: cfg}
}

func (s *assignmentService) Assign(ctx context.Context, slotNumber int, listingID utils.SixID) (models.Listing, error) {
	if !models.ValidSlotNumber(slotNumber) {
		return models.Listing{}, fmt.Errorf("%w: slot number %d out of range", ErrValidation, slotNumber)
	}
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return models.Listing{}, translateStoreErr(err, listingID)
	}
	switch listing.Status {
	case models.StatusPending, models.StatusApproved:
	default:
		return models.Listing{}, fmt.Errorf("%w: cannot assign a slot to a %s listing", ErrInvalidState, listing.Status)
	}
	if listing.Slot != nil && *listing.Slot == slotNumber {
		return listing, nil
	}

	// Evict the current occupant, if any. It stays approved, just without a
	// slot; the sweep will still expire it on schedule.
	occupant, err := s.registry.Occupant(ctx, slotNumber)
	if err != nil {
		return models.Listing{}, err
	}
	if occupant != nil {
		if err := s.registry.Release(ctx, slotNumber); err != nil {
			return models.Listing{}, err
		}
		if err := s.store.ClearListingSlot(ctx, *occupant); err != nil && !errors.Is(err, store.ErrWrongStatus) && !errors.Is(err, store.ErrNotFound) {
			return models.Listing{}, err
		}
	}

	if err := s.registry.ClaimNumber(ctx, slotNumber, listingID); err != nil {
		return models.Listing{}, err
	}

	// If the listing is moving between slots, free the one it leaves.
	if listing.Slot != nil {
		if err := s.registry.Release(ctx, *listing.Slot); err != nil && !errors.Is(err, ErrNotFound) {
			log.Printf("ERROR: releasing previous slot %d of listing %s: %v", *listing.Slot, listingID.String(), err)
		}
	}

	expiresAt := timeNow().UTC().Add(s.cfg.ListingDuration)
	if listing.Status == models.StatusApproved && listing.ExpiresAt != nil {
		expiresAt = *listing.ExpiresAt
	}
	updated, err := s.store.SetListingSlot(ctx, listingID, slotNumber, expiresAt)
	if err != nil {
		if releaseErr := s.registry.Release(ctx, slotNumber); releaseErr != nil {
			log.Printf("ERROR: could not release slot %d after failed assignment of %s: %v", slotNumber, listingID.String(), releaseErr)
		}
		return models.Listing{}, translateStoreErr(err, listingID)
	}
	if listing.Status == models.StatusPending {
		if err := s.queue.Remove(ctx, listingID); err != nil {
			log.Printf("ERROR: could not remove assigned listing %s from queue: %v", listingID.String(), err)
		}
		s.emit(ctx, updated)
	}
	return updated, nil
}

func (s *assignmentService) Lookup(ctx context.Context, slotNumber int) (*models.Listing, error) {
	occupant, err := s.registry.Occupant(ctx, slotNumber)
	if err != nil {
		return nil, err
	}
	if occupant == nil {
		return nil, nil
	}
	listing, err := s.store.GetListing(ctx, *occupant)
	if err != nil {
		return nil, translateStoreErr(err, *occupant)
	}
	return &listing, nil
}

func (s *assignmentService) emit(ctx context.Context, listing models.Listing) {
	if s.notifier == nil {
		return
	}
	event := models.StatusChangeEvent{
		ListingID:   listing.ID,
		SellerEmail: listing.SellerEmail,
		Title:       listing.Title,
		NewStatus:   listing.Status,
		Slot:        listing.Slot,
	}
	if err := s.notifier.NotifyStatusChange(ctx, event); err != nil {
		log.Printf("ERROR: status-change notification for listing %s failed: %v", listing.ID.String(), err)
	}
}
