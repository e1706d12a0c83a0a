package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"permabay/p120/internal/config"
	"permabay/p120/internal/db"
	"permabay/p120/internal/models"
	"permabay/p120/internal/store"
	"permabay/p120/internal/utils"
)

// timeNow is swapped out by tests that need a fixed clock.
var timeNow = time.Now

// Notifier consumes status-change events. Delivery failure is logged and
// discarded; it never rolls back a lifecycle transition.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, event models.StatusChangeEvent) error
}

// SubmitListingInput carries the seller-facing submission fields.
type SubmitListingInput struct {
	SellerEmail string
	Title       string
	Body        string
	Partition   models.Partition
	Delivery    models.Delivery
	AskingPrice *models.AskingPrice
}

// ILifecycleService defines the interface for the listing state machine. It is
// the sole writer of listing status and slot links.
type ILifecycleService interface {
	Submit(ctx context.Context, input SubmitListingInput) (models.Listing, error)
	Approve(ctx context.Context, id utils.SixID) (models.Listing, error)
	// ApproveInto approves a pending listing into one specific slot. The
	// expiry sweep uses it to hand a freshly freed slot to the oldest queued
	// listing of the matching partition.
	ApproveInto(ctx context.Context, id utils.SixID, slot int) (models.Listing, error)
	Reject(ctx context.Context, id utils.SixID, feedback string) (models.Listing, error)
	// Withdraw is the seller pulling a pending listing back before review.
	Withdraw(ctx context.Context, id utils.SixID) (models.Listing, error)
	Relist(ctx context.Context, id utils.SixID) (models.Listing, error)
	// Expire transitions an overdue approved listing to expired and releases
	// its slot.
	Expire(ctx context.Context, id utils.SixID) (models.Listing, error)
	Get(ctx context.Context, id utils.SixID) (models.Listing, error)
	List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
}

// lifecycleService implements ILifecycleService.
type lifecycleService struct {
	store    store.Store
	registry ISlotRegistryService
	queue    IQueueService
	fees     IFeeService
	notifier Notifier
	cfg      *config.Config
}

// NewLifecycleService creates a new LifecycleService. notifier may be nil, in
// which case no events are emitted.
func NewLifecycleService(st store.Store, registry ISlotRegistryService, queue IQueueService, fees IFeeService, notifier Notifier, cfg *config.Config) ILifecycleService {
	return &lifecycleService{
		store:    st,
		registry: registry,
		queue:    queue,
		fees:     fees,
		notifier: notifier,
		cfg:      cfg,
	}
}

func (s *lifecycleService) Submit(ctx context.Context, input SubmitListingInput) (models.Listing, error) {
	if err := validateSubmission(input); err != nil {
		return models.Listing{}, err
	}
	now := timeNow().UTC()
	var listing models.Listing
	// Regenerate the ID on a duplicate key collision and insert again.
	err := db.Try(func() error {
		listing = models.Listing{
			ID:          utils.NewSixID(),
			SellerEmail: strings.TrimSpace(input.SellerEmail),
			Title:       strings.TrimSpace(input.Title),
			Body:        input.Body,
			Partition:   input.Partition,
			Delivery:    input.Delivery,
			AskingPrice: input.AskingPrice,
			Status:      models.StatusPending,
			SubmittedAt: now,
			UpdatedAt:   now,
			CreatedAt:   now,
		}
		return s.store.InsertListing(ctx, &listing)
	})
	if err != nil {
		return models.Listing{}, err
	}
	if err := s.queue.Add(ctx, listing); err != nil {
		return models.Listing{}, err
	}
	return listing, nil
}

func validateSubmission(input SubmitListingInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	email := strings.TrimSpace(input.SellerEmail)
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("%w: valid seller email is required", ErrValidation)
	}
	if _, err := models.ParsePartition(string(input.Partition)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := models.ParseDelivery(string(input.Delivery)); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *lifecycleService) Approve(ctx context.Context, id utils.SixID) (models.Listing, error) {
	listing, err := s.Get(ctx, id)
	if err != nil {
		return models.Listing{}, err
	}
	if listing.Status != models.StatusPending {
		return models.Listing{}, fmt.Errorf("%w: cannot approve %s listing %s", ErrInvalidState, listing.Status, id.String())
	}
	slot, err := s.registry.ClaimFree(ctx, listing.Partition, id)
	if err != nil {
		return models.Listing{}, err
	}
	return s.finishApproval(ctx, listing, slot)
}

func (s *lifecycleService) ApproveInto(ctx context.Context, id utils.SixID, slot int) (models.Listing, error) {
	listing, err := s.Get(ctx, id)
	if err != nil {
		return models.Listing{}, err
	}
	if listing.Status != models.StatusPending {
		return models.Listing{}, fmt.Errorf("%w: cannot approve %s listing %s", ErrInvalidState, listing.Status, id.String())
	}
	if models.SlotPartition(slot) != listing.Partition {
		return models.Listing{}, fmt.Errorf("%w: slot %d is not in the %s partition", ErrValidation, slot, listing.Partition)
	}
	if err := s.registry.ClaimNumber(ctx, slot, id); err != nil {
		return models.Listing{}, err
	}
	return s.finishApproval(ctx, listing, slot)
}

// finishApproval records the approved status after the slot claim succeeded.
// If the guarded status write loses (the listing was rejected or withdrawn in
// between), the claim is rolled back so the slot does not leak.
func (s *lifecycleService) finishApproval(ctx context.Context, listing models.Listing, slot int) (models.Listing, error) {
	now := timeNow().UTC()
	fee := s.fees.Quote(listing.Partition, s.cfg.ListingDuration)
	expiresAt := now.Add(s.cfg.ListingDuration)
	updated, err := s.store.MarkApproved(ctx, listing.ID, slot, fee, expiresAt)
	if err != nil {
		if releaseErr := s.registry.Release(ctx, slot); releaseErr != nil {
			log.Printf("ERROR: could not release slot %d after failed approval of %s: %v", slot, listing.ID.String(), releaseErr)
		}
		if errors.Is(err, store.ErrWrongStatus) {
			return models.Listing{}, fmt.Errorf("%w: listing %s left pending before approval completed", ErrConflict, listing.ID.String())
		}
		if errors.Is(err, store.ErrNotFound) {
			return models.Listing{}, fmt.Errorf("%w: listing %s", ErrNotFound, listing.ID.String())
		}
		return models.Listing{}, err
	}
	if err := s.queue.Remove(ctx, listing.ID); err != nil {
		log.Printf("ERROR: could not remove approved listing %s from queue: %v", listing.ID.String(), err)
	}
	s.emit(ctx, updated)
	return updated, nil
}

func (s *lifecycleService) Reject(ctx context.Context, id utils.SixID, feedback string) (models.Listing, error) {
	if strings.TrimSpace(feedback) == "" {
		return models.Listing{}, fmt.Errorf("%w: rejection feedback is required", ErrValidation)
	}
	updated, err := s.store.MarkRejected(ctx, id, feedback)
	if err != nil {
		return models.Listing{}, translateStoreErr(err, id)
	}
	if err := s.queue.Remove(ctx, id); err != nil {
		log.Printf("ERROR: could not remove rejected listing %s from queue: %v", id.String(), err)
	}
	s.emit(ctx, updated)
	return updated, nil
}

const withdrawnFeedback = "withdrawn by seller"

func (s *lifecycleService) Withdraw(ctx context.Context, id utils.SixID) (models.Listing, error) {
	updated, err := s.store.MarkRejected(ctx, id, withdrawnFeedback)
	if err != nil {
		return models.Listing{}, translateStoreErr(err, id)
	}
	if err := s.queue.Remove(ctx, id); err != nil {
		log.Printf("ERROR: could not remove withdrawn listing %s from queue: %v", id.String(), err)
	}
	return updated, nil
}

func (s *lifecycleService) Relist(ctx context.Context, id utils.SixID) (models.Listing, error) {
	now := timeNow().UTC()
	updated, err := s.store.MarkPending(ctx, id, now)
	if err != nil {
		return models.Listing{}, translateStoreErr(err, id)
	}
	// Fresh submittedAt puts the listing at the tail of its partition queue.
	if err := s.queue.Add(ctx, updated); err != nil {
		return models.Listing{}, err
	}
	return updated, nil
}

func (s *lifecycleService) Expire(ctx context.Context, id utils.SixID) (models.Listing, error) {
	listing, err := s.Get(ctx, id)
	if err != nil {
		return models.Listing{}, err
	}
	if listing.Status != models.StatusApproved {
		return models.Listing{}, fmt.Errorf("%w: cannot expire %s listing %s", ErrInvalidState, listing.Status, id.String())
	}
	if listing.ExpiresAt != nil && listing.ExpiresAt.After(timeNow()) {
		return models.Listing{}, fmt.Errorf("%w: listing %s has not reached its expiry", ErrInvalidState, id.String())
	}
	slot := listing.Slot
	updated, err := s.store.MarkExpired(ctx, id)
	if err != nil {
		return models.Listing{}, translateStoreErr(err, id)
	}
	// A listing displaced by a manual assignment is approved without a slot;
	// there is nothing to release for it.
	if slot != nil {
		if err := s.registry.Release(ctx, *slot); err != nil {
			return models.Listing{}, err
		}
	}
	s.emit(ctx, updated)
	return updated, nil
}

func (s *lifecycleService) Get(ctx context.Context, id utils.SixID) (models.Listing, error) {
	listing, err := s.store.GetListing(ctx, id)
	if err != nil {
		return models.Listing{}, translateStoreErr(err, id)
	}
	return listing, nil
}

func (s *lifecycleService) List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	return s.store.ListListings(ctx, filter)
}

func (s *lifecycleService) emit(ctx context.Context, listing models.Listing) {
	if s.notifier == nil {
		return
	}
	event := models.StatusChangeEvent{
		ListingID:   listing.ID,
		SellerEmail: listing.SellerEmail,
		Title:       listing.Title,
		NewStatus:   listing.Status,
		Feedback:    listing.Feedback,
		Slot:        listing.Slot,
	}
	if err := s.notifier.NotifyStatusChange(ctx, event); err != nil {
		log.Printf("ERROR: status-change notification for listing %s failed: %v", listing.ID.String(), err)
	}
}

func translateStoreErr(err error, id utils.SixID) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: listing %s", ErrNotFound, id.String())
	case errors.Is(err, store.ErrWrongStatus):
		return fmt.Errorf("%w: listing %s is not in a status that allows this operation", ErrInvalidState, id.String())
	default:
		return err
	}
}
