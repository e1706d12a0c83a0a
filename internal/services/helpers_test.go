package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"permabay/p120/internal/config"
	"permabay/p120/internal/models"
	"permabay/p120/internal/store"
	"permabay/p120/internal/utils"
)

// fakeClock pins timeNow to a settable instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureNotifier records every emitted status-change event.
type captureNotifier struct {
	mu     sync.Mutex
	events []models.StatusChangeEvent
}

func (n *captureNotifier) NotifyStatusChange(ctx context.Context, event models.StatusChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *captureNotifier) Events() []models.StatusChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.StatusChangeEvent, len(n.events))
	copy(out, n.events)
	return out
}

// testEnv wires the whole engine against an in-memory store.
type testEnv struct {
	store      *store.MemoryStore
	cfg        *config.Config
	clock      *fakeClock
	notifier   *captureNotifier
	registry   ISlotRegistryService
	queue      IQueueService
	fees       IFeeService
	lifecycle  ILifecycleService
	sweeper    ISweeperService
	assignment IAssignmentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		ListingDuration:   30 * 24 * time.Hour,
		FeaturedDailyRate: 5.00,
		StandardDailyRate: 1.00,
		CurrencyCode:      "USD",
	}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	prevNow := timeNow
	timeNow = clock.Now
	t.Cleanup(func() { timeNow = prevNow })

	st := store.NewMemoryStore()
	notifier := &captureNotifier{}
	registry := NewSlotRegistryService(st)
	queue := NewQueueService(st)
	fees := NewFeeService(cfg)
	lifecycle := NewLifecycleService(st, registry, queue, fees, notifier, cfg)
	sweeper := NewSweeperService(st, lifecycle, queue)
	assignment := NewAssignmentService(st, registry, queue, notifier, cfg)

	return &testEnv{
		store:      st,
		cfg:        cfg,
		clock:      clock,
		notifier:   notifier,
		registry:   registry,
		queue:      queue,
		fees:       fees,
		lifecycle:  lifecycle,
		sweeper:    sweeper,
		assignment: assignment,
	}
}

func (e *testEnv) submit(t *testing.T, partition models.Partition, title string) models.Listing {
	t.Helper()
	listing, err := e.lifecycle.Submit(context.Background(), SubmitListingInput{
		SellerEmail: "seller@example.com",
		Title:       title,
		Body:        "body",
		Partition:   partition,
		Delivery:    models.DeliveryShipping,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", title, err)
	}
	// Distinct submission times keep FIFO ordering unambiguous.
	e.clock.Advance(time.Second)
	return listing
}

func (e *testEnv) occupant(t *testing.T, slot int) *utils.SixID {
	t.Helper()
	occupant, err := e.registry.Occupant(context.Background(), slot)
	if err != nil {
		t.Fatalf("occupant of slot %d: %v", slot, err)
	}
	return occupant
}
