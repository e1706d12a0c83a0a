package handlers_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"permabay/p120/internal/models"
	"permabay/p120/internal/services"
	"permabay/p120/internal/utils"
)

// --- Mocks ---

// MockLifecycleService
type MockLifecycleService struct {
	mock.Mock
}

func (m *MockLifecycleService) Submit(ctx context.Context, input services.SubmitListingInput) (models.Listing, error) {
	args := m.Called(ctx, input)
	return args.Get(0).(models.Listing), args.Error(1)
}
func (m *MockLifecycleService) Approve(ctx context.Context, id utils.SixID) (models.Listing, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Listing), args.Error(1)
}
func (m *MockLifecycleService) ApproveInto(ctx context.Context, id utils.SixID, slot int) (models.Listing, error) {
	args := m.Called(ctx, id, slot)
	return args.Get(0).(models.Listing), args.Error(1)
}
func (m *MockLifecycleService) Reject(ctx context.Context, id utils.SixID, feedback string) (models.Listing, error) {
	args := m.Called(ctx, id, feedback)
	return args.Get(0).(models.Listing), args.Error(1)
}
func (m *MockLifecycleService) Withdraw(ctx context.Context, id utils.SixID) (models.Listing, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Listing), args.Error(1)
}
func (m *MockLifecycleService) Relist(ctx context.Context, id utils.SixID) (models.Listing, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Listing), args.Error(1)
}
func (m *MockLifecycleService) Expire(ctx context.Context, id utils.SixID) (models.Listing, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Listing), args.Error(1)
}
func (m *MockLifecycleService) Get(ctx context.Context, id utils.SixID) (models.Listing, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Listing), args.Error(1)
}
func (m *MockLifecycleService) List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Listing), args.Error(1)
}

// MockAssignmentService
type MockAssignmentService struct {
	mock.Mock
}

func (m *MockAssignmentService) Assign(ctx context.Context, slotNumber int, listingID utils.SixID) (models.Listing, error) {
	args := m.Called(ctx, slotNumber, listingID)
	return args.Get(0).(models.Listing), args.Error(1)
}
func (m *MockAssignmentService) Lookup(ctx context.Context, slotNumber int) (*models.Listing, error) {
	args := m.Called(ctx, slotNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Listing), args.Error(1)
}

// MockSlotRegistryService
type MockSlotRegistryService struct {
	mock.Mock
}

func (m *MockSlotRegistryService) ClaimFree(ctx context.Context, partition models.Partition, listingID utils.SixID) (int, error) {
	args := m.Called(ctx, partition, listingID)
	return args.Int(0), args.Error(1)
}
func (m *MockSlotRegistryService) ClaimNumber(ctx context.Context, number int, listingID utils.SixID) error {
	args := m.Called(ctx, number, listingID)
	return args.Error(0)
}
func (m *MockSlotRegistryService) Release(ctx context.Context, number int) error {
	args := m.Called(ctx, number)
	return args.Error(0)
}
func (m *MockSlotRegistryService) Occupant(ctx context.Context, number int) (*utils.SixID, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*utils.SixID), args.Error(1)
}
func (m *MockSlotRegistryService) Board(ctx context.Context) ([]models.Slot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Slot), args.Error(1)
}
func (m *MockSlotRegistryService) FreeCount(ctx context.Context, partition models.Partition) (int, error) {
	args := m.Called(ctx, partition)
	return args.Int(0), args.Error(1)
}

// MockQueueService
type MockQueueService struct {
	mock.Mock
}

func (m *MockQueueService) Add(ctx context.Context, listing models.Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}
func (m *MockQueueService) Oldest(ctx context.Context, partition models.Partition) (*models.QueueEntry, error) {
	args := m.Called(ctx, partition)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueueEntry), args.Error(1)
}
func (m *MockQueueService) Remove(ctx context.Context, listingID utils.SixID) error {
	args := m.Called(ctx, listingID)
	return args.Error(0)
}
func (m *MockQueueService) Entries(ctx context.Context, partition models.Partition) ([]models.QueueEntry, error) {
	args := m.Called(ctx, partition)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.QueueEntry), args.Error(1)
}

// MockSweeperService
type MockSweeperService struct {
	mock.Mock
}

func (m *MockSweeperService) Sweep(ctx context.Context, now time.Time) (services.SweepResult, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(services.SweepResult), args.Error(1)
}
