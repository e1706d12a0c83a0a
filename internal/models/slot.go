package models

import (
	"fmt"
	"time"

	"permabay/p120/internal/utils"
)

// The permanent-link slot table is fixed: 120 numbered slots backing /P1../P120.
// Slots 1-12 form the Featured partition, 13-120 the Standard partition. The
// partition only constrains automatic allocation; manual assignment ignores it.
const (
	SlotCount = 120

	FeaturedFirstSlot = 1
	FeaturedLastSlot  = 12
	StandardFirstSlot = 13
	StandardLastSlot  = 120
)

// Partition identifies which numeric slot range a listing competes for.
type Partition string

const (
	PartitionFeatured Partition = "featured"
	PartitionStandard Partition = "standard"
)

// ParsePartition validates and normalizes a partition string.
func ParsePartition(s string) (Partition, error) {
	switch Partition(s) {
	case PartitionFeatured:
		return PartitionFeatured, nil
	case PartitionStandard:
		return PartitionStandard, nil
	}
	return "", fmt.Errorf("unknown partition %q", s)
}

// Range returns the inclusive slot-number bounds of the partition.
func (p Partition) Range() (first, last int) {
	if p == PartitionFeatured {
		return FeaturedFirstSlot, FeaturedLastSlot
	}
	return StandardFirstSlot, StandardLastSlot
}

// SlotPartition returns the partition a slot number belongs to for automatic
// allocation purposes.
func SlotPartition(number int) Partition {
	if number >= FeaturedFirstSlot && number <= FeaturedLastSlot {
		return PartitionFeatured
	}
	return PartitionStandard
}

// ValidSlotNumber reports whether number is within [1, SlotCount].
func ValidSlotNumber(number int) bool {
	return number >= 1 && number <= SlotCount
}

// Slot is one row of the slot table. Number is the immutable identity (the n in
// /Pn); Occupant is nil while the slot is free.
type Slot struct {
	Number   int          `bson:"_id" json:"number"`
	Occupant *utils.SixID `bson:"occupant,omitempty" json:"occupant,omitempty"`
}

// QueueEntry is a pending listing waiting for a slot in one partition's FIFO.
// Ordering is by SubmittedAt ascending, ties broken by listing ID so backfill
// order is deterministic.
type QueueEntry struct {
	ListingID   utils.SixID `bson:"_id" json:"listing_id"`
	Partition   Partition   `bson:"partition" json:"partition"`
	SubmittedAt time.Time   `bson:"submitted_at" json:"submitted_at"`
}
