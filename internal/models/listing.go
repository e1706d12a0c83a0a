package models

import (
	"fmt"
	"time"

	"permabay/p120/internal/utils"
)

// Status is the listing lifecycle state. Transitions are owned exclusively by
// the lifecycle controller.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Delivery describes how the seller hands the product over. The original data
// carried separate pickup/shipping booleans next to an enum; here it is one
// tagged value.
type Delivery string

const (
	DeliveryPickup   Delivery = "pickup"
	DeliveryShipping Delivery = "shipping"
	DeliveryBoth     Delivery = "both"
)

// ParseDelivery validates a delivery option string.
func ParseDelivery(s string) (Delivery, error) {
	switch Delivery(s) {
	case DeliveryPickup, DeliveryShipping, DeliveryBoth:
		return Delivery(s), nil
	}
	return "", fmt.Errorf("unknown delivery option %q", s)
}

// AskingPrice is the seller's advertised price, distinct from the listing fee.
type AskingPrice struct {
	Value        float64 `bson:"value" json:"value"`
	CurrencyCode string  `bson:"currency_code" json:"currency_code"`
}

// Fee is the charge recorded when a listing is approved, quoted by the fee
// calculator from (partition, duration).
type Fee struct {
	Amount       float64       `bson:"amount" json:"amount"`
	CurrencyCode string        `bson:"currency_code" json:"currency_code"`
	Duration     time.Duration `bson:"duration" json:"duration"`
}

// Listing is a submitted product advertisement tracked through the approval
// lifecycle. Slot is set iff Status is approved (and may still be nil for an
// approved listing displaced by a manual assignment); ExpiresAt is set iff
// Status is approved.
type Listing struct {
	ID          utils.SixID  `bson:"_id" json:"id"`
	SellerEmail string       `bson:"seller_email" json:"seller_email"`
	Title       string       `bson:"title" json:"title"`
	Body        string       `bson:"body" json:"body"`
	Partition   Partition    `bson:"partition" json:"partition"`
	Delivery    Delivery     `bson:"delivery" json:"delivery"`
	AskingPrice *AskingPrice `bson:"asking_price,omitempty" json:"asking_price,omitempty"`
	Status      Status       `bson:"status" json:"status"`
	Slot        *int         `bson:"slot,omitempty" json:"slot,omitempty"`
	Fee         *Fee         `bson:"fee,omitempty" json:"fee,omitempty"`
	Feedback    string       `bson:"feedback,omitempty" json:"feedback,omitempty"`
	SubmittedAt time.Time    `bson:"submitted_at" json:"submitted_at"`
	ExpiresAt   *time.Time   `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
}

// StatusChangeEvent is emitted after a lifecycle transition. It is informational
// only: delivery failure never rolls the transition back.
type StatusChangeEvent struct {
	ListingID   utils.SixID `json:"listing_id"`
	SellerEmail string      `json:"seller_email"`
	Title       string      `json:"title"`
	NewStatus   Status      `json:"new_status"`
	Feedback    string      `json:"feedback,omitempty"`
	Slot        *int        `json:"slot,omitempty"`
}

// SortOrder enumerates the recognized listing sort options.
type SortOrder string

const (
	SortSubmittedAsc  SortOrder = "submitted_asc"
	SortSubmittedDesc SortOrder = "submitted_desc"
)

// ListingFilter is the closed set of recognized listing query options;
// anything outside this struct is not a supported filter.
type ListingFilter struct {
	Status    *Status
	Partition *Partition
	Sort      SortOrder
	Limit     int
}
