package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"permabay/p120/internal/models"
	"permabay/p120/internal/services"
	"permabay/p120/internal/utils"
)

// RestAdminHandler handles admin review and slot management requests.
type RestAdminHandler struct {
	lifecycle  services.ILifecycleService
	assignment services.IAssignmentService
	registry   services.ISlotRegistryService
	queue      services.IQueueService
	sweeper    services.ISweeperService
}

// NewRestAdminHandler creates a new RestAdminHandler.
func NewRestAdminHandler(
	lifecycle services.ILifecycleService,
	assignment services.IAssignmentService,
	registry services.ISlotRegistryService,
	queue services.IQueueService,
	sweeper services.ISweeperService,
) *RestAdminHandler {
	return &RestAdminHandler{
		lifecycle:  lifecycle,
		assignment: assignment,
		registry:   registry,
		queue:      queue,
		sweeper:    sweeper,
	}
}

// ApproveListing handles POST /v1/admin/listing/:id/approve
func (h *RestAdminHandler) ApproveListing(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.lifecycle.Approve(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// RejectListingRequest carries the mandatory reviewer feedback.
type RejectListingRequest struct {
	Feedback string `json:"feedback"`
}

// RejectListing handles POST /v1/admin/listing/:id/reject
func (h *RestAdminHandler) RejectListing(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	var req RejectListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	listing, err := h.lifecycle.Reject(c.Request.Context(), id, req.Feedback)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// AssignSlotRequest names the listing to force into a slot.
type AssignSlotRequest struct {
	ListingID string `json:"listing_id" binding:"required"`
}

// AssignSlot handles PUT /v1/admin/slot/:number
func (h *RestAdminHandler) AssignSlot(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slot number"})
		return
	}

	var req AssignSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	listingID, err := utils.ParseSixID(req.ListingID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.assignment.Assign(c.Request.Context(), number, listingID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// GetSlot handles GET /v1/admin/slot/:number
func (h *RestAdminHandler) GetSlot(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slot number"})
		return
	}

	occupant, err := h.assignment.Lookup(c.Request.Context(), number)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"number":    number,
		"partition": models.SlotPartition(number),
		"occupant":  occupant,
	})
}

// ListSlots handles GET /v1/admin/slots
func (h *RestAdminHandler) ListSlots(c *gin.Context) {
	slots, err := h.registry.Board(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"slots": slots})
}

// GetQueue handles GET /v1/admin/queue/:partition
func (h *RestAdminHandler) GetQueue(c *gin.Context) {
	partition, err := models.ParsePartition(c.Param("partition"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, err := h.queue.Entries(c.Request.Context(), partition)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"partition": partition, "entries": entries})
}

// TriggerSweep handles POST /v1/admin/sweep, an on-demand expiry pass in
// addition to the scheduled one.
func (h *RestAdminHandler) TriggerSweep(c *gin.Context) {
	result, err := h.sweeper.Sweep(c.Request.Context(), time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expired": result.Expired, "backfilled": result.Backfilled})
}
