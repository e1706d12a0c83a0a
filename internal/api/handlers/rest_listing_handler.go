package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"permabay/p120/internal/models"
	"permabay/p120/internal/services"
	"permabay/p120/internal/utils"
)

// RestListingHandler handles REST requests for listings.
type RestListingHandler struct {
	lifecycle services.ILifecycleService
}

// NewRestListingHandler creates a new RestListingHandler.
func NewRestListingHandler(lifecycle services.ILifecycleService) *RestListingHandler {
	return &RestListingHandler{lifecycle: lifecycle}
}

// CreateListingRequest is the seller submission payload.
type CreateListingRequest struct {
	SellerEmail string              `json:"seller_email" binding:"required"`
	Title       string              `json:"title" binding:"required"`
	Body        string              `json:"body"`
	Partition   string              `json:"partition" binding:"required"`
	Delivery    string              `json:"delivery" binding:"required"`
	AskingPrice *models.AskingPrice `json:"asking_price"`
}

// CreateListing handles POST /v1/listing
func (h *RestListingHandler) CreateListing(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid request body: %v", err)})
		return
	}

	listing, err := h.lifecycle.Submit(c.Request.Context(), services.SubmitListingInput{
		SellerEmail: req.SellerEmail,
		Title:       req.Title,
		Body:        req.Body,
		Partition:   models.Partition(req.Partition),
		Delivery:    models.Delivery(req.Delivery),
		AskingPrice: req.AskingPrice,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// GetListingByID handles GET /v1/listing/:id
func (h *RestListingHandler) GetListingByID(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.lifecycle.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// ListListings handles GET /v1/listing
func (h *RestListingHandler) ListListings(c *gin.Context) {
	var filter models.ListingFilter

	if statusStr := c.Query("status"); statusStr != "" {
		status := models.Status(statusStr)
		switch status {
		case models.StatusPending, models.StatusApproved, models.StatusRejected, models.StatusExpired:
			filter.Status = &status
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown status %q", statusStr)})
			return
		}
	}
	if partitionStr := c.Query("partition"); partitionStr != "" {
		partition, err := models.ParsePartition(partitionStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		filter.Partition = &partition
	}

	filter.Sort = models.SortSubmittedAsc
	if c.Query("sort") == string(models.SortSubmittedDesc) {
		filter.Sort = models.SortSubmittedDesc
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	filter.Limit = limit

	listings, err := h.lifecycle.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"listings": listings})
}

// RelistListing handles POST /v1/listing/:id/relist
func (h *RestListingHandler) RelistListing(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.lifecycle.Relist(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}

// WithdrawListing handles POST /v1/listing/:id/withdraw
func (h *RestListingHandler) WithdrawListing(c *gin.Context) {
	id, err := utils.ParseSixID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid listing ID format"})
		return
	}

	listing, err := h.lifecycle.Withdraw(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, listing)
}
