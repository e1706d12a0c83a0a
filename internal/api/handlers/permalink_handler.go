package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"permabay/p120/internal/models"
	"permabay/p120/internal/services"
)

// permalinkPattern matches the permanent link paths /P1 .. /P120.
var permalinkPattern = regexp.MustCompile(`^/P(\d{1,3})$`)

// PermalinkHandler resolves /P{n} paths to their current occupant. It is
// registered as the router's NoRoute handler because /P1 is a single opaque
// path segment, not a parameterized route.
type PermalinkHandler struct {
	assignment services.IAssignmentService
}

// NewPermalinkHandler creates a new PermalinkHandler.
func NewPermalinkHandler(assignment services.IAssignmentService) *PermalinkHandler {
	return &PermalinkHandler{assignment: assignment}
}

// Resolve redirects an occupied slot's permanent link to the listing detail
// endpoint and reports a free slot as available.
func (h *PermalinkHandler) Resolve(c *gin.Context) {
	m := permalinkPattern.FindStringSubmatch(c.Request.URL.Path)
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	number, err := strconv.Atoi(m[1])
	if err != nil || !models.ValidSlotNumber(number) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("No such slot %s", m[1])})
		return
	}

	occupant, err := h.assignment.Lookup(c.Request.Context(), number)
	if err != nil {
		respondError(c, err)
		return
	}
	if occupant == nil {
		c.JSON(http.StatusOK, gin.H{
			"slot":      number,
			"partition": models.SlotPartition(number),
			"available": true,
		})
		return
	}

	c.Redirect(http.StatusFound, "/v1/listing/"+occupant.ID.String())
}
