package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "meikon/internal/errors"
	"meikon/internal/services"
)

// RevenueHandler serves the MEI revenue-cap summary.
type RevenueHandler struct {
	revenueService services.RevenueServicer
}

// NewRevenueHandler creates a new RevenueHandler.
func NewRevenueHandler(revenueService services.RevenueServicer) *RevenueHandler {
	return &RevenueHandler{revenueService: revenueService}
}

// GetRevenueCap reports yearly income against the MEI ceiling
// @Summary     MEI revenue cap
// @Description Income booked in a calendar year against the R$ 81.000,00 MEI ceiling
// @Tags        revenue
// @Produce     json
// @Security    BearerAuth
// @Param       year query int false "Year (defaults to the current year)"
// @Success     200 {object} services.RevenueCapSummary "Revenue summary"
// @Failure     400 {object} ErrorResponse "Invalid year"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /revenue/cap [get]
func (h *RevenueHandler) GetRevenueCap(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	year := time.Now().UTC().Year()
	if v := c.Query("year"); v != "" {
		parsed, parseErr := strconv.Atoi(v)
		if parseErr != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "invalid year"))
			return
		}
		year = parsed
	}

	summary, err := h.revenueService.GetRevenueCap(userID, year)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}
