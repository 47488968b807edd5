package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "meikon/internal/errors"
	"meikon/internal/services"
)

// GoalHandler handles monthly goal requests.
type GoalHandler struct {
	goalService  services.GoalServicer
	auditService services.AuditServicer
}

// NewGoalHandler creates a new GoalHandler.
func NewGoalHandler(goalService services.GoalServicer, auditService services.AuditServicer) *GoalHandler {
	return &GoalHandler{goalService: goalService, auditService: auditService}
}

// UpsertGoalRequest represents the request payload for setting a monthly goal.
type UpsertGoalRequest struct {
	Month        int             `json:"month" binding:"required,min=1,max=12"`
	Year         int             `json:"year" binding:"required,min=2000,max=2100"`
	TargetAmount decimal.Decimal `json:"target_amount" binding:"required,gt=0" swaggertype:"number"`
}

// UpsertGoal sets the revenue goal for a month
// @Summary     Set monthly goal
// @Tags        goals
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body UpsertGoalRequest true "Goal"
// @Success     200 {object} models.Goal "Goal stored"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /goals [put]
func (h *GoalHandler) UpsertGoal(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpsertGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	goal, err := h.goalService.UpsertGoal(userID, req.Month, req.Year, req.TargetAmount)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "UPSERT_GOAL", "goal", goal.ID, c.ClientIP(),
		map[string]interface{}{"month": req.Month, "year": req.Year, "target_amount": req.TargetAmount.String()})

	c.JSON(http.StatusOK, gin.H{"goal": goal})
}

// GetGoalProgress returns a month's goal and the income booked against it
// @Summary     Get goal progress
// @Tags        goals
// @Produce     json
// @Security    BearerAuth
// @Param       year  path int true "Year"
// @Param       month path int true "Month (1-12)"
// @Success     200 {object} services.GoalProgress "Goal progress"
// @Failure     400 {object} ErrorResponse "Invalid period"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Goal not found"
// @Router      /goals/{year}/{month} [get]
func (h *GoalHandler) GetGoalProgress(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	year, yErr := strconv.Atoi(c.Param("year"))
	month, mErr := strconv.Atoi(c.Param("month"))
	if yErr != nil || mErr != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "year and month must be numbers"))
		return
	}

	progress, err := h.goalService.GetGoalProgress(userID, month, year)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, progress)
}
