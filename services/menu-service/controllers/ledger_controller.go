package controllers

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/AliakbarMohammadi/catring-313-sub001/services/common/errors"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/common/reservation"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/models"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/repository"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/menu-service/services"
	"github.com/gin-gonic/gin"
)

// Error codes shared with the order service's menu client.
const (
	CodeInsufficientQuantity = "INSUFFICIENT_QUANTITY"
	CodeRecordNotFound       = "RECORD_NOT_FOUND"
	CodeBelowSold            = "BELOW_SOLD_QUANTITY"
)

type LedgerController struct {
	ledger       *services.LedgerService
	oracle       *services.AvailabilityOracle
	reservations *services.ReservationService
}

func NewLedgerController(ledger *services.LedgerService, oracle *services.AvailabilityOracle, reservations *services.ReservationService) *LedgerController {
	return &LedgerController{ledger: ledger, oracle: oracle, reservations: reservations}
}

// toAppError maps domain errors onto HTTP errors.
func toAppError(err error) *apperrors.Error {
	switch {
	case errors.Is(err, services.ErrInvalidDate),
		errors.Is(err, services.ErrInvalidQuantity),
		errors.Is(err, services.ErrInvalidDelta),
		errors.Is(err, services.ErrMissingItem),
		errors.Is(err, reservation.ErrInvalidItems):
		return apperrors.Validation(err.Error())
	case errors.Is(err, reservation.ErrRecordNotFound):
		return apperrors.New(http.StatusNotFound, CodeRecordNotFound, "Inventory record not found", err)
	case errors.Is(err, reservation.ErrInsufficientQuantity):
		return apperrors.Conflict(CodeInsufficientQuantity, "Insufficient quantity")
	case errors.Is(err, repository.ErrBelowSold):
		return apperrors.Conflict(CodeBelowSold, err.Error())
	default:
		return apperrors.Internal(err)
	}
}

// GET /menu/:date/inventory
func (lc *LedgerController) ListInventory(c *gin.Context) {
	recs, err := lc.ledger.ListInventory(c.Request.Context(), c.Param("date"))
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"menu_date": c.Param("date"), "items": recs})
}

// GET /menu/:date/inventory/:foodItemId
func (lc *LedgerController) GetInventory(c *gin.Context) {
	rec, err := lc.ledger.GetRecord(c.Request.Context(), c.Param("date"), c.Param("foodItemId"))
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"record": rec, "remaining": rec.Remaining()})
}

// PUT /menu/:date/inventory/:foodItemId
func (lc *LedgerController) SetInventory(c *gin.Context) {
	var req models.SetInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	rec, err := lc.ledger.SetInventory(c.Request.Context(), c.Param("date"), c.Param("foodItemId"), *req.AvailableQuantity)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GET /menu/:date/inventory/:foodItemId/entries
func (lc *LedgerController) ListEntries(c *gin.Context) {
	entries, err := lc.ledger.Entries(c.Request.Context(), c.Param("date"), c.Param("foodItemId"))
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	net := 0
	for _, e := range entries {
		net += e.Delta
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "net_delta": net})
}

// GET /menu/:date/publication
func (lc *LedgerController) GetPublication(c *gin.Context) {
	pub, err := lc.ledger.GetPublication(c.Request.Context(), c.Param("date"))
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, pub)
}

// PUT /menu/:date/publication
func (lc *LedgerController) SetPublication(c *gin.Context) {
	var req models.SetPublicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	pub, err := lc.ledger.SetPublication(c.Request.Context(), c.Param("date"), *req.IsPublished)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, pub)
}

// GET /inventory/availability?date=&food_item_id=&quantity=
func (lc *LedgerController) CheckAvailability(c *gin.Context) {
	qty, err := strconv.Atoi(c.Query("quantity"))
	if err != nil {
		_ = c.Error(apperrors.Validation("quantity must be an integer"))
		return
	}
	date, item := c.Query("date"), c.Query("food_item_id")
	if item == "" {
		_ = c.Error(apperrors.Validation("food_item_id is required"))
		return
	}

	ok, err := lc.oracle.CheckAvailability(c.Request.Context(), date, item, qty)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, models.AvailabilityResponse{Date: date, FoodItemID: item, Quantity: qty, Available: ok})
}

// PATCH /inventory/adjust
func (lc *LedgerController) Adjust(c *gin.Context) {
	var req models.AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	err := lc.ledger.AdjustSold(c.Request.Context(), reservation.AdjustRequest{
		Date:        req.Date,
		FoodItemID:  req.FoodItemID,
		Delta:       req.Delta,
		OperationID: req.OperationID,
		OrderID:     req.OrderID,
	})
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /inventory/reserve
func (lc *LedgerController) Reserve(c *gin.Context) {
	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	res, err := lc.reservations.Reserve(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, reservation.ErrCommitFailed) {
			_ = c.Error(apperrors.Unavailable("Reservation could not be committed", err).WithDetails(res.Items))
			return
		}
		appErr := toAppError(err)
		if appErr.Status == http.StatusInternalServerError {
			// nothing was committed, the caller may retry
			appErr = apperrors.Unavailable("Availability could not be checked", err)
		}
		_ = c.Error(appErr)
		return
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"success": res.Success, "items": res.Items})
}

// POST /inventory/release
func (lc *LedgerController) Release(c *gin.Context) {
	var req models.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	failures, err := lc.reservations.Release(c.Request.Context(), req)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	failed := make([]gin.H, 0, len(failures))
	for _, f := range failures {
		failed = append(failed, gin.H{"food_item_id": f.FoodItemID, "delta": f.Delta, "error": f.Err.Error()})
	}
	c.JSON(http.StatusOK, gin.H{"ok": len(failures) == 0, "failed": failed})
}
