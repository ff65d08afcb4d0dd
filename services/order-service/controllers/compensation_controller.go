package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	apperrors "github.com/AliakbarMohammadi/catring-313-sub001/services/common/errors"
	"github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/models"
	repositories "github.com/AliakbarMohammadi/catring-313-sub001/services/order-service/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type CompensationAPI interface {
	List(ctx context.Context, status string, limit int) ([]models.CompensationRecord, error)
	Retry(ctx context.Context, id uuid.UUID) (*models.CompensationRecord, error)
}

// CompensationController exposes the dead-letter store of inventory
// adjustments that could not be applied, for manual reconciliation.
type CompensationController struct {
	worker CompensationAPI
}

func NewCompensationController(worker CompensationAPI) *CompensationController {
	return &CompensationController{worker: worker}
}

// GET /admin/compensations?status=pending&limit=50
func (cc *CompensationController) List(ctx *gin.Context) {
	status := ctx.Query("status")
	switch status {
	case "", models.CompensationPending, models.CompensationResolved, models.CompensationAbandoned:
	default:
		_ = ctx.Error(apperrors.Validation("status must be pending, resolved or abandoned"))
		return
	}

	limit := 50
	if l, err := strconv.Atoi(ctx.Query("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	recs, err := cc.worker.List(ctx.Request.Context(), status, limit)
	if err != nil {
		_ = ctx.Error(apperrors.Internal(err))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"compensations": recs, "count": len(recs)})
}

// POST /admin/compensations/:id/retry
func (cc *CompensationController) Retry(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid compensation ID format"})
		return
	}

	rec, err := cc.worker.Retry(ctx.Request.Context(), id)
	switch {
	case errors.Is(err, repositories.ErrCompensationNotFound):
		_ = ctx.Error(apperrors.NotFound("Compensation not found"))
		return
	case err != nil && rec == nil:
		_ = ctx.Error(apperrors.Internal(err))
		return
	case err != nil:
		// the attempt ran and failed; the record carries the cause
		ctx.JSON(http.StatusBadGateway, gin.H{"compensation": rec, "error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"compensation": rec})
}
