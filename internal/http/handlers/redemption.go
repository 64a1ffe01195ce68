package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/giftvault-io/giftvault/internal/inventory"
	"github.com/giftvault-io/giftvault/internal/security"
	"github.com/gin-gonic/gin"
)

// RedemptionHandler exposes the allocation and redemption boundary the
// checkout orchestrator calls once a payment is confirmed.
type RedemptionHandler struct {
	inv *inventory.Service
}

// NewRedemptionHandler constructs a RedemptionHandler.
func NewRedemptionHandler(inv *inventory.Service) *RedemptionHandler {
	return &RedemptionHandler{inv: inv}
}

// allocateRequest defines the body for allocation attempts.
type allocateRequest struct {
	TargetAmount int64 `json:"target_amount"` // Requested total in minor units.
}

// Allocate reserves available codes toward the target amount. A 409 with
// the full result body signals insufficiency: the listed codes stay
// reserved and the caller decides whether to release or keep them.
func (h *RedemptionHandler) Allocate(c *gin.Context) {
	var body allocateRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if body.TargetAmount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "target_amount must be positive"})
		return
	}

	result, errAllocate := h.inv.Allocate(c.Request.Context(), body.TargetAmount)
	if errAllocate != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "allocation failed"})
		return
	}
	if !result.Success {
		c.JSON(http.StatusConflict, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// releaseRequest defines the body for compensating a failed allocation.
type releaseRequest struct {
	IDs []uint64 `json:"ids"`
}

// Release returns previously allocated codes to the available pool.
func (h *RedemptionHandler) Release(c *gin.Context) {
	var body releaseRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.IDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids are required"})
		return
	}

	released, errRelease := h.inv.Release(c.Request.Context(), body.IDs)
	if errRelease != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "release failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": released})
}

// redeemRequest defines the body for redemption.
type redeemRequest struct {
	ID             uint64 `json:"id"`              // Code id returned by allocation.
	OrderReference string `json:"order_reference"` // Order the redemption is tied to.
}

// Redeem transitions an allocated code to REDEEMED and returns its
// decrypted plaintext for one-time delivery.
func (h *RedemptionHandler) Redeem(c *gin.Context) {
	var body redeemRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	orderReference := strings.TrimSpace(body.OrderReference)
	if body.ID == 0 || orderReference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id and order_reference are required"})
		return
	}

	code, errRedeem := h.inv.Redeem(c.Request.Context(), body.ID, orderReference)
	if errRedeem != nil {
		status, message := redeemErrorStatus(errRedeem)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"code":    code,
	})
}

// redeemErrorStatus maps redemption errors onto HTTP status codes.
func redeemErrorStatus(err error) (int, string) {
	var invalidStatus *inventory.InvalidStatusError
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound, "gift code not found"
	case errors.As(err, &invalidStatus):
		return http.StatusConflict, "gift code is " + invalidStatus.Current
	case errors.Is(err, inventory.ErrCodeExpired):
		return http.StatusGone, "gift code expired"
	case errors.Is(err, security.ErrAuthenticationFailed),
		errors.Is(err, security.ErrMalformedCiphertext),
		errors.Is(err, security.ErrUnknownKey):
		return http.StatusInternalServerError, "payload decryption failed"
	default:
		return http.StatusInternalServerError, "redemption failed"
	}
}
