package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/giftvault-io/giftvault/internal/cache"
	"github.com/giftvault-io/giftvault/internal/inventory"
	"github.com/gin-gonic/gin"
)

// CodesHandler handles admin operations on the gift code inventory.
type CodesHandler struct {
	inv              *inventory.Service
	statsCache       *cache.StatsCache
	defaultValidDays int
}

// NewCodesHandler wires a codes handler with its dependencies.
func NewCodesHandler(inv *inventory.Service, statsCache *cache.StatsCache, defaultValidDays int) *CodesHandler {
	return &CodesHandler{inv: inv, statsCache: statsCache, defaultValidDays: defaultValidDays}
}

// createCodeRequest captures the payload for inserting a single code.
type createCodeRequest struct {
	Code         string         `json:"code"`         // Plaintext gift code.
	Denomination int64          `json:"denomination"` // Face value in minor units.
	ExpiresAt    *time.Time     `json:"expires_at"`   // Optional explicit expiry.
	ValidDays    *int           `json:"valid_days"`   // Optional validity window in days.
	Metadata     map[string]any `json:"metadata"`     // Optional open metadata.
}

// expiry resolves the effective expiry for a request.
func (r createCodeRequest) expiry(defaultValidDays int) time.Time {
	if r.ExpiresAt != nil {
		return r.ExpiresAt.UTC()
	}
	days := defaultValidDays
	if r.ValidDays != nil && *r.ValidDays > 0 {
		days = *r.ValidDays
	}
	return time.Now().UTC().AddDate(0, 0, days)
}

// Create validates input and persists a new gift code.
func (h *CodesHandler) Create(c *gin.Context) {
	var body createCodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	record, errAdd := h.inv.AddCode(c.Request.Context(), inventory.AddCodeParams{
		Code:         body.Code,
		Denomination: body.Denomination,
		ExpiresAt:    body.expiry(h.defaultValidDays),
		Metadata:     body.Metadata,
	})
	if errAdd != nil {
		status, message := addCodeErrorStatus(errAdd)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusCreated, record)
}

// batchCreateCodesRequest captures the payload for batch insertion.
type batchCreateCodesRequest struct {
	Codes     []createCodeRequest `json:"codes"`
	ValidDays *int                `json:"valid_days"` // Applied to entries without their own expiry.
}

// batchEntryResult reports the outcome for one batch entry.
type batchEntryResult struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// BatchCreate inserts multiple gift codes, reporting per-entry failures
// without aborting the rest of the batch.
func (h *CodesHandler) BatchCreate(c *gin.Context) {
	var body batchCreateCodesRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if len(body.Codes) == 0 || len(body.Codes) > 1000 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "codes must contain between 1 and 1000 entries"})
		return
	}

	created := make([]any, 0, len(body.Codes))
	failed := make([]batchEntryResult, 0)
	for _, entry := range body.Codes {
		if entry.ValidDays == nil {
			entry.ValidDays = body.ValidDays
		}
		record, errAdd := h.inv.AddCode(c.Request.Context(), inventory.AddCodeParams{
			Code:         entry.Code,
			Denomination: entry.Denomination,
			ExpiresAt:    entry.expiry(h.defaultValidDays),
			Metadata:     entry.Metadata,
		})
		if errAdd != nil {
			_, message := addCodeErrorStatus(errAdd)
			failed = append(failed, batchEntryResult{Code: entry.Code, Error: message})
			continue
		}
		created = append(created, record)
	}

	c.JSON(http.StatusOK, gin.H{
		"created": created,
		"failed":  failed,
	})
}

// List returns codes filtered by optional status with pagination.
func (h *CodesHandler) List(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	codes, total, errList := h.inv.ListCodes(c.Request.Context(), status, limit, offset)
	if errList != nil {
		var storeError *inventory.StoreError
		if errors.As(errList, &storeError) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list codes failed"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errList.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"codes": codes,
		"total": total,
	})
}

// Get returns a single code by id, without its plaintext.
func (h *CodesHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	code, errGet := h.inv.GetCode(c.Request.Context(), id)
	if errGet != nil {
		if errors.Is(errGet, inventory.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "gift code not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get code failed"})
		return
	}
	c.JSON(http.StatusOK, code)
}

// setStatusRequest defines the body for administrative status updates.
type setStatusRequest struct {
	Status string `json:"status"`
}

// SetStatus performs an unconditional administrative status transition.
func (h *CodesHandler) SetStatus(c *gin.Context) {
	id, errParse := strconv.ParseUint(c.Param("id"), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body setStatusRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	errSet := h.inv.SetStatus(c.Request.Context(), id, strings.TrimSpace(body.Status))
	switch {
	case errSet == nil:
		c.JSON(http.StatusOK, gin.H{"updated": true})
	case errors.Is(errSet, inventory.ErrNotFoundOrUnchanged):
		c.JSON(http.StatusNotFound, gin.H{"error": "no matching code"})
	default:
		var storeError *inventory.StoreError
		if errors.As(errSet, &storeError) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "set status failed"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": errSet.Error()})
	}
}

// Sweep runs one expiry sweep and reports the count transitioned.
func (h *CodesHandler) Sweep(c *gin.Context) {
	expired, errSweep := h.inv.SweepExpired(c.Request.Context())
	if errSweep != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

// Stats returns the inventory snapshot, served from the short-TTL cache
// when one is configured.
func (h *CodesHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	if cached, ok := h.statsCache.Get(ctx); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	stats, errStats := h.inv.Stats(ctx)
	if errStats != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats failed"})
		return
	}
	h.statsCache.Set(ctx, stats)
	c.JSON(http.StatusOK, stats)
}

// addCodeErrorStatus maps insertion errors onto HTTP status codes.
func addCodeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, inventory.ErrInvalidFormat):
		return http.StatusBadRequest, "invalid gift code format"
	case errors.Is(err, inventory.ErrInvalidDenomination):
		return http.StatusBadRequest, "denomination must be positive"
	case errors.Is(err, inventory.ErrDuplicateCode):
		return http.StatusConflict, "gift code already exists"
	default:
		return http.StatusInternalServerError, "create code failed"
	}
}
