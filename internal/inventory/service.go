package inventory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/giftvault-io/giftvault/internal/metrics"
	"github.com/giftvault-io/giftvault/internal/models"
	"github.com/giftvault-io/giftvault/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service owns the gift code inventory: insertion, allocation, redemption,
// expiry sweeping and statistics. All state lives in the database; status
// transitions that matter for correctness are conditional updates checked
// by rows-affected, so concurrent callers need no external locking.
type Service struct {
	db      *gorm.DB
	keyring *security.Keyring
	metrics *metrics.InventoryMetrics
}

// NewService constructs an inventory service over the given database and
// keyring.
func NewService(db *gorm.DB, keyring *security.Keyring) *Service {
	return &Service{db: db, keyring: keyring, metrics: metrics.Inventory()}
}

// codeDigest returns the deterministic fingerprint used for duplicate
// detection. The ciphertext cannot serve here: fresh nonces make it
// non-deterministic.
func codeDigest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// AddCode validates, encrypts and persists a new gift code with status
// AVAILABLE, returning the stored record.
func (s *Service) AddCode(ctx context.Context, params AddCodeParams) (*models.GiftCode, error) {
	code := strings.TrimSpace(params.Code)
	if !IsValidFormat(code) {
		return nil, ErrInvalidFormat
	}
	if params.Denomination <= 0 {
		return nil, ErrInvalidDenomination
	}
	if params.ExpiresAt.IsZero() {
		return nil, errors.New("inventory: expires_at is required")
	}

	digest := codeDigest(code)
	var existing int64
	if errCount := s.db.WithContext(ctx).Model(&models.GiftCode{}).
		Where("code_digest = ?", digest).
		Count(&existing).Error; errCount != nil {
		return nil, storeErr("add code", errCount)
	}
	if existing > 0 {
		return nil, ErrDuplicateCode
	}

	encrypted, errEncrypt := security.Encrypt(code, s.keyring.ActiveKey())
	if errEncrypt != nil {
		return nil, errEncrypt
	}

	record := models.GiftCode{
		CodeDigest:    digest,
		EncryptedCode: encrypted,
		KeyID:         s.keyring.ActiveID(),
		Denomination:  params.Denomination,
		Status:        models.StatusAvailable,
		Metadata:      datatypes.JSONMap(params.Metadata),
		ExpiresAt:     params.ExpiresAt.UTC(),
	}
	if errCreate := s.db.WithContext(ctx).Create(&record).Error; errCreate != nil {
		if isDuplicateKeyError(errCreate) {
			return nil, ErrDuplicateCode
		}
		return nil, storeErr("add code", errCreate)
	}
	return &record, nil
}

// isDuplicateKeyError recognizes unique index violations across dialects
// for races the pre-insert check cannot close.
func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

// Allocate reserves available codes toward targetAmount using a single
// greedy pass over candidates ordered by denomination descending (largest
// fitting piece first, ties by insertion order). Each reservation is a
// conditional AVAILABLE -> ALLOCATED update; a candidate claimed by a
// concurrent allocation is skipped, never retried.
//
// On insufficiency the codes already reserved during the attempt are NOT
// released. This partial reservation is a compensatable side effect: callers
// needing all-or-nothing semantics release the returned codes themselves.
func (s *Service) Allocate(ctx context.Context, targetAmount int64) (*AllocationResult, error) {
	if targetAmount <= 0 {
		return nil, errors.New("inventory: target amount must be positive")
	}

	var candidates []models.GiftCode
	if errFind := s.db.WithContext(ctx).
		Where("status = ?", models.StatusAvailable).
		Order("denomination DESC, id ASC").
		Find(&candidates).Error; errFind != nil {
		return nil, storeErr("allocate", errFind)
	}

	remaining := targetAmount
	allocated := make([]models.GiftCode, 0, 4)
	var totalAllocated int64

	for i := range candidates {
		if remaining <= 0 {
			break
		}
		candidate := candidates[i]
		if candidate.Denomination > remaining {
			continue
		}

		res := s.db.WithContext(ctx).Model(&models.GiftCode{}).
			Where("id = ? AND status = ?", candidate.ID, models.StatusAvailable).
			Update("status", models.StatusAllocated)
		if res.Error != nil {
			return nil, storeErr("allocate", res.Error)
		}
		if res.RowsAffected == 0 {
			// Claimed by a concurrent allocation between read and write.
			continue
		}

		candidate.Status = models.StatusAllocated
		allocated = append(allocated, candidate)
		remaining -= candidate.Denomination
		totalAllocated += candidate.Denomination
	}

	result := &AllocationResult{
		Success:         remaining == 0,
		AllocatedCodes:  allocated,
		TotalAllocated:  totalAllocated,
		RemainingAmount: remaining,
	}
	if !result.Success {
		result.Error = ErrInsufficientInventory.Error()
		log.WithFields(log.Fields{
			"target":    targetAmount,
			"allocated": totalAllocated,
			"codes":     len(allocated),
		}).Warn("allocation fell short of target")
	}
	s.metrics.ObserveAllocation(result.Success, len(allocated), totalAllocated)
	return result, nil
}

// Release returns allocated codes to the available pool. Callers use it to
// compensate a failed allocation attempt.
func (s *Service) Release(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.GiftCode{}).
		Where("id IN ? AND status = ?", ids, models.StatusAllocated).
		Update("status", models.StatusAvailable)
	if res.Error != nil {
		return 0, storeErr("release", res.Error)
	}
	return res.RowsAffected, nil
}

// Redeem transitions an allocated, unexpired code to REDEEMED, decrypting
// its payload for one-time delivery. The returned record carries the
// plaintext code and metadata merged with redeemedAt and orderId; only the
// encrypted form remains at rest.
func (s *Service) Redeem(ctx context.Context, id uint64, orderReference string) (*models.GiftCode, error) {
	var code models.GiftCode
	if errFind := s.db.WithContext(ctx).First(&code, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("redeem", errFind)
	}

	if code.Status != models.StatusAllocated {
		return nil, &InvalidStatusError{Current: code.Status}
	}
	// Expiry is checked independently of status: the sweep may not have
	// run yet.
	now := time.Now().UTC()
	if !code.ExpiresAt.After(now) {
		return nil, ErrCodeExpired
	}

	key, errKey := s.keyring.Key(code.KeyID)
	if errKey != nil {
		return nil, errKey
	}
	plaintext, errDecrypt := security.Decrypt(code.EncryptedCode, key)
	if errDecrypt != nil {
		// Decryption failures propagate unchanged.
		return nil, errDecrypt
	}

	merged := datatypes.JSONMap{}
	for k, v := range code.Metadata {
		merged[k] = v
	}
	merged["redeemedAt"] = now.Format(time.RFC3339)
	merged["orderId"] = orderReference

	res := s.db.WithContext(ctx).Model(&models.GiftCode{}).
		Where("id = ? AND status = ?", id, models.StatusAllocated).
		Updates(map[string]any{
			"status":   models.StatusRedeemed,
			"metadata": merged,
		})
	if res.Error != nil {
		return nil, storeErr("redeem", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost a race with a concurrent transition; report the fresh status.
		current := models.StatusRedeemed
		var reloaded models.GiftCode
		if errReload := s.db.WithContext(ctx).First(&reloaded, id).Error; errReload == nil {
			current = reloaded.Status
		}
		return nil, &InvalidStatusError{Current: current}
	}

	code.Status = models.StatusRedeemed
	code.Metadata = merged
	code.PlaintextCode = plaintext
	s.metrics.ObserveRedemption()
	return &code, nil
}

// SweepExpired transitions every AVAILABLE or ALLOCATED code past its
// expiry to EXPIRED and returns the count transitioned. Idempotent: with
// nothing newly expired it returns 0 and writes nothing.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.GiftCode{}).
		Where("status IN ? AND expires_at < ?", []string{models.StatusAvailable, models.StatusAllocated}, time.Now().UTC()).
		Update("status", models.StatusExpired)
	if res.Error != nil {
		return 0, storeErr("sweep expired", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Infof("expired %d gift codes", res.RowsAffected)
	}
	s.metrics.ObserveSweep(res.RowsAffected)
	return res.RowsAffected, nil
}

// SetStatus performs an unconditional administrative status transition.
// It fails with ErrNotFoundOrUnchanged when no record matched the id.
func (s *Service) SetStatus(ctx context.Context, id uint64, newStatus string) error {
	if !models.ValidStatus(newStatus) {
		return errors.New("inventory: invalid status " + newStatus)
	}
	res := s.db.WithContext(ctx).Model(&models.GiftCode{}).
		Where("id = ?", id).
		Update("status", newStatus)
	if res.Error != nil {
		return storeErr("set status", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFoundOrUnchanged
	}
	return nil
}

// statsRow is the grouped projection Stats aggregates from.
type statsRow struct {
	Status       string
	Denomination int64
	Count        int64
	Value        int64
}

// Stats returns counts and value sums per status plus a denomination
// histogram. A single grouped query gives one consistent snapshot.
func (s *Service) Stats(ctx context.Context) (*InventoryStats, error) {
	var rows []statsRow
	if errScan := s.db.WithContext(ctx).Model(&models.GiftCode{}).
		Select("status, denomination, COUNT(*) AS count, SUM(denomination) AS value").
		Group("status, denomination").
		Scan(&rows).Error; errScan != nil {
		return nil, storeErr("stats", errScan)
	}

	stats := &InventoryStats{Denominations: make(map[int64]int64)}
	for _, row := range rows {
		stats.Total += row.Count
		stats.TotalValue += row.Value
		stats.Denominations[row.Denomination] += row.Count
		switch row.Status {
		case models.StatusAvailable:
			stats.Available += row.Count
			stats.AvailableValue += row.Value
		case models.StatusAllocated:
			stats.Allocated += row.Count
		case models.StatusRedeemed:
			stats.Redeemed += row.Count
		case models.StatusExpired:
			stats.Expired += row.Count
		}
	}
	return stats, nil
}

// GetCode loads a single code by id without its plaintext.
func (s *Service) GetCode(ctx context.Context, id uint64) (*models.GiftCode, error) {
	var code models.GiftCode
	if errFind := s.db.WithContext(ctx).First(&code, id).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("get code", errFind)
	}
	return &code, nil
}

// ListCodes returns codes filtered by optional status, newest first.
func (s *Service) ListCodes(ctx context.Context, status string, limit, offset int) ([]models.GiftCode, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.GiftCode{})
	if status != "" {
		if !models.ValidStatus(status) {
			return nil, 0, errors.New("inventory: invalid status " + status)
		}
		query = query.Where("status = ?", status)
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		return nil, 0, storeErr("list codes", errCount)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var codes []models.GiftCode
	if errFind := query.Order("id DESC").Limit(limit).Offset(offset).Find(&codes).Error; errFind != nil {
		return nil, 0, storeErr("list codes", errFind)
	}
	return codes, total, nil
}
