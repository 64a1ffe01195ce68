package inventory

import (
	"time"

	"github.com/giftvault-io/giftvault/internal/models"
)

// AddCodeParams carries the inputs for inserting a new gift code.
type AddCodeParams struct {
	Code         string         // Plaintext code, validated then encrypted.
	Denomination int64          // Face value in minor units, must be positive.
	ExpiresAt    time.Time      // Validity boundary, required.
	Metadata     map[string]any // Optional open metadata attached at creation.
}

// AllocationResult reports the outcome of one allocation attempt. When
// Success is false the codes in AllocatedCodes were still reserved and are
// not rolled back; callers compensate by releasing them.
type AllocationResult struct {
	Success         bool              `json:"success"`
	AllocatedCodes  []models.GiftCode `json:"allocated_codes"`
	TotalAllocated  int64             `json:"total_allocated"`
	RemainingAmount int64             `json:"remaining_amount"`
	Error           string            `json:"error,omitempty"`
}

// InventoryStats is a consistent snapshot of inventory counts and values.
type InventoryStats struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Allocated int64 `json:"allocated"`
	Redeemed  int64 `json:"redeemed"`
	Expired   int64 `json:"expired"`

	TotalValue     int64 `json:"total_value"`     // Summed face value of all codes.
	AvailableValue int64 `json:"available_value"` // Summed face value of available codes.

	Denominations map[int64]int64 `json:"denominations"` // Count of codes per denomination.
}
