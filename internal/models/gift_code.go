package models

import (
	"time"

	"gorm.io/datatypes"
)

// Gift code lifecycle statuses.
const (
	// StatusAvailable marks a code that can be allocated.
	StatusAvailable = "AVAILABLE"
	// StatusAllocated marks a code reserved for an order.
	StatusAllocated = "ALLOCATED"
	// StatusRedeemed marks a code whose plaintext has been delivered. Terminal.
	StatusRedeemed = "REDEEMED"
	// StatusExpired marks a code past its validity window. Terminal.
	StatusExpired = "EXPIRED"
)

// Statuses lists every valid gift code status.
var Statuses = []string{StatusAvailable, StatusAllocated, StatusRedeemed, StatusExpired}

// ValidStatus reports whether s is one of the known lifecycle statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusAvailable, StatusAllocated, StatusRedeemed, StatusExpired:
		return true
	}
	return false
}

// GiftCode represents a single prepaid redemption code held in inventory.
// The plaintext code is kept only in its encrypted form at rest; CodeDigest
// is a deterministic fingerprint used solely for duplicate detection.
type GiftCode struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// CodeDigest is the SHA-256 fingerprint of the plaintext; EncryptedCode
	// is the authenticated ciphertext sealed under the keyring entry named
	// by KeyID.
	CodeDigest    string `gorm:"type:text;not null;uniqueIndex" json:"-"`
	EncryptedCode string `gorm:"type:text;not null" json:"-"`
	KeyID         string `gorm:"type:text;not null;index" json:"-"`

	// Denomination is the face value in minor units (cents).
	Denomination int64  `gorm:"not null" json:"denomination"`
	Status       string `gorm:"type:text;not null;index" json:"status"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`

	// PlaintextCode carries the decrypted code on redemption responses only.
	// Never persisted.
	PlaintextCode string `gorm:"-" json:"code,omitempty"`
}

// TableName pins the table name used by the inventory store.
func (GiftCode) TableName() string {
	return "gift_codes"
}
