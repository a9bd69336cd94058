// Package domain defines the persisted types shared across the bridge.
package domain

import "time"

// VerificationRecord associates a Telegram chat with a confirmed phone number.
// At most one live record exists per chat id or phone number; a new contact
// share replaces any record matching either field.
type VerificationRecord struct {
	ChatID      int64     `bson:"chat_id" json:"chat_id"`
	PhoneNumber string    `bson:"phone_number" json:"phone_number"`
	VerifiedAt  time.Time `bson:"verified_at" json:"verified_at"`
}
