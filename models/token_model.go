package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Token struct {
	ID         uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Code       string     `gorm:"size:64;not null;unique" json:"code"`
	Value      int        `gorm:"not null" json:"value"`
	ExpiryDate time.Time  `gorm:"type:date;not null" json:"expiry_date"`
	UsedBy     *uuid.UUID `gorm:"type:uuid" json:"used_by,omitempty"`
	UsedDate   *time.Time `json:"used_date,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func NormalizeTokenCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// StartOfDay truncates t to midnight UTC; token expiry compares whole days.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (t *Token) Usable(now time.Time) bool {
	return t.UsedBy == nil && !StartOfDay(t.ExpiryDate).Before(StartOfDay(now))
}
