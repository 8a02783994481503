// internal/storage/models/threat.go
package models

import "time"

// Threat is one advisory finding from the execution screen, kept for
// offline review. Findings never blocked the trade they describe.
type Threat struct {
	BaseModel
	Token       string    `gorm:"index;not null;type:varchar(42)"`
	Kind        string    `gorm:"not null;type:varchar(32)"`
	Description string    `gorm:"type:text"`
	DetectedAt  time.Time `gorm:"index;not null"`
}
