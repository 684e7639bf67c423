package database

import (
	"time"
)

// Setting is one persisted key/value pair. Secret values are stored sealed.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:128" json:"key"`
	Value     string    `gorm:"type:text" json:"-"`
	Sealed    bool      `gorm:"not null;default:false" json:"sealed"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetAllModels returns every model the schema holds
func GetAllModels() []interface{} {
	return []interface{}{
		&Setting{},
	}
}
