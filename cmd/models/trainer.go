package models

import (
	"github.com/lib/pq"
	"gorm.io/gorm"
)

type Trainer struct {
	gorm.Model
	AccountID   uint           `gorm:"column:account_id;not null;index" json:"account_id"`
	// Stored in pq array syntax so the column stays portable across the
	// postgres deployment and the sqlite test databases.
	Specialties pq.StringArray `gorm:"column:specialties;type:text" json:"specialties,omitempty"`

	Account *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`
}
