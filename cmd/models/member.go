package models

import (
	"gorm.io/gorm"
)

// Member is a client account's training profile. SessionCredits is the prepaid
// PT balance: debited by one on every confirmed booking, refunded by one on a
// member-initiated cancellation.
type Member struct {
	gorm.Model
	AccountID      uint  `gorm:"column:account_id;not null;index" json:"account_id"`
	TrainerID      *uint `gorm:"column:trainer_id;index" json:"trainer_id,omitempty"`
	SessionCredits int   `gorm:"column:session_credits;not null;default:0" json:"session_credits"`

	Account *Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Trainer *Trainer `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
}
