package models

import (
	"gorm.io/gorm"
)

const (
	ReservationConfirmed = "confirmed"
	ReservationCancelled = "cancelled"
)

// Reservation links a member to a slot. The status moves confirmed→cancelled
// one way; a finished session is derived from the slot time, never stored.
// Uniqueness of one non-cancelled reservation per (slot, member) is enforced
// by the booking transaction, not by a database constraint.
type Reservation struct {
	gorm.Model
	ScheduleID uint   `gorm:"column:schedule_id;not null;index" json:"schedule_id"`
	MemberID   uint   `gorm:"column:member_id;not null;index" json:"member_id"`
	Status     string `gorm:"column:status;size:20;not null;default:'confirmed'" json:"status"`

	Schedule *Schedule `gorm:"foreignKey:ScheduleID" json:"schedule,omitempty"`
	Member   *Member   `gorm:"foreignKey:MemberID" json:"member,omitempty"`
}
