package models

import (
	"time"

	"gorm.io/gorm"
)

// Chat is the persistent one-to-one room between a member and their trainer.
// LastActivityAt is bumped whenever a message lands in the room and drives the
// ordering of the trainer's room list.
type Chat struct {
	gorm.Model
	MemberID       uint      `gorm:"column:member_id;not null;index" json:"member_id"`
	TrainerID      uint      `gorm:"column:trainer_id;not null;index" json:"trainer_id"`
	LastActivityAt time.Time `gorm:"column:last_activity_at" json:"last_activity_at"`

	Member  *Member  `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	Trainer *Trainer `gorm:"foreignKey:TrainerID" json:"trainer,omitempty"`
}

// Message belongs to exactly one chat. The auto-increment id doubles as the
// pagination cursor and the delivery order. Messages are immutable except for
// the one-way IsRead transition. SenderID is an account id; system (bot)
// messages use sender id 0.
type Message struct {
	gorm.Model
	ChatID   uint   `gorm:"column:chat_id;not null;index" json:"chat_id"`
	SenderID uint   `gorm:"column:sender_id;not null;index" json:"sender_id"`
	Content  string `gorm:"column:content;type:text;not null" json:"content"`
	IsSystem bool   `gorm:"column:is_system;default:false" json:"is_system"`
	IsRead   bool   `gorm:"column:is_read;default:false" json:"is_read"`
}

func (Message) TableName() string {
	return "messages"
}
