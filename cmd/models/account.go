package models

import (
	"gorm.io/gorm"
)

const (
	RoleMember  = "member"
	RoleTrainer = "trainer"
)

type Account struct {
	gorm.Model
	Email           string `gorm:"column:email;size:255;uniqueIndex;not null" json:"email"`
	PasswordHash    string `gorm:"column:password_hash;size:255;not null" json:"-"`
	Name            string `gorm:"column:name;size:100;not null" json:"name"`
	Role            string `gorm:"column:role;size:20;not null" json:"role"`
	ExpoPushToken   string `gorm:"column:expo_push_token;size:255" json:"-"`
	ProfilePhotoURL string `gorm:"column:profile_photo_url;size:512" json:"profile_photo_url,omitempty"`

	// Set after the one-time welcome push on the first successful login.
	FirstLoginNotified bool `gorm:"column:first_login_notified;default:false" json:"-"`
}
