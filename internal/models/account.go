package models

import "gorm.io/gorm"

// Account groups the transactions and positions of one brokerage account.
// A user has at most one account with IsDefault set.
type Account struct {
	gorm.Model
	UserID    string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	IsDefault bool   `gorm:"not null;default:false"`
}
