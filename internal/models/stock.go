package models

import "gorm.io/gorm"

// Stock is a tradable security identified by its ticker symbol.
type Stock struct {
	gorm.Model
	Symbol   string `gorm:"uniqueIndex;not null"`
	Name     string
	Exchange string
	Sector   string
}
