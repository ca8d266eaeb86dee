package models

import "gorm.io/gorm"

// Setting is one key/value configuration row. Writable keys are restricted
// to an allow-list enforced by the settings service.
type Setting struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null" json:"key"`
	Value string `gorm:"size:255" json:"value"`
}
