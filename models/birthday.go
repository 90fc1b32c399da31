package models

import (
	"strings"
	"time"
)

// BirthdayRecord represents one known guild member and their birthday.
type BirthdayRecord struct {
	UserID           int64      `gorm:"primaryKey;autoIncrement:false"`
	DisplayName      string     `gorm:"not null;default:''"`
	FirstName        string     `gorm:"column:firstname;not null;default:''"`
	LastName         string     `gorm:"column:lastname;not null;default:''"`
	Birthday         *time.Time `gorm:"type:date"`
	NotifyPreference bool       `gorm:"not null;default:false;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Upcoming pairs a record with the number of days until its next birthday.
type Upcoming struct {
	Record    BirthdayRecord
	DaysUntil int
}

// HasBirthday reports whether a birthday has been set.
func (r BirthdayRecord) HasBirthday() bool {
	return r.Birthday != nil
}

// PreferredName is the name used to address the member: the first name when
// known, the display name otherwise.
func (r BirthdayRecord) PreferredName() string {
	if first := strings.TrimSpace(r.FirstName); first != "" {
		return first
	}
	return r.DisplayName
}

// FullName joins first and last name. It falls back to PreferredName when
// either part is missing.
func (r BirthdayRecord) FullName() string {
	first := strings.TrimSpace(r.FirstName)
	last := strings.TrimSpace(r.LastName)
	if first != "" && last != "" {
		return first + " " + last
	}
	return r.PreferredName()
}
