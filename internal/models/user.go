package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// Role is the authorization level of a user
type Role string

const (
	RoleGeneral Role = "GENERAL"
	RoleAdmin   Role = "ADMIN"
)

// ParseRole normalizes a stored or submitted role; unknown values map to GENERAL
func ParseRole(s string) Role {
	if strings.EqualFold(strings.TrimSpace(s), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleGeneral
}

// Scan normalizes the role once when it is read from the database
func (r *Role) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = RoleGeneral
	case string:
		*r = ParseRole(v)
	case []byte:
		*r = ParseRole(string(v))
	default:
		return fmt.Errorf("unsupported role type %T", value)
	}
	return nil
}

// Value implements driver.Valuer
func (r Role) Value() (driver.Value, error) {
	return string(ParseRole(string(r))), nil
}

// User represents an account
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement;column:id"`
	Username     string    `gorm:"type:varchar(50);uniqueIndex;not null;column:username"`
	PasswordHash string    `gorm:"type:varchar(255);not null;column:password"`
	Email        *string   `gorm:"type:varchar(255);uniqueIndex;column:email"`
	Role         Role      `gorm:"type:varchar(16);not null;default:GENERAL;column:role"`
	IsVerified   bool      `gorm:"not null;default:false;column:is_verified"`
	RegisteredAt time.Time `gorm:"not null;column:registered_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}
