package models

import (
	"strings"
	"time"
)

// UserRole represents the portal roles.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// ParseRole normalises a stored role string. Unknown values yield "".
func ParseRole(raw string) UserRole {
	switch r := UserRole(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return r
	}
	return ""
}

// Profile is the viewer identity stored in the profiles table.
type Profile struct {
	ID        string    `db:"id" json:"id"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	ClassID   *string   `db:"class_id" json:"class_id,omitempty"`
	BatchID   *string   `db:"batch_id" json:"batch_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
