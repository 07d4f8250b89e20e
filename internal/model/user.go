package model

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Email         string     `json:"email" db:"email"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	FullName      string     `json:"full_name" db:"full_name"`
	Role          Role       `json:"role" db:"role"`
	Phone         *string    `json:"phone,omitempty" db:"phone"`
	LicenseNumber *string    `json:"license_number,omitempty" db:"license_number"`
	Organization  *string    `json:"organization,omitempty" db:"organization"`
	IsActive      bool       `json:"is_active" db:"is_active"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// UserProfile is the sanitized camelCase view returned to clients.
type UserProfile struct {
	ID            uuid.UUID  `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"fullName"`
	Role          Role       `json:"role"`
	Phone         *string    `json:"phone"`
	LicenseNumber *string    `json:"licenseNumber"`
	Organization  *string    `json:"organization"`
	IsActive      bool       `json:"isActive"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func (u *User) Profile() UserProfile {
	return UserProfile{
		ID:            u.ID,
		Email:         u.Email,
		FullName:      u.FullName,
		Role:          u.Role,
		Phone:         u.Phone,
		LicenseNumber: u.LicenseNumber,
		Organization:  u.Organization,
		IsActive:      u.IsActive,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// UserSummary is the short form used by the lookup endpoints.
type UserSummary struct {
	ID    uuid.UUID `json:"id" db:"id"`
	Name  string    `json:"name" db:"full_name"`
	Email string    `json:"email" db:"email"`
	Role  Role      `json:"role" db:"role"`
}

type UserFilter struct {
	Role     Role
	IsActive *bool
	Search   string
	Limit    int
	Offset   int
}

// UserUpdate carries the fields of a partial user update. Nil means unchanged.
type UserUpdate struct {
	FullName      *string `json:"fullName"`
	Role          *Role   `json:"role" binding:"omitempty,role"`
	Phone         *string `json:"phone"`
	LicenseNumber *string `json:"licenseNumber"`
	Organization  *string `json:"organization"`
	IsActive      *bool   `json:"isActive"`
}

func (u UserUpdate) IsEmpty() bool {
	return u.FullName == nil && u.Role == nil && u.Phone == nil &&
		u.LicenseNumber == nil && u.Organization == nil && u.IsActive == nil
}

// Apply returns a copy of user with the update applied.
func (u UserUpdate) Apply(user User) User {
	if u.FullName != nil {
		user.FullName = *u.FullName
	}
	if u.Role != nil {
		user.Role = *u.Role
	}
	if u.Phone != nil {
		user.Phone = u.Phone
	}
	if u.LicenseNumber != nil {
		user.LicenseNumber = u.LicenseNumber
	}
	if u.Organization != nil {
		user.Organization = u.Organization
	}
	if u.IsActive != nil {
		user.IsActive = *u.IsActive
	}
	return user
}

type RecentRegistrations struct {
	Last7Days  int `json:"last_7_days"`
	Last30Days int `json:"last_30_days"`
}

type UserStats struct {
	Total               int                 `json:"total"`
	Active              int                 `json:"active"`
	Inactive            int                 `json:"inactive"`
	ByRole              map[string]int      `json:"by_role"`
	RecentRegistrations RecentRegistrations `json:"recent_registrations"`
}
