package model

import "time"

type RegisterRequest struct {
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required,min=6"`
	FullName      string `json:"fullName" binding:"required"`
	Role          Role   `json:"role" binding:"omitempty,role"`
	Phone         string `json:"phone"`
	LicenseNumber string `json:"licenseNumber"`
	Organization  string `json:"organization"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type ProfileUpdate struct {
	FullName     *string `json:"fullName"`
	Phone        *string `json:"phone"`
	Organization *string `json:"organization"`
}

func (p ProfileUpdate) IsEmpty() bool {
	return p.FullName == nil && p.Phone == nil && p.Organization == nil
}

// Session is the token pair handed to a client after login or refresh.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type LoginResult struct {
	User    UserProfile `json:"user"`
	Session Session     `json:"session"`
}
