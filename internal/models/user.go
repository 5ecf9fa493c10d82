package models

import (
	"time"
)

type User struct {
	ID           string
	Username     string
	Email        string
	Fullname     string
	PasswordHash string
	Avatar       string
	CoverImage   string

	// Current refresh token; empty if user has no live session
	RefreshToken string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// User without credentials. The only user shape allowed to leave the service
type PublicUser struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Fullname   string    `json:"fullname"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Sanitized returns a copy of the user with password hash and refresh token cleared
func (u User) Sanitized() User {
	u.PasswordHash = ""
	u.RefreshToken = ""
	return u
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Fullname:   u.Fullname,
		Avatar:     u.Avatar,
		CoverImage: u.CoverImage,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}
