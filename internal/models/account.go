package models

import (
	"time"

	"github.com/google/uuid"
)

// Account roles.
const (
	RoleBuyer  = "buyer"
	RoleWorker = "worker"
	RoleAdmin  = "admin"
)

// Signup bonuses credited when an account is first created.
const (
	SignupBonusWorker = 10
	SignupBonusBuyer  = 50
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	return r == RoleBuyer || r == RoleWorker || r == RoleAdmin
}

type Account struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	Coin        int64     `json:"coin"`
	PhotoURL    string    `json:"photo_url"`
	Bio         string    `json:"bio"`
	BannerURL   string    `json:"banner_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProfileUpdate carries the optional profile fields; nil means unchanged.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
	PhotoURL    *string `json:"photo_url"`
	BannerURL   *string `json:"banner_url"`
}
