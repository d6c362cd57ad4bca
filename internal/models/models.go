package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type Account struct {
	ID           uuid.UUID     `gorm:"type:uuid;primaryKey"       json:"id"`
	FirstName    string        `gorm:"not null;default:''"        json:"firstName"`
	LastName     string        `gorm:"not null;default:''"        json:"lastName"`
	Patronymic   string        `gorm:"not null;default:''"        json:"patronymic"`
	Email        string        `gorm:"uniqueIndex;not null"       json:"email"`
	PasswordHash string        `gorm:"not null"                   json:"-"`
	Role         Role          `gorm:"type:varchar(16);not null"  json:"role"`
	RefreshToken *RefreshToken `gorm:"foreignKey:AccountID"       json:"-"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }

// RefreshToken is the server-side half of a session. The unique index on
// AccountID keeps at most one token per account.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"                  json:"id"`
	Token     string    `gorm:"uniqueIndex;not null"        json:"token"`
	AccountID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"accountId"`
	ExpiresAt time.Time `gorm:"not null"                    json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

type AccountView struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	Patronymic string    `json:"patronymic"`
	Email      string    `json:"email"`
	Role       Role      `json:"role"`
}

func (a *Account) View() *AccountView {
	return &AccountView{
		ID:         a.ID,
		FirstName:  a.FirstName,
		LastName:   a.LastName,
		Patronymic: a.Patronymic,
		Email:      a.Email,
		Role:       a.Role,
	}
}
