package user

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")
)

// User is owned by the identity system. The dashboard core only reads it.
type User struct {
	ID           int64     `json:"id"`
	PublicID     string    `json:"publicId"`
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	PasswordHash *string   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Initial is the uppercase first letter shown in the profile badge.
func (u *User) Initial() string {
	name := strings.TrimSpace(u.FirstName)
	if name == "" {
		name = strings.TrimSpace(u.Email)
	}
	for _, r := range name {
		return strings.ToUpper(string(r))
	}
	return ""
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type CreateUserParams struct {
	Email        string
	FirstName    string
	LastName     string
	PasswordHash *string
}

func (p CreateUserParams) Validate() error {
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return errors.New("valid email is required")
	}
	if strings.TrimSpace(p.FirstName) == "" {
		return errors.New("first name is required")
	}
	return nil
}
