package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User owns conversations and is matched to inbound email by address
type User struct {
	ID             string                 `json:"id"`
	Name           string                 `json:"name,omitempty"`
	EmailAddresses []string               `json:"email_addresses"`
	Settings       map[string]interface{} `json:"settings,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// NewUser creates a user with a generated id
func NewUser(name string, emails ...string) *User {
	now := time.Now().UTC()
	return &User{
		ID:             uuid.New().String(),
		Name:           name,
		EmailAddresses: emails,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks that the user has at least one email address
func (u *User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if len(u.EmailAddresses) == 0 {
		return fmt.Errorf("At least one email address is required")
	}
	return nil
}

// HasEmail reports whether the address belongs to the user, ignoring case
func (u *User) HasEmail(email string) bool {
	for _, addr := range u.EmailAddresses {
		if strings.EqualFold(addr, email) {
			return true
		}
	}
	return false
}
