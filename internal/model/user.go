package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion is persisted with every stored record.
const SchemaVersion = 1

// Role distinguishes buyers from operators.
type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleOperator Role = "operator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleOperator
}

// User is a marketplace account holding a balance.
type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Balance      decimal.Decimal `json:"balance"`
	Role         Role            `json:"role"`
	CreatedAt    time.Time       `json:"created_at"`
}

// UserSummary is the public view of a user returned after login.
type UserSummary struct {
	ID      string          `json:"id"`
	Email   string          `json:"email"`
	Balance decimal.Decimal `json:"balance"`
	Role    Role            `json:"role"`
}

// Summary returns the public view of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:      u.ID,
		Email:   u.Email,
		Balance: u.Balance,
		Role:    u.Role,
	}
}
