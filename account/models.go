package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// Role determines what a caller may do on the platform. Business rules on a
// specific escrow (caller must be its payer, etc.) are checked by the core
// operations themselves; the role only gates route-level access.
type Role string

const (
	RolePayer      Role = "payer"
	RolePayee      Role = "payee"
	RoleArbitrator Role = "arbitrator"
)

// Account is the domain representation of a platform account. It mirrors the
// accounts table and carries no JSON annotations so it can be reused by
// different presentation layers.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	Balance      decimal.Decimal
	CreatedAt    time.Time
}

// CreateParams enumerates the fields required to provision an account.
// Balance always starts at zero; funds arrive through confirmed deposits.
type CreateParams struct {
	Email        string
	PasswordHash string
	Role         Role
}

// ValidRole reports whether role is one of the known platform roles.
func ValidRole(role Role) bool {
	switch role {
	case RolePayer, RolePayee, RoleArbitrator:
		return true
	default:
		return false
	}
}
