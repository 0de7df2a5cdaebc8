package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Role is the closed set of roles carried by an authenticated identity.
type Role string

const (
	RoleRequester Role = "requester"
	RoleFulfiller Role = "fulfiller"
	RoleAdmin     Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleRequester, RoleFulfiller, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Identity is the pre-validated caller handed over by the auth layer.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}
