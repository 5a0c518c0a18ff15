package auth

import "github.com/golang-jwt/jwt/v5"

// Claims are the only supported JWT claims shape for this service.
// Tokens are minted by the fleet identity service; this process only
// validates them. FleetID must be present for all non-admin activity.
type Claims struct {
	jwt.RegisteredClaims

	UserID  string `json:"user_id"`
	FleetID string `json:"fleet_id"`
	Role    string `json:"role"`
}
