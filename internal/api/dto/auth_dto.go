package dto

import "time"

// OperatorLoginRequest payload for login.
type OperatorLoginRequest struct {
	PIN string `json:"pin"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token      string    `json:"token"`
	MerchantID string    `json:"merchant_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}
