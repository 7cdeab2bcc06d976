package domain

import "time"

// CardStatus enumerates punch card lifecycle states.
type CardStatus string

const (
	CardStatusActive         CardStatus = "ACTIVE"
	CardStatusRewardReady    CardStatus = "REWARD_READY"
	CardStatusRewardRedeemed CardStatus = "REWARD_REDEEMED"
)

// PunchCard tracks a customer's progress in one program.
type PunchCard struct {
	ID             string
	UserID         string
	ProgramID      string
	MerchantID     string
	CurrentPunches int
	Status         CardStatus
	RedeemedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CardDetail is a punch card together with its program.
type CardDetail struct {
	Card         PunchCard
	Program      ProgramSummary
	MerchantName string
}

// Redeemable reports whether the card reached its threshold and has not been redeemed.
func (d CardDetail) Redeemable() bool {
	return d.Card.CurrentPunches >= d.Program.RequiredPunches &&
		d.Card.Status != CardStatusRewardRedeemed
}

// Punch records one punch on a card.
type Punch struct {
	ID         string
	CardID     string
	MerchantID string
	CreatedAt  time.Time
}

// RedemptionResult is returned by a redeemed card.
type RedemptionResult struct {
	MerchantName string `json:"merchant_name"`
}
