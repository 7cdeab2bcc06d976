package domain

import "time"

// Program is a merchant's punch-card reward program.
type Program struct {
	ID                string
	MerchantID        string
	Name              string
	RewardDescription string
	RequiredPunches   int
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProgramSummary is the read model offered in the customer decision step.
type ProgramSummary struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	RewardDescription string `json:"reward_description"`
	RequiredPunches   int    `json:"required_punches"`
}

// Summary projects the program to its summary.
func (p Program) Summary() ProgramSummary {
	return ProgramSummary{
		ID:                p.ID,
		Name:              p.Name,
		RewardDescription: p.RewardDescription,
		RequiredPunches:   p.RequiredPunches,
	}
}

// PunchResult is returned by a recorded punch.
type PunchResult struct {
	RewardAchieved bool `json:"reward_achieved"`
}
