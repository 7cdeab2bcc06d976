package domain

import "time"

// SubjectType differentiates token holders.
type SubjectType string

const (
	SubjectTypeOperator SubjectType = "OPERATOR"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID         string
	SubjectID  string
	Subject    SubjectType
	MerchantID string
	ExpiresAt  time.Time
	IssuedAt   time.Time
}
