package dto

import (
	"time"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// ConfirmPunchRequest payload for POST /scan/confirm/punch.
type ConfirmPunchRequest struct {
	ProgramID string `json:"program_id"`
}

// ConfirmBundleRequest payload for POST /scan/confirm/bundle.
type ConfirmBundleRequest struct {
	Quantity int `json:"quantity"`
}

// OutcomeResponse reports a settled action.
type OutcomeResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// PayloadView is the scanned payload as shown to the operator.
type PayloadView struct {
	Kind domain.PayloadKind `json:"kind"`
	ID   string             `json:"id"`
}

// SessionResponse renders the current scan session.
type SessionResponse struct {
	ID          string              `json:"id"`
	Mode        string              `json:"mode"`
	Busy        bool                `json:"busy"`
	Payload     *PayloadView        `json:"payload,omitempty"`
	CameraError string              `json:"camera_error,omitempty"`
	ResetAt     *time.Time          `json:"reset_at,omitempty"`
	Loaded      bool                `json:"decision_loaded"`
	Customer    *CustomerChoiceView `json:"customer,omitempty"`
	Redemption  *RedemptionView     `json:"redemption,omitempty"`
	Bundle      *BundleChoiceView   `json:"bundle,omitempty"`
}

// CustomerChoiceView lists the options for an identified customer.
type CustomerChoiceView struct {
	UserID         string                        `json:"user_id"`
	Programs       []domain.ProgramSummary       `json:"programs"`
	BundleCatalogs []domain.BundleCatalogSummary `json:"bundle_catalogs"`
}

// RedemptionView describes the card presented for redemption.
type RedemptionView struct {
	CardID          string                 `json:"card_id"`
	NotFound        bool                   `json:"not_found"`
	CanConfirm      bool                   `json:"can_confirm"`
	CurrentPunches  int                    `json:"current_punches,omitempty"`
	Status          domain.CardStatus      `json:"status,omitempty"`
	Program         *domain.ProgramSummary `json:"program,omitempty"`
	MerchantName    string                 `json:"merchant_name,omitempty"`
	RequiredPunches int                    `json:"required_punches,omitempty"`
}

// BundleChoiceView describes the bundle presented for use.
type BundleChoiceView struct {
	BundleID    string               `json:"bundle_id"`
	NotFound    bool                 `json:"not_found"`
	MaxQuantity int                  `json:"max_quantity"`
	Bundle      *domain.BundleDetail `json:"bundle,omitempty"`
}
