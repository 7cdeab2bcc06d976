package scanner

import (
	"time"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// Mode is the state of the scan action state machine.
type Mode string

const (
	ModeScanning               Mode = "SCANNING"
	ModeAwaitingCustomerChoice Mode = "AWAITING_CUSTOMER_CHOICE"
	ModeAwaitingRedemption     Mode = "AWAITING_REDEMPTION"
	ModeAwaitingBundleChoice   Mode = "AWAITING_BUNDLE_CHOICE"
	ModeProcessing             Mode = "PROCESSING"
)

// Session is one scan cycle. It is replaced wholesale on every reset.
type Session struct {
	ID          string
	Mode        Mode
	Payload     domain.ScanPayload
	Busy        bool
	Decision    Decision
	CameraError string
	ResetAt     *time.Time
}

// Decision holds what the operator sees while a choice is pending. Exactly one
// of the pointers is set once Loaded is true.
type Decision struct {
	Loaded     bool
	Customer   *CustomerDecision
	Redemption *RedemptionDecision
	Bundle     *BundleDecision
}

// CustomerDecision lists what can be done for an identified customer. Lookup
// failures leave the option sets empty.
type CustomerDecision struct {
	UserID         string
	Programs       []domain.ProgramSummary
	BundleCatalogs []domain.BundleCatalogSummary
}

// RedemptionDecision describes the card presented for redemption.
type RedemptionDecision struct {
	CardID   string
	Detail   *domain.CardDetail
	NotFound bool
}

// CanConfirm reports whether redemption may be offered to the operator.
func (d RedemptionDecision) CanConfirm() bool {
	return !d.NotFound && d.Detail != nil && d.Detail.Redeemable()
}

// BundleDecision describes the bundle presented for use.
type BundleDecision struct {
	BundleID string
	Bundle   *domain.BundleDetail
	NotFound bool
}

// MaxQuantity is the largest quantity the operator may choose, 0 when none.
func (d BundleDecision) MaxQuantity() int {
	if d.NotFound || d.Bundle == nil {
		return 0
	}
	return d.Bundle.RemainingQuantity
}

// NotifyKind classifies operator notifications.
type NotifyKind string

const (
	NotifySuccess NotifyKind = "success"
	NotifyError   NotifyKind = "error"
)

// Notifier is the fire-and-forget notification side channel.
type Notifier interface {
	Notify(kind NotifyKind, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind NotifyKind, message string)

func (f NotifierFunc) Notify(kind NotifyKind, message string) { f(kind, message) }

// Outcome is the settled result of a confirmed action.
type Outcome struct {
	OK      bool
	Message string
}

func newSession(id string) Session {
	return Session{ID: id, Mode: ModeScanning}
}
