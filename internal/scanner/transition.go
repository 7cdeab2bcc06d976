package scanner

import (
	"errors"
	"fmt"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

var (
	ErrIllegalTransition = errors.New("scanner: illegal transition")
	ErrBusy              = errors.New("scanner: action in progress")
	ErrInvalidQuantity   = errors.New("scanner: invalid bundle quantity")
	ErrDecisionPending   = errors.New("scanner: decision step not loaded")
	ErrNotRedeemable     = errors.New("scanner: card not eligible for redemption")
	ErrClosed            = errors.New("scanner: closed")
	ErrNotStarted        = errors.New("scanner: not started")
)

// Event is an input to the state machine.
type Event string

const (
	EventScannedCustomer   Event = "scanned_customer"
	EventScannedRedemption Event = "scanned_redemption"
	EventScannedBundle     Event = "scanned_bundle"
	EventConfirmPunch      Event = "confirm_punch"
	EventConfirmRedemption Event = "confirm_redemption"
	EventConfirmBundle     Event = "confirm_bundle"
	EventSettled           Event = "settled"
	EventReset             Event = "reset"
)

var transitions = map[Mode]map[Event]Mode{
	ModeScanning: {
		EventScannedCustomer:   ModeAwaitingCustomerChoice,
		EventScannedRedemption: ModeAwaitingRedemption,
		EventScannedBundle:     ModeAwaitingBundleChoice,
		EventReset:             ModeScanning,
	},
	ModeAwaitingCustomerChoice: {
		EventConfirmPunch: ModeProcessing,
		EventReset:        ModeScanning,
	},
	ModeAwaitingRedemption: {
		EventConfirmRedemption: ModeProcessing,
		EventReset:             ModeScanning,
	},
	ModeAwaitingBundleChoice: {
		EventConfirmBundle: ModeProcessing,
		EventReset:         ModeScanning,
	},
	// Reset out of Processing is only legal once the call settled (busy == false).
	ModeProcessing: {
		EventSettled: ModeScanning,
		EventReset:   ModeScanning,
	},
}

// transition returns the next mode, or ErrIllegalTransition. A busy session
// rejects every event except the settlement of its own call.
func transition(mode Mode, busy bool, ev Event) (Mode, error) {
	if busy && ev != EventSettled {
		return mode, ErrBusy
	}
	next, ok := transitions[mode][ev]
	if !ok {
		return mode, fmt.Errorf("%w: %s in %s", ErrIllegalTransition, ev, mode)
	}
	return next, nil
}

func scanEvent(p domain.ScanPayload) Event {
	switch p.(type) {
	case domain.CustomerIdentity:
		return EventScannedCustomer
	case domain.RedemptionReference:
		return EventScannedRedemption
	case domain.BundleReference:
		return EventScannedBundle
	}
	return ""
}
