// Package scanner sequences a scan cycle: camera scanning, the operator's
// decision step, exactly one remote action, and recovery to scanning.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/loyalty-scanner/internal/capture"
	"github.com/spec-kit/loyalty-scanner/internal/domain"
	"github.com/spec-kit/loyalty-scanner/internal/gateway"
	"github.com/spec-kit/loyalty-scanner/internal/observability"
	"github.com/spec-kit/loyalty-scanner/pkg/util/errorutil"
)

// DefaultResetDelay keeps a failure message on screen before the session resets.
const DefaultResetDelay = 4 * time.Second

// Camera is the capture loop as seen by the machine. Deactivate may be called
// with the machine's lock held, so it must not call back into the Sink.
type Camera interface {
	Activate(ctx context.Context, sink capture.Sink) error
	Deactivate()
}

// Dependencies bundles collaborators for the machine.
type Dependencies struct {
	Camera   Camera
	Gateway  gateway.Gateway
	Notifier Notifier
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// Options tunes the machine.
type Options struct {
	MerchantID    string
	ResetDelay    time.Duration
	LookupTimeout time.Duration
	OnScan        func(sessionID string, kind domain.PayloadKind)
	OnSuccess     func(message string)
	OnError       func(message string)
}

// Machine is the scan action state machine. It owns the Session; other
// components dispatch events through its methods and read Snapshot.
type Machine struct {
	camera   Camera
	gateway  gateway.Gateway
	notifier Notifier
	metrics  *observability.Metrics
	logger   *zap.Logger
	opts     Options

	mu         sync.Mutex
	ctx        context.Context
	session    Session
	resetTimer *time.Timer
	started    bool
	closed     bool
}

// NewMachine validates dependencies and builds a machine.
func NewMachine(deps Dependencies, opts Options) (*Machine, error) {
	if deps.Camera == nil {
		return nil, errors.New("scanner: camera is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("scanner: gateway is required")
	}
	if opts.MerchantID == "" {
		return nil, errors.New("scanner: merchant id is required")
	}
	if opts.ResetDelay <= 0 {
		opts.ResetDelay = DefaultResetDelay
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 5 * time.Second
	}
	if deps.Notifier == nil {
		deps.Notifier = NotifierFunc(func(NotifyKind, string) {})
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Machine{
		camera:   deps.Camera,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger.Named("scanner"),
		opts:     opts,
	}, nil
}

// Start creates the first session and activates the camera. ctx bounds the
// lifetime of every camera activation and lookup.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("scanner: already started")
	}
	m.ctx = ctx
	m.started = true
	m.session = newSession(uuid.NewString())
	m.mu.Unlock()

	m.logger.Info("scan session started", zap.String("merchant_id", m.opts.MerchantID))
	return m.activateCamera()
}

// Close tears the machine down: pending resets are cancelled and the camera is
// released. An in-flight action is left to settle; its reset is skipped.
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.stopTimerLocked()
	m.mu.Unlock()

	m.camera.Deactivate()
}

// Snapshot returns a copy of the current session.
func (m *Machine) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// OnPayload receives a classified payload from the capture loop.
func (m *Machine) OnPayload(p domain.ScanPayload) {
	m.mu.Lock()
	if !m.started || m.closed {
		m.mu.Unlock()
		return
	}
	next, err := transition(m.session.Mode, m.session.Busy, scanEvent(p))
	if err != nil {
		m.mu.Unlock()
		m.logger.Debug("payload ignored", zap.String("kind", string(p.Kind())), zap.Error(err))
		return
	}
	m.session.Mode = next
	m.session.Payload = p
	m.session.Decision = Decision{}
	sessionID := m.session.ID
	ctx := m.ctx
	// Released before unlocking so a concurrent Reset cannot lose its activation.
	m.camera.Deactivate()
	m.mu.Unlock()

	m.metrics.RecordScan(string(p.Kind()))
	if m.opts.OnScan != nil {
		m.opts.OnScan(sessionID, p.Kind())
	}
	m.logger.Info("payload classified",
		zap.String("session_id", sessionID),
		zap.String("kind", string(p.Kind())),
		zap.String("mode", string(next)))

	decision := m.loadDecision(ctx, p)

	m.mu.Lock()
	if m.session.ID == sessionID && m.session.Mode == next {
		m.session.Decision = decision
	}
	m.mu.Unlock()
}

// OnCaptureError records a camera failure for the current session.
func (m *Machine) OnCaptureError(err error) {
	m.mu.Lock()
	if m.started {
		m.session.CameraError = err.Error()
	}
	m.mu.Unlock()
	m.logger.Warn("camera unavailable", zap.Error(err))
}

// RetryCamera re-activates the camera after a capture failure.
func (m *Machine) RetryCamera() error {
	return m.activateCamera()
}

// Reset discards the current session and returns to scanning. Rejected with
// ErrBusy while an action is in flight.
func (m *Machine) Reset() error {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if _, err := transition(m.session.Mode, m.session.Busy, EventReset); err != nil {
		m.mu.Unlock()
		return err
	}
	m.restartLocked()
	m.mu.Unlock()

	m.logger.Info("session reset by operator")
	return m.activateCamera()
}

// ConfirmPunch records a punch for the scanned customer in programID.
func (m *Machine) ConfirmPunch(ctx context.Context, programID string) (Outcome, error) {
	if programID == "" {
		return Outcome{}, errorutil.NewValidationError("program_id required", nil)
	}
	var userID string
	prepare := func(s *Session) error {
		userID = s.Payload.(domain.CustomerIdentity).UserID
		return nil
	}
	call := func(ctx context.Context) (string, error) {
		res, err := m.gateway.RecordPunch(ctx, userID, programID)
		if err != nil {
			return "", err
		}
		if res.RewardAchieved {
			return "Punch recorded. Reward unlocked!", nil
		}
		return "Punch recorded.", nil
	}
	return m.confirm(ctx, EventConfirmPunch, actionRecordPunch, prepare, call)
}

// ConfirmRedemption redeems the scanned punch card. The loaded decision must
// allow it (RedemptionDecision.CanConfirm), checked against the session being
// confirmed; a remote rejection is an ordinary failure.
func (m *Machine) ConfirmRedemption(ctx context.Context) (Outcome, error) {
	var cardID string
	prepare := func(s *Session) error {
		d := s.Decision.Redemption
		if !s.Decision.Loaded || d == nil {
			return ErrDecisionPending
		}
		if !d.CanConfirm() {
			return ErrNotRedeemable
		}
		cardID = s.Payload.(domain.RedemptionReference).PunchCardID
		return nil
	}
	call := func(ctx context.Context) (string, error) {
		res, err := m.gateway.RedeemPunchCard(ctx, cardID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Reward redeemed at %s.", res.MerchantName), nil
	}
	return m.confirm(ctx, EventConfirmRedemption, actionRedeemCard, prepare, call)
}

// ConfirmBundleUse consumes quantity units of the scanned bundle. Quantities
// outside 1..remaining are rejected without a remote call.
func (m *Machine) ConfirmBundleUse(ctx context.Context, quantity int) (Outcome, error) {
	var bundleID string
	prepare := func(s *Session) error {
		bundle := s.Decision.Bundle
		if !s.Decision.Loaded || bundle == nil {
			return ErrDecisionPending
		}
		if bundle.Bundle == nil || !bundle.Bundle.AcceptsQuantity(quantity) {
			return fmt.Errorf("%w: %d (remaining %d)", ErrInvalidQuantity, quantity, bundle.MaxQuantity())
		}
		bundleID = bundle.BundleID
		return nil
	}
	call := func(ctx context.Context) (string, error) {
		res, err := m.gateway.UseBundle(ctx, bundleID, quantity)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Used %d x %s.", quantity, res.ItemName), nil
	}
	return m.confirm(ctx, EventConfirmBundle, actionUseBundle, prepare, call)
}

// confirm enters Processing under the lock, issues exactly one remote call and
// settles. The call is not cancellable by the caller's context.
func (m *Machine) confirm(ctx context.Context, ev Event, act action, prepare func(*Session) error, call func(context.Context) (string, error)) (Outcome, error) {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return Outcome{}, err
	}
	next, err := transition(m.session.Mode, m.session.Busy, ev)
	if err != nil {
		m.mu.Unlock()
		return Outcome{}, err
	}
	if err := prepare(&m.session); err != nil {
		m.mu.Unlock()
		return Outcome{}, err
	}
	m.session.Mode = next
	m.session.Busy = true
	sessionID := m.session.ID
	m.mu.Unlock()

	m.logger.Info("dispatching action", zap.String("session_id", sessionID), zap.String("action", string(act)))
	message, err := call(context.WithoutCancel(ctx))
	return m.settle(sessionID, act, message, err), nil
}

func (m *Machine) settle(sessionID string, act action, message string, err error) Outcome {
	m.metrics.RecordAction(string(act), err == nil)

	if err == nil {
		m.notifier.Notify(NotifySuccess, message)
		if m.opts.OnSuccess != nil {
			m.opts.OnSuccess(message)
		}
		m.logger.Info("action succeeded", zap.String("session_id", sessionID), zap.String("action", string(act)))

		m.mu.Lock()
		if m.closed || m.session.ID != sessionID {
			m.mu.Unlock()
			return Outcome{OK: true, Message: message}
		}
		m.restartLocked()
		m.mu.Unlock()
		if aerr := m.activateCamera(); aerr != nil {
			m.logger.Warn("camera reactivation failed", zap.Error(aerr))
		}
		return Outcome{OK: true, Message: message}
	}

	text := errorutil.UserMessage(err, act.fallback())
	m.notifier.Notify(NotifyError, text)
	if m.opts.OnError != nil {
		m.opts.OnError(text)
	}
	m.logger.Warn("action failed",
		zap.String("session_id", sessionID),
		zap.String("action", string(act)),
		zap.Error(err))

	m.mu.Lock()
	if !m.closed && m.session.ID == sessionID {
		m.session.Busy = false
		resetAt := time.Now().Add(m.opts.ResetDelay)
		m.session.ResetAt = &resetAt
		m.stopTimerLocked()
		m.resetTimer = time.AfterFunc(m.opts.ResetDelay, func() { m.autoReset(sessionID) })
	}
	m.mu.Unlock()
	return Outcome{OK: false, Message: text}
}

func (m *Machine) autoReset(sessionID string) {
	m.mu.Lock()
	if m.closed || m.session.ID != sessionID {
		m.mu.Unlock()
		return
	}
	if _, err := transition(m.session.Mode, m.session.Busy, EventSettled); err != nil {
		m.mu.Unlock()
		return
	}
	m.restartLocked()
	m.mu.Unlock()

	m.logger.Info("session reset after failure", zap.String("session_id", sessionID))
	if err := m.activateCamera(); err != nil {
		m.logger.Warn("camera reactivation failed", zap.Error(err))
	}
}

// activateCamera activates the capture loop when the session is scanning.
func (m *Machine) activateCamera() error {
	m.mu.Lock()
	if err := m.usableLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.session.Mode != ModeScanning {
		m.mu.Unlock()
		return nil
	}
	m.session.CameraError = ""
	sessionID := m.session.ID
	ctx := m.ctx
	m.mu.Unlock()

	err := m.camera.Activate(ctx, m)
	if errors.Is(err, capture.ErrAlreadyActive) {
		err = nil
	}

	m.mu.Lock()
	closed := m.closed
	if errors.Is(err, capture.ErrDeactivated) {
		// Only a superseded session may lose its activation silently.
		if !closed && m.session.ID == sessionID && m.session.Mode == ModeScanning {
			m.session.CameraError = err.Error()
		} else {
			err = nil
		}
	}
	m.mu.Unlock()
	if closed {
		m.camera.Deactivate()
	}
	return err
}

func (m *Machine) usableLocked() error {
	if m.closed {
		return ErrClosed
	}
	if !m.started {
		return ErrNotStarted
	}
	return nil
}

func (m *Machine) restartLocked() {
	m.stopTimerLocked()
	m.session = newSession(uuid.NewString())
}

func (m *Machine) stopTimerLocked() {
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
}

type action string

const (
	actionRecordPunch action = "record_punch"
	actionRedeemCard  action = "redeem_punch_card"
	actionUseBundle   action = "use_bundle"
)

func (a action) fallback() string {
	switch a {
	case actionRecordPunch:
		return "Failed to record punch"
	case actionRedeemCard:
		return "Failed to redeem reward"
	case actionUseBundle:
		return "Failed to use bundle"
	default:
		return "Action failed"
	}
}
