package handlers

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/loyalty-scanner/internal/api/dto"
	"github.com/spec-kit/loyalty-scanner/internal/capture"
	"github.com/spec-kit/loyalty-scanner/internal/domain"
	"github.com/spec-kit/loyalty-scanner/internal/observability"
	"github.com/spec-kit/loyalty-scanner/internal/scanner"
	apperrors "github.com/spec-kit/loyalty-scanner/pkg/util/errorutil"
)

// ScanMachine is the part of scanner.Machine the operator API drives.
type ScanMachine interface {
	Snapshot() scanner.Session
	ConfirmPunch(ctx context.Context, programID string) (scanner.Outcome, error)
	ConfirmRedemption(ctx context.Context) (scanner.Outcome, error)
	ConfirmBundleUse(ctx context.Context, quantity int) (scanner.Outcome, error)
	Reset() error
	RetryCamera() error
}

// CaptureStats reports capture loop state.
type CaptureStats interface {
	State() (capture.State, error)
	Stats() capture.Stats
}

// ScanHandler exposes the scan session to the operator.
type ScanHandler struct {
	machine ScanMachine
	capture CaptureStats
	metrics *observability.Metrics
}

// NewScanHandler constructs handler.
func NewScanHandler(machine ScanMachine, captureStats CaptureStats, metrics *observability.Metrics) *ScanHandler {
	return &ScanHandler{machine: machine, capture: captureStats, metrics: metrics}
}

// Session GET /scan/session.
func (h *ScanHandler) Session(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": sessionView(h.machine.Snapshot())})
}

// ConfirmPunch POST /scan/confirm/punch.
func (h *ScanHandler) ConfirmPunch(c *fiber.Ctx) error {
	var req dto.ConfirmPunchRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ProgramID == "" {
		return apperrors.NewValidationError("program_id required", nil)
	}
	out, err := h.machine.ConfirmPunch(c.UserContext(), req.ProgramID)
	if err != nil {
		return mapScanError(err)
	}
	return outcome(c, out)
}

// ConfirmRedemption POST /scan/confirm/redemption. Refused unless the loaded
// card is eligible.
func (h *ScanHandler) ConfirmRedemption(c *fiber.Ctx) error {
	out, err := h.machine.ConfirmRedemption(c.UserContext())
	if err != nil {
		return mapScanError(err)
	}
	return outcome(c, out)
}

// ConfirmBundle POST /scan/confirm/bundle.
func (h *ScanHandler) ConfirmBundle(c *fiber.Ctx) error {
	var req dto.ConfirmBundleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	out, err := h.machine.ConfirmBundleUse(c.UserContext(), req.Quantity)
	if err != nil {
		return mapScanError(err)
	}
	return outcome(c, out)
}

// Reset POST /scan/reset.
func (h *ScanHandler) Reset(c *fiber.Ctx) error {
	if err := h.machine.Reset(); err != nil {
		return mapScanError(err)
	}
	return c.JSON(fiber.Map{"data": sessionView(h.machine.Snapshot())})
}

// RetryCamera POST /scan/camera/retry.
func (h *ScanHandler) RetryCamera(c *fiber.Ctx) error {
	if err := h.machine.RetryCamera(); err != nil {
		if mapped := mapScanError(err); mapped != err {
			return mapped
		}
		return apperrors.NewDomainError("CAMERA_UNAVAILABLE", err.Error(), fiber.StatusServiceUnavailable, nil)
	}
	return c.JSON(fiber.Map{"data": sessionView(h.machine.Snapshot())})
}

// Stats GET /scan/stats.
func (h *ScanHandler) Stats(c *fiber.Ctx) error {
	data := fiber.Map{"metrics": h.metrics.Snapshot()}
	if h.capture != nil {
		state, lastErr := h.capture.State()
		cam := fiber.Map{"state": state.String(), "stats": h.capture.Stats()}
		if lastErr != nil {
			cam["last_error"] = lastErr.Error()
		}
		data["capture"] = cam
	}
	return c.JSON(fiber.Map{"data": data})
}

func outcome(c *fiber.Ctx, out scanner.Outcome) error {
	return c.JSON(fiber.Map{"data": dto.OutcomeResponse{OK: out.OK, Message: out.Message}})
}

// mapScanError converts state machine rejections to domain errors; anything
// else passes through untouched.
func mapScanError(err error) error {
	switch {
	case errors.Is(err, scanner.ErrBusy):
		return apperrors.NewConflict("an action is already in progress", nil)
	case errors.Is(err, scanner.ErrIllegalTransition):
		return apperrors.NewConflict("action not allowed in the current scan state", nil)
	case errors.Is(err, scanner.ErrDecisionPending):
		return apperrors.NewConflict("scan details are still loading", nil)
	case errors.Is(err, scanner.ErrNotRedeemable):
		return apperrors.NewUnprocessable("card is not eligible for redemption", nil)
	case errors.Is(err, scanner.ErrInvalidQuantity):
		return apperrors.NewValidationError("quantity out of range", nil)
	case errors.Is(err, scanner.ErrClosed), errors.Is(err, scanner.ErrNotStarted):
		return apperrors.NewDomainError("SCANNER_UNAVAILABLE", "scanner not running", fiber.StatusServiceUnavailable, nil)
	}
	return err
}

func sessionView(s scanner.Session) dto.SessionResponse {
	view := dto.SessionResponse{
		ID:          s.ID,
		Mode:        string(s.Mode),
		Busy:        s.Busy,
		CameraError: s.CameraError,
		ResetAt:     s.ResetAt,
		Loaded:      s.Decision.Loaded,
	}
	switch p := s.Payload.(type) {
	case domain.CustomerIdentity:
		view.Payload = &dto.PayloadView{Kind: p.Kind(), ID: p.UserID}
	case domain.RedemptionReference:
		view.Payload = &dto.PayloadView{Kind: p.Kind(), ID: p.PunchCardID}
	case domain.BundleReference:
		view.Payload = &dto.PayloadView{Kind: p.Kind(), ID: p.BundleID}
	}

	if d := s.Decision.Customer; d != nil {
		view.Customer = &dto.CustomerChoiceView{
			UserID:         d.UserID,
			Programs:       d.Programs,
			BundleCatalogs: d.BundleCatalogs,
		}
		if view.Customer.Programs == nil {
			view.Customer.Programs = []domain.ProgramSummary{}
		}
		if view.Customer.BundleCatalogs == nil {
			view.Customer.BundleCatalogs = []domain.BundleCatalogSummary{}
		}
	}
	if d := s.Decision.Redemption; d != nil {
		r := &dto.RedemptionView{CardID: d.CardID, NotFound: d.NotFound, CanConfirm: d.CanConfirm()}
		if d.Detail != nil {
			program := d.Detail.Program
			r.CurrentPunches = d.Detail.Card.CurrentPunches
			r.Status = d.Detail.Card.Status
			r.Program = &program
			r.RequiredPunches = program.RequiredPunches
			r.MerchantName = d.Detail.MerchantName
		}
		view.Redemption = r
	}
	if d := s.Decision.Bundle; d != nil {
		view.Bundle = &dto.BundleChoiceView{
			BundleID:    d.BundleID,
			NotFound:    d.NotFound,
			MaxQuantity: d.MaxQuantity(),
			Bundle:      d.Bundle,
		}
	}
	return view
}
