package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/loyalty-scanner/internal/api/http/handlers"
	"github.com/spec-kit/loyalty-scanner/internal/auth"
	"github.com/spec-kit/loyalty-scanner/internal/capture"
	"github.com/spec-kit/loyalty-scanner/internal/config"
	"github.com/spec-kit/loyalty-scanner/internal/domain"
	"github.com/spec-kit/loyalty-scanner/internal/observability"
	"github.com/spec-kit/loyalty-scanner/internal/scanner"
	"github.com/spec-kit/loyalty-scanner/internal/service"
)

const testMerchant = "m-1"

type stubMachine struct {
	session   scanner.Session
	err       error
	out       scanner.Outcome
	redeemed  int
	quantity  int
	programID string
}

func (m *stubMachine) Snapshot() scanner.Session { return m.session }

func (m *stubMachine) ConfirmPunch(ctx context.Context, programID string) (scanner.Outcome, error) {
	m.programID = programID
	return m.out, m.err
}

func (m *stubMachine) ConfirmRedemption(ctx context.Context) (scanner.Outcome, error) {
	m.redeemed++
	return m.out, m.err
}

func (m *stubMachine) ConfirmBundleUse(ctx context.Context, quantity int) (scanner.Outcome, error) {
	m.quantity = quantity
	return m.out, m.err
}

func (m *stubMachine) Reset() error       { return m.err }
func (m *stubMachine) RetryCamera() error { return m.err }

type stubCapture struct{}

func (stubCapture) State() (capture.State, error) { return capture.StateReady, nil }
func (stubCapture) Stats() capture.Stats          { return capture.Stats{Activations: 1, FramesSampled: 10} }

func newTestApp(t *testing.T, machine *stubMachine) (*fiber.App, string) {
	t.Helper()
	hash, err := auth.HashPIN("2468", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPIN() error = %v", err)
	}
	cfg := config.Config{
		Auth:    config.AuthConfig{OperatorPINHash: hash},
		Scanner: config.ScannerConfig{MerchantID: testMerchant},
	}
	tokens := auth.NewTokenManager("secret", 5)
	metrics := observability.NewMetrics()

	probes := map[string]handlers.Probe{
		"postgres": func(context.Context) error { return errors.New("postgres pool not configured") },
	}

	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("loyalty-scanner", "test", stubCapture{}, probes),
		Operators:      handlers.NewOperatorsHandler(service.NewAuthService(cfg, tokens)),
		Scan:           handlers.NewScanHandler(machine, stubCapture{}, metrics),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		MerchantID:     testMerchant,
	})

	token, _, err := tokens.GenerateToken("op", domain.SubjectTypeOperator, testMerchant)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return app, token
}

func do(t *testing.T, app *fiber.App, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestOperatorLogin(t *testing.T) {
	app, _ := newTestApp(t, &stubMachine{})

	status, body := do(t, app, http.MethodPost, "/auth/operators/login", "", `{"pin":"2468"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d body = %v", status, body)
	}
	data := body["data"].(map[string]any)
	token, _ := data["token"].(string)
	if token == "" || data["merchant_id"] != testMerchant {
		t.Fatalf("unexpected login response %v", body)
	}

	status, _ = do(t, app, http.MethodGet, "/scan/session", token, "")
	if status != http.StatusOK {
		t.Fatalf("session with issued token status = %d", status)
	}

	status, body = do(t, app, http.MethodPost, "/auth/operators/login", "", `{"pin":"0000"}`)
	if status != http.StatusUnauthorized || errorCode(body) != "UNAUTHORIZED" {
		t.Fatalf("wrong pin: status = %d body = %v", status, body)
	}
}

func TestScanRoutesRequireToken(t *testing.T) {
	app, _ := newTestApp(t, &stubMachine{})

	status, body := do(t, app, http.MethodGet, "/scan/session", "", "")
	if status != http.StatusUnauthorized || errorCode(body) != "UNAUTHORIZED" {
		t.Fatalf("status = %d body = %v", status, body)
	}
}

func TestSessionView(t *testing.T) {
	machine := &stubMachine{session: scanner.Session{
		ID:      "s-1",
		Mode:    scanner.ModeAwaitingBundleChoice,
		Payload: domain.BundleReference{BundleID: "b-1"},
		Decision: scanner.Decision{Loaded: true, Bundle: &scanner.BundleDecision{
			BundleID: "b-1",
			Bundle:   &domain.BundleDetail{ID: "b-1", ItemName: "Coffee", RemainingQuantity: 3},
		}},
	}}
	app, token := newTestApp(t, machine)

	status, body := do(t, app, http.MethodGet, "/scan/session", token, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	data := body["data"].(map[string]any)
	if data["mode"] != string(scanner.ModeAwaitingBundleChoice) {
		t.Fatalf("mode = %v", data["mode"])
	}
	payload := data["payload"].(map[string]any)
	if payload["kind"] != "bundle_id" || payload["id"] != "b-1" {
		t.Fatalf("payload = %v", payload)
	}
	bundle := data["bundle"].(map[string]any)
	if bundle["max_quantity"] != float64(3) {
		t.Fatalf("bundle = %v", bundle)
	}
}

func TestConfirmRedemptionRejections(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "eligible", wantStatus: http.StatusOK},
		{name: "not eligible", err: scanner.ErrNotRedeemable, wantStatus: http.StatusUnprocessableEntity, wantCode: "UNPROCESSABLE"},
		{name: "still loading", err: scanner.ErrDecisionPending, wantStatus: http.StatusConflict, wantCode: "CONFLICT"},
		{name: "wrong mode", err: scanner.ErrIllegalTransition, wantStatus: http.StatusConflict, wantCode: "CONFLICT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := &stubMachine{
				err: tt.err,
				out: scanner.Outcome{OK: true, Message: "Reward redeemed at Corner Cafe."},
			}
			app, token := newTestApp(t, machine)

			status, body := do(t, app, http.MethodPost, "/scan/confirm/redemption", token, "")
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d body = %v", status, tt.wantStatus, body)
			}
			if tt.wantCode != "" && errorCode(body) != tt.wantCode {
				t.Fatalf("code = %q, want %q", errorCode(body), tt.wantCode)
			}
			if machine.redeemed != 1 {
				t.Fatalf("ConfirmRedemption called %d times", machine.redeemed)
			}
		})
	}
}

func TestConfirmErrors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "punch ok", path: "/scan/confirm/punch", body: `{"program_id":"p-1"}`, wantStatus: http.StatusOK},
		{name: "punch missing program", path: "/scan/confirm/punch", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "punch busy", path: "/scan/confirm/punch", body: `{"program_id":"p-1"}`, err: scanner.ErrBusy, wantStatus: http.StatusConflict},
		{name: "bundle quantity", path: "/scan/confirm/bundle", body: `{"quantity":9}`, err: scanner.ErrInvalidQuantity, wantStatus: http.StatusBadRequest},
		{name: "bundle illegal", path: "/scan/confirm/bundle", body: `{"quantity":1}`, err: scanner.ErrIllegalTransition, wantStatus: http.StatusConflict},
		{name: "reset busy", path: "/scan/reset", err: scanner.ErrBusy, wantStatus: http.StatusConflict},
		{name: "reset ok", path: "/scan/reset", wantStatus: http.StatusOK},
		{name: "camera denied", path: "/scan/camera/retry", err: context.DeadlineExceeded, wantStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			machine := &stubMachine{err: tt.err, out: scanner.Outcome{OK: true, Message: "done"}}
			app, token := newTestApp(t, machine)

			status, body := do(t, app, http.MethodPost, tt.path, token, tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d body = %v", status, tt.wantStatus, body)
			}
		})
	}
}

func TestFailedOutcomeIsNotAnHTTPError(t *testing.T) {
	machine := &stubMachine{out: scanner.Outcome{OK: false, Message: "Failed to use bundle"}}
	app, token := newTestApp(t, machine)

	status, body := do(t, app, http.MethodPost, "/scan/confirm/bundle", token, `{"quantity":2}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	data := body["data"].(map[string]any)
	if data["ok"] != false || data["message"] != "Failed to use bundle" || machine.quantity != 2 {
		t.Fatalf("unexpected response %v", body)
	}
}

func TestHealthAndStats(t *testing.T) {
	app, token := newTestApp(t, &stubMachine{})

	if status, _ := do(t, app, http.MethodGet, "/health/live", "", ""); status != http.StatusOK {
		t.Fatalf("live status = %d", status)
	}
	if status, _ := do(t, app, http.MethodGet, "/health/ready", "", ""); status != http.StatusServiceUnavailable {
		t.Fatalf("ready status = %d", status)
	}
	status, body := do(t, app, http.MethodGet, "/scan/stats", token, "")
	if status != http.StatusOK {
		t.Fatalf("stats status = %d", status)
	}
	cam := body["data"].(map[string]any)["capture"].(map[string]any)
	if cam["state"] != "ready" {
		t.Fatalf("capture = %v", cam)
	}
}

func TestRequestIDHeader(t *testing.T) {
	app, _ := newTestApp(t, &stubMachine{})

	tests := []struct {
		name    string
		inbound string
	}{
		{name: "minted"},
		{name: "propagated", inbound: "req-42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/scan/session", nil)
			if tt.inbound != "" {
				req.Header.Set(HeaderRequestID, tt.inbound)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			got := resp.Header.Get(HeaderRequestID)
			if got == "" || (tt.inbound != "" && got != tt.inbound) {
				t.Fatalf("request id = %q", got)
			}
		})
	}
}
