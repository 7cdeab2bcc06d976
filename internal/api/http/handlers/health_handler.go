package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

const probeTimeout = 2 * time.Second

// Probe checks one backing dependency.
type Probe func(ctx context.Context) error

// HealthHandler answers liveness and readiness for the scanner daemon.
type HealthHandler struct {
	serviceName string
	version     string
	camera      CaptureStats
	probes      map[string]Probe
}

// NewHealthHandler returns a handler that reports the camera and the named probes.
func NewHealthHandler(serviceName, version string, camera CaptureStats, probes map[string]Probe) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, camera: camera, probes: probes}
}

// Live GET /health/live.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready GET /health/ready. A failed camera is reported but does not make the
// daemon unready; the operator can retry it from the scan routes.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
	defer cancel()

	deps := fiber.Map{}
	ready := true
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			deps[name] = err.Error()
			ready = false
			continue
		}
		deps[name] = "ok"
	}
	if h.camera != nil {
		state, lastErr := h.camera.State()
		if lastErr != nil {
			deps["camera"] = state.String() + ": " + lastErr.Error()
		} else {
			deps["camera"] = state.String()
		}
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": deps,
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": deps})
}
