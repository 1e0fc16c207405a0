package tracking

import (
	"errors"

	"backend-runtracker/internal/auth"
	"backend-runtracker/internal/location"
	"backend-runtracker/internal/workout"

	"github.com/gofiber/fiber/v2"
)

type permissionRequest struct {
	Granted bool `json:"granted"`
}

type ingestRequest struct {
	Samples []location.Sample `json:"samples"`
	Batched bool              `json:"batched"`
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Use(authMiddleware)

	r.Post("/start", func(c *fiber.Ctx) error {
		var req StartRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		snap, err := svc.Start(c.Context(), auth.RunnerID(c), req)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Post("/pause", func(c *fiber.Ctx) error {
		snap, err := svc.Pause(auth.RunnerID(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/resume", func(c *fiber.Ctx) error {
		snap, err := svc.Resume(c.Context(), auth.RunnerID(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/stop", func(c *fiber.Ctx) error {
		summary, err := svc.Stop(c.Context(), auth.RunnerID(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(summary)
	})

	r.Post("/reset", func(c *fiber.Ctx) error {
		snap, err := svc.Reset(auth.RunnerID(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/skip", func(c *fiber.Ctx) error {
		snap, err := svc.Skip(auth.RunnerID(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/background", func(c *fiber.Ctx) error {
		return setBackground(c, svc, true)
	})

	r.Post("/foreground", func(c *fiber.Ctx) error {
		return setBackground(c, svc, false)
	})

	r.Post("/accuracy", func(c *fiber.Ctx) error {
		snap, err := svc.WatchAccuracy(c.Context(), auth.RunnerID(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(snap)
	})

	r.Get("/state", func(c *fiber.Ctx) error {
		snap, err := svc.State(auth.RunnerID(c))
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(snap)
	})

	r.Post("/permission", func(c *fiber.Ctx) error {
		var req permissionRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := svc.Grant(c.Context(), auth.RunnerID(c), req.Granted); err != nil {
			return toHTTPError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/samples", func(c *fiber.Ctx) error {
		var req ingestRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if len(req.Samples) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "samples required")
		}
		n, err := svc.Ingest(c.Context(), auth.RunnerID(c), req.Samples, req.Batched)
		if err != nil {
			return toHTTPError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": n})
	})
}

func setBackground(c *fiber.Ctx, svc *Service, background bool) error {
	active, err := svc.SetBackground(c.Context(), auth.RunnerID(c), background)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(fiber.Map{"background": background == active})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrRunnerRequired):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotRecording), errors.Is(err, ErrNotReset):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, workout.ErrPlanNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrPlansUnavailable), errors.Is(err, ErrSessionClosed):
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
