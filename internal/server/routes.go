// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/logrelay/internal/dispatcher"
	"github.com/mia-platform/logrelay/internal/logentry"
	"github.com/mia-platform/logrelay/internal/logger"
)

type statusResponse struct {
	Status  string `json:"status"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type logRequest struct {
	Stack   string `json:"stack"`
	Level   string `json:"level"`
	Package string `json:"package"`
	Message string `json:"message"`
}

// statusRoutes registers the /-/ routes used by probes and operators.
func statusRoutes(app *fiber.App, serviceName, version string, d Dispatcher) {
	group := app.Group("/-")

	group.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(statusResponse{Status: "OK", Name: serviceName, Version: version})
	})

	group.Get("/ready", func(c *fiber.Ctx) error {
		if !d.Ready() {
			return c.Status(http.StatusServiceUnavailable).JSON(statusResponse{Status: "KO", Name: serviceName, Version: version})
		}
		return c.JSON(statusResponse{Status: "OK", Name: serviceName, Version: version})
	})

	group.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(d.Stats(c.UserContext()))
	})

	group.Post("/retry", func(c *fiber.Ctx) error {
		result, err := d.RetryFailed(c.UserContext())
		switch {
		case errors.Is(err, dispatcher.ErrNotReady):
			return fiber.NewError(http.StatusServiceUnavailable, err.Error())
		case err != nil:
			logger.Named(c.UserContext(), loggerName).Error("retry of failed logs did not complete", "error", err)
			return err
		}
		return c.JSON(result)
	})
}

// logHandler validates the posted entry and hands it to the dispatcher.
// Delivery problems are never reported to the caller.
func logHandler(d Dispatcher) fiber.Handler {
	return func(c *fiber.Ctx) error {
		request := new(logRequest)
		if err := c.BodyParser(request); err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid request body")
		}

		stack, err := logentry.ParseStack(request.Stack)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		level, err := logentry.ParseLevel(request.Level)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		d.Log(c.UserContext(), stack, level, request.Package, request.Message)
		return c.SendStatus(http.StatusAccepted)
	}
}
