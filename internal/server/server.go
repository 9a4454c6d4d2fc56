// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/mia-platform/logrelay/internal/dispatcher"
	"github.com/mia-platform/logrelay/internal/info"
	"github.com/mia-platform/logrelay/internal/logentry"
	"github.com/mia-platform/logrelay/internal/logger"
)

const (
	loggerName = "logrelay:server"

	logPath = "/log"
)

// Dispatcher is the part of dispatcher.Dispatcher used by the server.
type Dispatcher interface {
	Log(ctx context.Context, stack logentry.Stack, level logentry.Level, packageTag, message string)
	Ready() bool
	Stats(ctx context.Context) dispatcher.Stats
	RetryFailed(ctx context.Context) (dispatcher.RetryResult, error)
}

type Server interface {
	Start() error
	Stop() error
	StartAsync(ctx context.Context)
}

type impServer struct {
	config

	app *fiber.App
}

var (
	_ Server = &impServer{}

	ErrServerListen   = errors.New("server listen error")
	ErrServerShutdown = errors.New("server shutdown error")
)

// NewServer reads its configuration from the environment and returns a server
// forwarding the received logs to d.
func NewServer(ctx context.Context, d Dispatcher) (Server, error) {
	cfg, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	return &impServer{
		app:    newApp(ctx, cfg, d),
		config: *cfg,
	}, nil
}

func newApp(ctx context.Context, cfg *config, d Dispatcher) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               info.AppName,
		DisableStartupMessage: cfg.DisableStartupMessage,
		ErrorHandler:          errorHandler,
	})

	log := logger.FromContext(ctx)
	app.Use(func(c *fiber.Ctx) error {
		c.SetUserContext(logger.WithContext(c.UserContext(), log))
		return c.Next()
	})
	app.Use(logger.RequestMiddlewareLogger(log, []string{"/-/"}))

	statusRoutes(app, info.AppName, info.Version, d)
	app.Post(logPath, logHandler(d))

	return app
}

func (s *impServer) Start() error {
	if err := s.app.Listen(fmt.Sprintf("%s:%d", s.HTTPHost, s.HTTPPort)); err != nil {
		return fmt.Errorf("%w: %w", ErrServerListen, err)
	}
	return nil
}

func (s *impServer) Stop() error {
	if err := s.app.Shutdown(); err != nil {
		return fmt.Errorf("%w: %w", ErrServerShutdown, err)
	}
	return nil
}

func (s *impServer) StartAsync(ctx context.Context) {
	log := logger.Named(ctx, loggerName)
	go func() {
		if err := s.Start(); err != nil {
			log.Error(err.Error())
		}
	}()
}

// errorHandler answers every error with the JSON error shape of the server.
func errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	message := "error processing request"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"statusCode": code,
		"error":      http.StatusText(code),
		"message":    message,
	})
}
