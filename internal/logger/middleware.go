// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package logger

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	forwardedHostHeaderKey = "x-forwarded-host"
	forwardedForHeaderKey  = "x-forwarded-for"
	requestIDHeaderName    = "x-request-id"
	userAgentHeaderName    = "user-agent"

	IncomingRequestMessage  = "incoming request"
	RequestCompletedMessage = "request completed"
)

// httpFields is the ECS-like http section of a request log line.
type httpFields struct {
	Request  *requestFields  `json:"request,omitempty"`
	Response *responseFields `json:"response,omitempty"`
}

type userAgent struct {
	Original string `json:"original,omitempty"`
}

type requestFields struct {
	Method    string    `json:"method,omitempty"`
	UserAgent userAgent `json:"userAgent"`
}

type responseBody struct {
	Bytes int `json:"bytes,omitempty"`
}

type responseFields struct {
	StatusCode int          `json:"statusCode,omitempty"`
	Body       responseBody `json:"body"`
}

type hostFields struct {
	Hostname      string `json:"hostname,omitempty"`
	ForwardedHost string `json:"forwardedHost,omitempty"`
	IP            string `json:"ip,omitempty"`
}

type urlFields struct {
	Path string `json:"path,omitempty"`
}

// requestInfo captures what is logged about a single fiber request.
type requestInfo struct {
	c          *fiber.Ctx
	handlerErr error
}

func (r *requestInfo) header(key string) string {
	return r.c.Get(key, "")
}

func (r *requestInfo) uri() string {
	return string(r.c.Request().URI().RequestURI())
}

func (r *requestInfo) requestFields() *requestFields {
	return &requestFields{
		Method:    r.c.Method(),
		UserAgent: userAgent{Original: r.header(userAgentHeaderName)},
	}
}

func (r *requestInfo) hostFields() hostFields {
	return hostFields{
		ForwardedHost: r.header(forwardedHostHeaderKey),
		Hostname:      strings.Split(string(r.c.Request().Host()), ":")[0],
		IP:            r.header(forwardedForHeaderKey),
	}
}

func (r *requestInfo) fiberError() *fiber.Error {
	if fiberErr, ok := r.handlerErr.(*fiber.Error); ok {
		return fiberErr
	}
	return nil
}

func (r *requestInfo) statusCode() int {
	if fiberErr := r.fiberError(); fiberErr != nil {
		return fiberErr.Code
	}
	return r.c.Response().StatusCode()
}

func (r *requestInfo) bodySize() int {
	if fiberErr := r.fiberError(); fiberErr != nil {
		return len(fiberErr.Error())
	}

	if content := r.c.GetRespHeader("Content-Length"); content != "" {
		if length, err := strconv.Atoi(content); err == nil {
			return length
		}
	}
	return len(r.c.Response().Body())
}

// requestID returns the caller supplied request id or a freshly generated one.
func (r *requestInfo) requestID() string {
	if requestID := r.header(requestIDHeaderName); requestID != "" {
		return requestID
	}
	return uuid.NewString()
}

// RequestMiddlewareLogger is a fiber middleware that logs every request not matching one of excludedPrefix.
// The request scoped logger is stored in the fiber user context, and the request id is echoed back
// in the x-request-id response header.
func RequestMiddlewareLogger(logger Logger, excludedPrefix []string) fiber.Handler {
	return func(fiberCtx *fiber.Ctx) error {
		info := &requestInfo{c: fiberCtx}

		uri := info.uri()
		for _, prefix := range excludedPrefix {
			if strings.HasPrefix(uri, prefix) {
				return fiberCtx.Next()
			}
		}

		start := time.Now()
		requestID := info.requestID()
		fiberCtx.Set(requestIDHeaderName, requestID)

		requestLogger := logger.WithName("request").With("reqId", requestID)
		fiberCtx.SetUserContext(WithContext(fiberCtx.UserContext(), requestLogger))

		requestLogger.Trace(IncomingRequestMessage,
			"http", httpFields{Request: info.requestFields()},
			"url", urlFields{Path: uri},
			"host", info.hostFields(),
		)

		err := fiberCtx.Next()
		info.handlerErr = err

		requestLogger.Info(RequestCompletedMessage,
			"http", httpFields{
				Request: info.requestFields(),
				Response: &responseFields{
					StatusCode: info.statusCode(),
					Body:       responseBody{Bytes: info.bodySize()},
				},
			},
			"url", urlFields{Path: uri},
			"host", info.hostFields(),
			"responseTime", float64(time.Since(start).Milliseconds()),
		)

		return err
	}
}
