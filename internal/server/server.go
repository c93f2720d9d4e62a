// Package server exposes the router to hosts as JSON-RPC 2.0 over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"github.com/yolodolo42/scwkeyring/internal/errs"
	"github.com/yolodolo42/scwkeyring/internal/router"
)

const (
	DefaultAddress = "127.0.0.1:8545"
	apiKeyHeader   = "X-API-Key"
)

// JSON-RPC codes not carried by an errs.Kind.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
)

// Config configures the HTTP transport.
type Config struct {
	Address string
	// APIKey, when set, must match the X-API-Key header on /rpc.
	APIKey string
}

// Handler is what the transport dispatches to.
type Handler interface {
	Handle(ctx context.Context, req router.Request) (any, error)
}

// Server is the HTTP host transport.
type Server struct {
	Echo    *echo.Echo
	cfg     Config
	handler Handler
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    rpcErrorData `json:"data"`
}

type rpcErrorData struct {
	Kind string `json:"kind"`
}

// New builds the echo instance with /rpc and /health registered.
func New(handler Handler, cfg Config) *Server {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{Echo: e, cfg: cfg, handler: handler}

	e.GET("/health", s.health)
	e.POST("/rpc", s.rpc, s.requireAPIKey)
	return s
}

// Start blocks serving on the configured address.
func (s *Server) Start() error {
	log.Info().Str("address", s.cfg.Address).Msg("keyring server listening")
	if err := s.Echo.Start(s.cfg.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start echo server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Warn().Msg("Shutting down keyring server")
	if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to shutdown echo server: %w", err)
	}
	return nil
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requireAPIKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.cfg.APIKey == "" {
			return next(c)
		}
		got := c.Request().Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.APIKey)) != 1 {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid api key")
		}
		return next(c)
	}
}

func (s *Server) rpc(c echo.Context) error {
	var req rpcRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusOK, failure(nil, codeParseError, "parse error: "+err.Error(), "ParseError"))
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return c.JSON(http.StatusOK, failure(req.ID, codeInvalidRequest, "invalid request", "InvalidRequest"))
	}

	ctx := c.Request().Context()
	result, err := s.handler.Handle(ctx, router.Request{
		Origin: c.Request().Header.Get(echo.HeaderOrigin),
		ID:     req.ID,
		Method: req.Method,
		Params: req.Params,
	})
	if err != nil {
		kind := errs.KindOf(err)
		if kind == errs.KindInternal {
			log.Error().Err(err).Str("method", req.Method).Msg("request failed")
		}
		return c.JSON(http.StatusOK, failure(req.ID, kind.Code(), err.Error(), kind.String()))
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return c.JSON(http.StatusOK, failure(req.ID, errs.KindInternal.Code(), "encode result: "+err.Error(), errs.KindInternal.String()))
	}
	return c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: id(req.ID), Result: raw})
}

func failure(reqID json.RawMessage, code int, message, kind string) rpcResponse {
	return rpcResponse{
		JSONRPC: "2.0",
		ID:      id(reqID),
		Error:   &rpcError{Code: code, Message: message, Data: rpcErrorData{Kind: kind}},
	}
}

func id(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
