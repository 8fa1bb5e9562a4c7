package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"openai-llm-bridge/internal/config"
	"openai-llm-bridge/internal/llm"
	"openai-llm-bridge/internal/router"
	"openai-llm-bridge/internal/telemetry"
	"openai-llm-bridge/internal/translator"
)

const (
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	idleTimeout         = 120 * time.Second

	echoBody     = "echo test"
	notFoundBody = "not found"
)

// Status labels for failures raised at the HTTP boundary.
const (
	statusParseError    = "ParseError"
	statusBodyReadError = "BodyReadError"
	statusInternalError = "InternalError"
)

type Server struct {
	cfg     config.Config
	router  *router.Router
	app     *echo.Echo
	address string
}

// New constructs an HTTP server wired with routing and middleware. metrics may be nil.
func New(cfg config.Config, rt *router.Router, metrics *telemetry.Metrics) (*Server, error) {
	if rt == nil {
		return nil, errors.New("router must not be nil")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = bridgeErrorHandler

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			slog.Error("recovered from panic", "uri", c.Request().RequestURI, "err", err, "stack", string(stack))
			return err
		},
	}))
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		HandleError:  true,
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogRoutePath: true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			metrics.ObserveHTTP(v.RoutePath, v.Status)
			slog.Info("request",
				"request_id", v.RequestID,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            31536000,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'; form-action 'none'",
	}))

	srv := &Server{
		cfg:     cfg,
		router:  rt,
		app:     e,
		address: fmt.Sprintf(":%d", cfg.Server.Port),
	}

	srv.registerRoutes()

	return srv, nil
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	printStartupBanner(s.cfg.Server.Port)
	slog.Info("starting server", "addr", s.address)

	// No write timeout: a chat call is bounded by rpc.call_timeout instead.
	httpServer := &http.Server{
		Addr:        s.address,
		Handler:     s.app,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := s.app.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		slog.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

// Paths match exactly and regardless of method; everything else is a 400.
func (s *Server) registerRoutes() {
	s.app.Any("/echo", s.handleEcho)
	s.app.Any("/v1/models", s.handleListModels)
	s.app.Any("/v1/models/:model", s.handleShowModel)
	s.app.Any("/v1/chat/completions", s.handleChatCompletions)
	s.app.RouteNotFound("/*", handleNotFound)
}

func (s *Server) handleEcho(c echo.Context) error {
	return c.String(http.StatusOK, echoBody)
}

func handleNotFound(c echo.Context) error {
	return c.String(http.StatusBadRequest, notFoundBody)
}

func (s *Server) handleListModels(c echo.Context) error {
	resp, err := s.router.List(c.Request().Context())
	if err != nil {
		// List failures forward the backend text as is, unlike chat and show.
		httpErr := toHTTPError(err)
		httpErr.Plain = true
		return httpErr
	}
	return c.JSON(http.StatusOK, translator.FromInternalList(resp))
}

func (s *Server) handleShowModel(c echo.Context) error {
	model, err := modelParam(c)
	if err != nil || model == "" || strings.Contains(model, "/") {
		return handleNotFound(c)
	}

	resp, err := s.router.Show(c.Request().Context(), translator.ShowRequest(model))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, translator.FromInternalShow(model, resp))
}

// modelParam returns the decoded model name. echo matches on the raw path when
// the request carries escapes, so the parameter is still encoded then.
func modelParam(c echo.Context) (string, error) {
	model := c.Param("model")
	if c.Request().URL.RawPath == "" {
		return model, nil
	}
	return url.PathUnescape(model)
}

func (s *Server) handleChatCompletions(c echo.Context) error {
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, s.cfg.Server.MaxBodyBytes)
	defer req.Body.Close()

	body, err := readBody(req.Body)
	if err != nil {
		return toHTTPError(err)
	}

	chatReq, err := translator.ParseChatRequest(body)
	if err != nil {
		return toHTTPError(err)
	}

	resp, err := s.router.Chat(req.Context(), chatReq.ToInternal())
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, translator.FromInternalChat(uuid.NewString(), resp))
}

// requestError is the single failure shape handlers hand to the error handler.
type requestError struct {
	Status  int
	Message string
	Label   string
	// Plain writes Message as text/plain instead of the JSON error body.
	Plain bool
}

func (e requestError) Error() string {
	return e.Message
}

func writeError(c echo.Context, reqErr requestError) error {
	if reqErr.Plain {
		return c.String(reqErr.Status, reqErr.Message)
	}
	return c.JSON(reqErr.Status, translator.ErrorResponse{
		Error:  reqErr.Message,
		Status: reqErr.Label,
	})
}

func bridgeErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		_ = writeError(c, reqErr)
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		_ = writeError(c, requestError{
			Status:  he.Code,
			Message: fmt.Sprint(he.Message),
			Label:   http.StatusText(he.Code),
		})
		return
	}

	_ = writeError(c, requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Label:   statusInternalError,
	})
}

func toHTTPError(err error) requestError {
	var reqErr requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	var callErr *llm.Error
	if errors.As(err, &callErr) {
		return requestError{
			Status:  callErr.HTTPStatus(),
			Message: callErr.Message,
			Label:   callErr.Status,
		}
	}

	var parseErr *translator.ParseError
	if errors.As(err, &parseErr) {
		return requestError{
			Status:  http.StatusBadRequest,
			Message: parseErr.Error(),
			Label:   statusParseError,
		}
	}

	var readErr *bodyReadError
	if errors.As(err, &readErr) {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		return requestError{
			Status:  status,
			Message: readErr.Error(),
			Label:   statusBodyReadError,
		}
	}

	slog.Error("unexpected handler error", "err", err)
	return requestError{
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Label:   statusInternalError,
	}
}

func printStartupBanner(port int) {
	host := "127.0.0.1"
	fmt.Println()
	fmt.Println("openai-llm-bridge ready")
	fmt.Printf("Listening on http://%s:%d\n", host, port)
	fmt.Println("Endpoints:")
	fmt.Println("  ANY  /echo")
	fmt.Println("  ANY  /v1/models")
	fmt.Println("  ANY  /v1/models/{model}")
	fmt.Println("  ANY  /v1/chat/completions")
	fmt.Printf("OpenAI-style example:\n  curl http://%s:%d/v1/chat/completions -H 'Content-Type: application/json' -d '{\"model\":\"llama3\",\"messages\":[{\"role\":\"user\",\"content\":\"hello\"}]}'\n\n", host, port)
}
