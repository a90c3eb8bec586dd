package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/shutterhaus/drivesync/internal/adapter"
	"github.com/shutterhaus/drivesync/internal/auth"
	"github.com/shutterhaus/drivesync/internal/folders"
	"github.com/shutterhaus/drivesync/internal/handler"
	"github.com/shutterhaus/drivesync/internal/logging"
)

const allowHeaders = "authorization, x-client-info, apikey, content-type"

// Options are the already-built collaborators of an App.
type Options struct {
	Sessions *handler.SessionVerifier
	Tokens   handler.TokenManager
	Provider adapter.DriveProvider
	Resolver *folders.Resolver

	MaxUploadBytes int64
	AllowedOrigin  string
	// OriginVerifySecret, when set, must be echoed in X-Origin-Verify by the CDN.
	OriginVerifySecret string

	RateLimitPerMinute int
	RateLimitBurst     int

	Logger *slog.Logger
}

// App holds the dependencies for the Lambda function.
type App struct {
	sessions      *handler.SessionVerifier
	driveHandler  *handler.DriveHandler
	limiter       *userRateLimiter
	allowedOrigin string
	originSecret  string
	logger        *slog.Logger
	closers       []func()
}

// New assembles an App from its collaborators.
func New(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origin := opts.AllowedOrigin
	if origin == "" {
		origin = "*"
	}
	return &App{
		sessions:      opts.Sessions,
		driveHandler:  handler.NewDriveHandler(opts.Tokens, opts.Provider, opts.Resolver, opts.MaxUploadBytes),
		limiter:       newUserRateLimiter(opts.RateLimitPerMinute, opts.RateLimitBurst),
		allowedOrigin: origin,
		originSecret:  opts.OriginVerifySecret,
		logger:        logger,
	}
}

// Close releases connections opened by NewApp.
func (app *App) Close() {
	for _, c := range app.closers {
		c()
	}
}

// HandleRequest authenticates the caller and dispatches on the "action" query parameter.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (resp events.APIGatewayProxyResponse, err error) {
	start := time.Now()

	requestID := req.RequestContext.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx = logging.WithRequestID(logging.WithLogger(ctx, app.logger), requestID)
	logger := logging.FromContext(ctx)

	rawAction := req.QueryStringParameters["action"]

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling request", slog.Any("panic", r))
			resp, err = app.corsResponse(handler.Error(http.StatusInternalServerError, fmt.Sprint(r))), nil
		}
		logger.Info("request handled",
			slog.String("method", req.HTTPMethod),
			slog.String("action", rawAction),
			slog.Int("status", resp.StatusCode),
			slog.Duration("duration", time.Since(start)),
		)
	}()

	// CORS Preflight
	if req.HTTPMethod == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	if app.originSecret != "" {
		got := handler.Header(req, "X-Origin-Verify")
		if subtle.ConstantTimeCompare([]byte(got), []byte(app.originSecret)) != 1 {
			logger.Warn("missing or invalid X-Origin-Verify header")
			return app.corsResponse(handler.Error(http.StatusForbidden, "Forbidden")), nil
		}
	}

	userID, err := app.sessions.GetUserID(req)
	if err != nil {
		logger.Info("rejecting unauthenticated request", slog.Any("error", err))
		msg := "Invalid token"
		if errors.Is(err, handler.ErrMissingToken) {
			msg = "Unauthorized"
		}
		return app.corsResponse(handler.Error(http.StatusUnauthorized, msg)), nil
	}

	ctx = logging.WithLogger(ctx, logger.With(slog.String("user_id", userID)))
	logger = logging.FromContext(ctx)

	if !app.limiter.Allow(userID) {
		return app.corsResponse(handler.Error(http.StatusTooManyRequests, "Too many requests")), nil
	}

	action, ok := handler.ParseAction(rawAction)
	if !ok {
		return app.corsResponse(handler.Error(http.StatusBadRequest, "Unknown action")), nil
	}

	resp, err = app.driveHandler.Handle(ctx, action, userID, req)
	if err != nil {
		return app.corsResponse(app.errorResponse(ctx, err)), nil
	}
	return app.corsResponse(resp), nil
}

// errorResponse maps an error returned by an action onto a response.
// Drive failures return only their generic message; the cause is logged.
func (app *App) errorResponse(ctx context.Context, err error) events.APIGatewayProxyResponse {
	logger := logging.FromContext(ctx)

	if errors.Is(err, auth.ErrNotConnected) {
		return handler.NeedsAuth()
	}

	var opErr *adapter.OperationError
	if errors.As(err, &opErr) {
		logger.Error("drive operation failed", slog.String("op", opErr.Op), slog.String("detail", opErr.Detail()), slog.Any("error", err))
		return handler.Error(http.StatusInternalServerError, opErr.Message)
	}

	logger.Error("request failed", slog.Any("error", err))
	return handler.Error(http.StatusInternalServerError, err.Error())
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.allowedOrigin
	resp.Headers["Access-Control-Allow-Headers"] = allowHeaders
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	return resp
}
