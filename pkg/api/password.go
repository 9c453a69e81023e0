/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/fordlabs/retroquest-notifier/pkg/apiresponses"
	"github.com/fordlabs/retroquest-notifier/pkg/audit"
	"github.com/fordlabs/retroquest-notifier/pkg/mail"
	"github.com/fordlabs/retroquest-notifier/pkg/metrics"
	"github.com/fordlabs/retroquest-notifier/pkg/password"
	"github.com/fordlabs/retroquest-notifier/pkg/ratelimit"
	"github.com/fordlabs/retroquest-notifier/pkg/system"
)

// TokenIssuer issues and checks reset tokens.
type TokenIssuer interface {
	Issue(teamName, email string) (password.PasswordResetToken, error)
	Validate(ctx context.Context, token string) (password.Claims, error)
	Consume(ctx context.Context, token string) (password.Claims, error)
}

// ResetNotifier delivers the reset message. Delivery failures are handled
// (logged and swallowed) by the implementation.
type ResetNotifier interface {
	SendPasswordReset(ctx context.Context, rc mail.PasswordResetContext)
}

// ResetRequest is the body of POST /api/password/request-reset.
type ResetRequest struct {
	TeamName string `json:"teamName"`
	Email    string `json:"email"`
}

// ConsumeRequest is the body of POST /api/password/reset/consume.
type ConsumeRequest struct {
	Token string `json:"token"`
}

// ValidateResponse is returned for a usable token, and for the token a
// consume call just spent.
type ValidateResponse struct {
	Valid     bool      `json:"valid"`
	TeamName  string    `json:"teamName"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PasswordController serves the reset flow under /api/password.
type PasswordController struct {
	log      *zap.SugaredLogger
	issuer   TokenIssuer
	notifier ResetNotifier
	auditor  audit.Emitter

	ipLimiter        *ratelimit.Limiter
	recipientLimiter *ratelimit.Limiter
}

// NewPasswordController creates the controller. requestsPerMinute limits
// reset requests both per client IP and per recipient address.
func NewPasswordController(log *zap.SugaredLogger, issuer TokenIssuer, notifier ResetNotifier,
	auditor audit.Emitter, requestsPerMinute float64,
) *PasswordController {
	return &PasswordController{
		log:              log.Named("password"),
		issuer:           issuer,
		notifier:         notifier,
		auditor:          auditor,
		ipLimiter:        ratelimit.New(ratelimit.PerMinute(requestsPerMinute)),
		recipientLimiter: ratelimit.New(ratelimit.PerMinute(requestsPerMinute)),
	}
}

func (pc *PasswordController) BasePath() string { return "password" }

func (pc *PasswordController) Handlers() []gin.HandlerFunc { return nil }

func (pc *PasswordController) Register(rg *gin.RouterGroup) error {
	rg.POST("/request-reset", pc.ipLimiter.Middleware("password-request-reset"), pc.handleRequestReset)
	rg.GET("/reset/validate", pc.handleValidate)
	rg.POST("/reset/consume", pc.handleConsume)
	return nil
}

// Stop releases the rate limiters.
func (pc *PasswordController) Stop() {
	pc.ipLimiter.Stop()
	pc.recipientLimiter.Stop()
}

// handleRequestReset answers 200 {} for every well-formed request so callers
// cannot tell whether a message went out.
func (pc *PasswordController) handleRequestReset(c *gin.Context) {
	reqLog := system.GetReqLogger(c, pc.log)

	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid request body", err.Error())
		return
	}
	req.TeamName = strings.TrimSpace(req.TeamName)
	req.Email = strings.TrimSpace(req.Email)
	if req.TeamName == "" || req.Email == "" {
		apiresponses.RespondBadRequest(c, "teamName and email are required")
		return
	}

	if !pc.recipientLimiter.Allow(strings.ToLower(req.Email)) {
		metrics.PasswordResetRequests.WithLabelValues("throttled").Inc()
		reqLog.Warnw("Password reset throttled for recipient", "team", req.TeamName)
		apiresponses.RespondOK(c, gin.H{})
		return
	}

	token, err := pc.issuer.Issue(req.TeamName, req.Email)
	if err != nil {
		metrics.PasswordResetRequests.WithLabelValues("error").Inc()
		apiresponses.RespondInternalError(c, "issue reset token", err, reqLog)
		return
	}

	pc.notifier.SendPasswordReset(c.Request.Context(), mail.PasswordResetContext{
		TeamName:   token.TeamName,
		Email:      token.Email,
		ResetToken: token.ResetToken,
	})
	metrics.PasswordResetRequests.WithLabelValues("dispatched").Inc()
	reqLog.Infow("Password reset requested", "team", req.TeamName)

	pc.emit(c, audit.EventPasswordResetRequested, req.Email, req.TeamName,
		map[string]interface{}{"expiresAt": token.ExpiresAt.UTC().Format(time.RFC3339)})

	apiresponses.RespondOK(c, gin.H{})
}

func (pc *PasswordController) handleValidate(c *gin.Context) {
	reqLog := system.GetReqLogger(c, pc.log)
	counter := metrics.PasswordResetValidations

	token := c.Query("token")
	if token == "" {
		counter.WithLabelValues("invalid").Inc()
		apiresponses.RespondTokenError(c, apiresponses.CodeTokenInvalid, "token is required")
		return
	}

	claims, err := pc.issuer.Validate(c.Request.Context(), token)
	if !pc.tokenUsable(c, counter, "validate reset token", err, reqLog) {
		return
	}

	pc.emit(c, audit.EventPasswordResetValidated, claims.Email, claims.TeamName(), nil)
	respondClaims(c, claims)
}

// handleConsume spends a token. The main application calls it when the user
// submits the new password and applies the change only on 200.
func (pc *PasswordController) handleConsume(c *gin.Context) {
	reqLog := system.GetReqLogger(c, pc.log)
	counter := metrics.PasswordResetConsumptions

	var req ConsumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBadRequestWithDetails(c, "invalid request body", err.Error())
		return
	}
	if req.Token == "" {
		counter.WithLabelValues("invalid").Inc()
		apiresponses.RespondTokenError(c, apiresponses.CodeTokenInvalid, "token is required")
		return
	}

	claims, err := pc.issuer.Consume(c.Request.Context(), req.Token)
	if !pc.tokenUsable(c, counter, "consume reset token", err, reqLog) {
		return
	}

	reqLog.Infow("Password reset token consumed", "team", claims.TeamName())
	pc.emit(c, audit.EventPasswordResetConsumed, claims.Email, claims.TeamName(), nil)
	respondClaims(c, claims)
}

// tokenUsable maps an issuer error to a response and reports whether the
// handler may continue.
func (pc *PasswordController) tokenUsable(c *gin.Context, counter *prometheus.CounterVec, action string, err error, reqLog *zap.SugaredLogger) bool {
	switch {
	case err == nil:
		counter.WithLabelValues("valid").Inc()
		return true
	case errors.Is(err, password.ErrTokenExpired):
		counter.WithLabelValues("expired").Inc()
		apiresponses.RespondTokenError(c, apiresponses.CodeTokenExpired, err.Error())
	case errors.Is(err, password.ErrTokenUsed):
		counter.WithLabelValues("used").Inc()
		apiresponses.RespondTokenError(c, apiresponses.CodeTokenUsed, err.Error())
	case errors.Is(err, password.ErrTokenInvalid):
		counter.WithLabelValues("invalid").Inc()
		apiresponses.RespondTokenError(c, apiresponses.CodeTokenInvalid, err.Error())
	default:
		counter.WithLabelValues("error").Inc()
		apiresponses.RespondInternalError(c, action, err, reqLog)
	}
	return false
}

func respondClaims(c *gin.Context, claims password.Claims) {
	apiresponses.RespondOK(c, ValidateResponse{
		Valid:     true,
		TeamName:  claims.TeamName(),
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	})
}

func (pc *PasswordController) emit(c *gin.Context, t audit.EventType, user, team string, details map[string]interface{}) {
	if pc.auditor == nil {
		return
	}
	pc.auditor.Emit(c.Request.Context(), &audit.Event{
		Type: t,
		Actor: audit.Actor{
			User:      user,
			SourceIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		},
		Target:  audit.Target{Kind: "Team", Name: team},
		Details: details,
	})
}
