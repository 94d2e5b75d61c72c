package auth

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/mockserver/internal/platform/apierror"
)

// Handler exposes the mock token endpoints.
type Handler struct {
	issuer *Issuer
	logger zerolog.Logger
}

func NewHandler(issuer *Issuer, logger zerolog.Logger) *Handler {
	return &Handler{issuer: issuer, logger: logger}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/token", h.IssueToken)
	g.GET("/validate", h.ValidateToken)
}

type tokenRequest struct {
	Username string   `json:"username"`
	UserID   string   `json:"userId"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
}

type tokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresIn   int64     `json:"expiresIn"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func (h *Handler) IssueToken(c echo.Context) error {
	var req tokenRequest
	if err := c.Bind(&req); err != nil {
		return apierror.Validation(apierror.ErrInvalidField, "invalid request body", err.Error())
	}
	subject := req.UserID
	if subject == "" {
		subject = req.Username
	}
	if subject == "" {
		return apierror.Validation(apierror.ErrMissingRequiredFields, "invalid request body", "username or userId is required")
	}
	tok, claims, err := h.issuer.Issue(subject, req.Name, req.Roles)
	if err != nil {
		return apierror.Internal(err)
	}
	h.logger.Debug().Str("subject", subject).Msg("mock token issued")
	exp := claims.ExpiresAt.Time
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.issuer.ttl.Seconds()),
		ExpiresAt:   exp,
	})
}

func (h *Handler) ValidateToken(c echo.Context) error {
	tok, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}
	claims, err := h.issuer.Validate(tok)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid token: "+err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":     true,
		"subject":   claims.Subject,
		"name":      claims.Name,
		"roles":     claims.Roles,
		"expiresAt": claims.ExpiresAt.Time,
	})
}
