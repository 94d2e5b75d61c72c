package patient

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/mockserver/internal/platform/apierror"
	"github.com/ehr/mockserver/internal/platform/auth"
	"github.com/ehr/mockserver/internal/platform/middleware"
)

type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes mounts every version under its base path plus the
// account-scoped search and bulk delete.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	for _, v := range Versions {
		g := e.Group(v.BasePath, middleware.RequireJSON())
		if v == V1 {
			g.GET("/export", h.ExportPatients)
		}
		g.GET("", h.list(v))
		g.GET("/:key", h.get(v))
		g.POST("", h.create(v))
		g.PUT("/:key", h.replace(v))
		g.PATCH("/:key", h.patch(v))
		g.DELETE("/:key", h.DeletePatient)
	}

	acc := e.Group("/api/v1/accounts/:accountId/patients", middleware.RequireJSON())
	acc.GET("/search", h.SearchPatients)
	acc.POST("/search", h.SearchPatients)
	acc.DELETE("", h.DeletePatients)
}

func readBody(c echo.Context) ([]byte, error) {
	data, err := io.ReadAll(c.Request().Body)
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		return nil, apiErr
	}
	if err != nil {
		return nil, apierror.Validation(apierror.ErrInvalidField, "unreadable request body", err.Error())
	}
	return data, nil
}

func bindBody(c echo.Context) (Body, error) {
	data, err := readBody(c)
	if err != nil {
		return nil, err
	}
	return ParseBody(data)
}

func (h *Handler) list(v *Version) echo.HandlerFunc {
	return func(c echo.Context) error {
		res, err := h.svc.ListPatients(c.Request().Context(), v, QueryFromValues(c.QueryParams()))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res.Envelope(v.List))
	}
}

func (h *Handler) get(v *Version) echo.HandlerFunc {
	return func(c echo.Context) error {
		rec, err := h.svc.GetPatient(c.Request().Context(), c.Param("key"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, Project(v.Detail, rec))
	}
}

func (h *Handler) create(v *Version) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := bindBody(c)
		if err != nil {
			return err
		}
		rec, err := h.svc.CreatePatient(c.Request().Context(), v, body, auth.Identity(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, Project(v.Detail, rec))
	}
}

func (h *Handler) replace(v *Version) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := bindBody(c)
		if err != nil {
			return err
		}
		rec, err := h.svc.ReplacePatient(c.Request().Context(), v, c.Param("key"), body, auth.Identity(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, Project(v.Detail, rec))
	}
}

func (h *Handler) patch(v *Version) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := bindBody(c)
		if err != nil {
			return err
		}
		rec, err := h.svc.PatchPatient(c.Request().Context(), c.Param("key"), body, auth.Identity(c))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, Project(v.Detail, rec))
	}
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.DeletePatient(c.Request().Context(), c.Param("key")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SearchPatients reads parameters from the query string, or from a JSON
// body on POST.
func (h *Handler) SearchPatients(c echo.Context) error {
	q := QueryFromValues(c.QueryParams())
	if c.Request().Method == http.MethodPost {
		data, err := readBody(c)
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(data)) > 0 {
			var m map[string]interface{}
			if err := json.Unmarshal(data, &m); err != nil {
				return apierror.Validation(apierror.ErrInvalidQuery, "search body must be a JSON object", err.Error())
			}
			q = QueryFromMap(m)
		}
	}
	res, err := h.svc.SearchPatients(c.Request().Context(), c.Param("accountId"), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res.Envelope(AccountSearch.List))
}

type bulkDeleteRequest struct {
	PatientKeys []string `json:"patientKeys"`
	Keys        []string `json:"keys"`
}

type bulkDeleteResponse struct {
	AccountID string         `json:"accountId"`
	Results   []DeleteResult `json:"results"`
}

func (h *Handler) DeletePatients(c echo.Context) error {
	data, err := readBody(c)
	if err != nil {
		return err
	}
	var req bulkDeleteRequest
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return apierror.Validation(apierror.ErrInvalidField, "invalid request body", err.Error())
		}
	}
	keys := req.PatientKeys
	if len(keys) == 0 {
		keys = req.Keys
	}
	if len(keys) == 0 {
		return apierror.Validation(apierror.ErrMissingRequiredFields, "missing required fields", "patientKeys is required")
	}

	accountID := c.Param("accountId")
	results, err := h.svc.DeletePatients(c.Request().Context(), accountID, keys)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bulkDeleteResponse{AccountID: accountID, Results: results})
}

func (h *Handler) ExportPatients(c echo.Context) error {
	records, err := h.svc.ExportPatients(c.Request().Context(), QueryFromValues(c.QueryParams()))
	if err != nil {
		return err
	}
	data, err := BuildRoster(records)
	if err != nil {
		return apierror.Internal(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="patients.xlsx"`)
	return c.Blob(http.StatusOK, XLSXContentType, data)
}
