package user

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/mockserver/internal/platform/apierror"
	"github.com/ehr/mockserver/internal/platform/db"
	"github.com/ehr/mockserver/internal/platform/jsonx"
)

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	store, err := db.OpenInMemory(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	e := echo.New()
	e.HTTPErrorHandler = apierror.Handler(zerolog.Nop())
	e.JSONSerializer = jsonx.Serializer{}
	NewHandler(NewService(NewRepo(store), zerolog.Nop())).RegisterRoutes(e)
	return e
}

func call(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestUsers_CRUD(t *testing.T) {
	e := newTestServer(t)

	rec := call(e, http.MethodPost, "/users", `{"name":"Ada","email":"ada@example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, int64(1), created.ID)

	rec = call(e, http.MethodPost, "/users", `{"name":"Grace"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = call(e, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var users []User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.Equal(t, "Grace", users[1].Name)
	assert.Equal(t, int64(2), users[1].ID)

	rec = call(e, http.MethodPut, "/users/1", `{"name":"Ada Lovelace","email":"ada@example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(e, http.MethodGet, "/users/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Ada Lovelace", got.Name)

	rec = call(e, http.MethodDelete, "/users/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = call(e, http.MethodGet, "/users/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), apierror.ErrUserNotFound)
}

func TestUsers_IDsAreNotReused(t *testing.T) {
	e := newTestServer(t)
	require.Equal(t, http.StatusCreated, call(e, http.MethodPost, "/users", `{"name":"A"}`).Code)
	require.Equal(t, http.StatusNoContent, call(e, http.MethodDelete, "/users/1", "").Code)

	rec := call(e, http.MethodPost, "/users", `{"name":"B"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var u User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &u))
	assert.Equal(t, int64(2), u.ID)
}

func TestUsers_Validation(t *testing.T) {
	e := newTestServer(t)
	tests := []struct {
		name      string
		method    string
		path      string
		body      string
		status    int
		errorCode string
	}{
		{"missing name", http.MethodPost, "/users", `{"email":"a@b.co"}`, http.StatusBadRequest, apierror.ErrMissingRequiredFields},
		{"blank name", http.MethodPost, "/users", `{"name":"   "}`, http.StatusBadRequest, apierror.ErrMissingRequiredFields},
		{"bad email", http.MethodPost, "/users", `{"name":"A","email":"nope"}`, http.StatusBadRequest, apierror.ErrInvalidField},
		{"bad id", http.MethodGet, "/users/abc", "", http.StatusBadRequest, apierror.ErrInvalidField},
		{"update missing", http.MethodPut, "/users/99", `{"name":"A"}`, http.StatusNotFound, apierror.ErrUserNotFound},
		{"delete missing", http.MethodDelete, "/users/99", "", http.StatusNotFound, apierror.ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(e, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.errorCode, body["errorCode"])
		})
	}
}

func TestUsers_EmptyList(t *testing.T) {
	e := newTestServer(t)
	rec := call(e, http.MethodGet, "/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))
}
