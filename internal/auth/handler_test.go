package auth_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-core/internal/auth"
)

type httpFixture struct {
	*fixture
	mux *http.ServeMux
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()
	f := newFixture(t)
	h := auth.NewHandler(f.svc, auth.NewAuthenticator(f.svc, nil), nil)
	mux := http.NewServeMux()
	h.Register(mux)
	return &httpFixture{fixture: f, mux: mux}
}

func (f *httpFixture) do(t *testing.T, method, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func bearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestHandler_Signup(t *testing.T) {
	f := newHTTPFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"pw1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "a@x.com", body["email"])
	assert.NotContains(t, body, "password_hash")

	rec = f.do(t, http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"pw1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeBody(t, rec)["error"])

	rec = f.do(t, http.MethodPost, "/auth/signup", `{"email":"b@x.com"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/signup", `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_LoginMeLogout(t *testing.T) {
	f := newHTTPFixture(t)
	f.createUser(t, "a@x.com", "pw1")

	rec := f.do(t, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = f.do(t, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"pw1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	access, _ := body["access_token"].(string)
	require.NotEmpty(t, access)
	assert.NotContains(t, body, "refresh_token")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.RefreshCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.NotEmpty(t, cookies[0].Value)

	rec = f.do(t, http.MethodGet, "/auth/me", "", bearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", decodeBody(t, rec)["email"])

	rec = f.do(t, http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/logout", "", bearer(access))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/auth/me", "", bearer(access))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_PasswordResetWithCode(t *testing.T) {
	f := newHTTPFixture(t)
	f.createUser(t, "a@x.com", "pw1")

	rec := f.do(t, http.MethodPost, "/auth/password/forgot", `{"email":"a@x.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	code := f.mailer.last(t).Data["code"]
	require.Len(t, code, 6)

	reset := `{"code":"` + code + `","password":"pw2"}`
	rec = f.do(t, http.MethodPost, "/auth/password/reset", reset)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/password/reset", reset)
	assert.Equal(t, http.StatusForbidden, rec.Code, "a code is single use")

	rec = f.do(t, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"pw2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/password/forgot", `{"email":"nobody@x.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_Verify(t *testing.T) {
	f := newHTTPFixture(t)
	f.createUser(t, "a@x.com", "pw1")

	rec := f.do(t, http.MethodPost, "/auth/verify", `{}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/verify/resend", `{"email":"a@x.com","redirect_url":"https://app.example.com/verify"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	path := f.mailer.last(t).Data["path"]
	_, tok, ok := strings.Cut(path, "?token=")
	require.True(t, ok)

	rec = f.do(t, http.MethodPost, "/auth/verify", `{"token":"`+tok+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["is_verified"])
}

func TestHandler_DeviceToken(t *testing.T) {
	f := newHTTPFixture(t)

	rec := f.do(t, http.MethodPost, "/auth/signup", `{"email":"a@x.com","password":"pw1","device_id":"device-1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = f.do(t, http.MethodPost, "/auth/login", `{"email":"a@x.com","password":"pw1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	access, _ := decodeBody(t, rec)["access_token"].(string)

	rec = f.do(t, http.MethodPost, "/auth/device-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/device-token", "", bearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	tok, _ := decodeBody(t, rec)["token"].(string)
	require.NotEmpty(t, tok)

	rec = f.do(t, http.MethodPost, "/auth/device-token/check", `{"device_id":"device-1","token":"`+tok+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a@x.com", decodeBody(t, rec)["user_email"])

	rec = f.do(t, http.MethodPost, "/auth/device-token/check", `{"device_id":"device-1","token":"wrong"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DEVICE_TOKEN_UNKNOWN", decodeBody(t, rec)["code"])
}
