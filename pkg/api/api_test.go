package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fgb-andu/muse-api/internal/sessiontoken"
	"github.com/fgb-andu/muse-api/pkg/domain"
	"github.com/fgb-andu/muse-api/pkg/quota"
	"github.com/fgb-andu/muse-api/pkg/repository/contentstore"
	"github.com/fgb-andu/muse-api/pkg/repository/ledger"
	"github.com/fgb-andu/muse-api/pkg/service/render"
)

type stubTranslator struct{}

func (stubTranslator) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return text + " [" + targetLang + "]", nil
}

type testServer struct {
	router    chi.Router
	accounts  *ledger.MemoryAccounts
	artifacts contentstore.Store
	clock     *time.Time
	uploadDir string
	worksDir  string
}

func newTestServer(t *testing.T, artifacts contentstore.Store) *testServer {
	t.Helper()

	if artifacts == nil {
		artifacts = contentstore.NewMemoryStore()
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := &now

	accounts := ledger.NewMemoryAccounts()
	engine := quota.NewEngine(accounts, ledger.NewMemoryTrials(), quota.DefaultRules()).
		WithClock(func() time.Time { return *clock })

	signer, err := sessiontoken.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)

	uploadDir := t.TempDir()
	worksDir := t.TempDir()

	h := NewHandler(
		accounts,
		engine,
		artifacts,
		render.NewPlaceholder(),
		stubTranslator{},
		signer,
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
		Config{
			UploadDir:  uploadDir,
			WorksDir:   worksDir,
			BaseURL:    "http://test",
			SessionTTL: time.Hour,
		},
	)

	return &testServer{
		router:    h.Router(),
		accounts:  accounts,
		artifacts: artifacts,
		clock:     clock,
		uploadDir: uploadDir,
		worksDir:  worksDir,
	}
}

// do sends a JSON request, attaching cookies from prior responses so a
// caller keeps its session, and returns the recorder.
func (s *testServer) do(t *testing.T, method, path, origin string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = origin + ":51234"
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/register", "10.0.0.1", AuthRequest{Email: "a@x.com"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp AuthResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Account)
	assert.Equal(t, "a@x.com", resp.Account.Email)
	assert.Equal(t, 20, resp.Account.DailyUses)
	assert.NotEmpty(t, rec.Result().Cookies(), "registration establishes a session")

	rec = s.do(t, http.MethodPost, "/api/register", "10.0.0.1", AuthRequest{Email: "a@x.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/register", "10.0.0.1", AuthRequest{Email: "not-an-email"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/login", "10.0.0.1", AuthRequest{Email: "a@x.com"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/login", "10.0.0.1", AuthRequest{Email: "nobody@x.com"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func register(t *testing.T, s *testServer, email string) []*http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/register", "10.0.0.1", AuthRequest{Email: email}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return rec.Result().Cookies()
}

func TestAuthenticatedDailyFlow(t *testing.T) {
	s := newTestServer(t, nil)
	cookies := register(t, s, "a@x.com")

	for want := 19; want >= 0; want-- {
		rec := s.do(t, http.MethodPost, "/api/use", "10.0.0.1", map[string]string{}, cookies)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp UseResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, want, resp.Remaining)
	}

	rec := s.do(t, http.MethodPost, "/api/use", "10.0.0.1", map[string]string{}, cookies)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	*s.clock = s.clock.Add(24 * time.Hour)
	rec = s.do(t, http.MethodPost, "/api/use", "10.0.0.1", map[string]string{}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp UseResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 19, resp.Remaining)
}

func TestTrialExpiryOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	cookies := register(t, s, "a@x.com")

	*s.clock = s.clock.Add(31 * 24 * time.Hour)
	rec := s.do(t, http.MethodPost, "/api/use", "10.0.0.1", map[string]string{}, cookies)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/subscribe", "10.0.0.1", SubscribeRequest{Subscribed: true}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/use", "10.0.0.1", map[string]string{}, cookies)
	assert.Equal(t, http.StatusOK, rec.Code, "subscription overrides trial expiry")
}

func visitorCookies(t *testing.T, s *testServer, origin string) []*http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/trial", origin, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies, "first anonymous request mints a session")
	return cookies
}

func TestAnonymousTrialFlow(t *testing.T) {
	s := newTestServer(t, nil)
	cookies := visitorCookies(t, s, "10.0.0.1")

	for want := 4; want >= 0; want-- {
		rec := s.do(t, http.MethodPost, "/api/use", "10.0.0.1", map[string]string{}, cookies)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp UseResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, want, resp.Remaining)
	}

	rec := s.do(t, http.MethodPost, "/api/use", "10.0.0.1", map[string]string{}, cookies)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTrialPeekDoesNotConsume(t *testing.T) {
	s := newTestServer(t, nil)
	cookies := visitorCookies(t, s, "10.0.0.1")

	for i := 0; i < 3; i++ {
		rec := s.do(t, http.MethodGet, "/api/trial", "10.0.0.1", nil, cookies)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp UseResponse
		decodeBody(t, rec, &resp)
		assert.Equal(t, 5, resp.Remaining)
	}
}

func TestOriginMismatch(t *testing.T) {
	s := newTestServer(t, nil)
	cookies := visitorCookies(t, s, "10.0.0.1")

	rec := s.do(t, http.MethodPost, "/api/use", "10.0.0.1", map[string]string{}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	// same session presented from a different address
	rec = s.do(t, http.MethodPost, "/api/use", "10.0.0.9", map[string]string{}, cookies)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/trial", "10.0.0.9", nil, cookies)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// counter untouched for the bound origin
	rec = s.do(t, http.MethodGet, "/api/trial", "10.0.0.1", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp UseResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 4, resp.Remaining)
}

func TestAdjustBypassesQuota(t *testing.T) {
	s := newTestServer(t, nil)
	cookies := visitorCookies(t, s, "10.0.0.1")

	for i := 0; i < 8; i++ {
		rec := s.do(t, http.MethodPost, "/api/adjust", "10.0.0.1",
			GenerateRequest{MediaType: domain.MediaTypeImage, Description: "a sunset"}, cookies)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp GenerateResponse
		decodeBody(t, rec, &resp)
		assert.Contains(t, resp.FileURL, "http://test/uploads/")
		assert.Contains(t, resp.FileURL, "_preview")
	}

	// trial counter untouched
	rec := s.do(t, http.MethodGet, "/api/trial", "10.0.0.1", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp UseResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, 5, resp.Remaining)

	files, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Len(t, files, 8)
}

func TestAdjustValidation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/adjust", "10.0.0.1",
		GenerateRequest{MediaType: domain.MediaTypeImage}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/adjust", "10.0.0.1",
		GenerateRequest{MediaType: "video", Description: "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateRequiresAuth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/generate", "10.0.0.1",
		GenerateRequest{MediaType: domain.MediaTypeImage, Description: "a sunset"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGenerateConsumesAndRecords(t *testing.T) {
	s := newTestServer(t, nil)
	cookies := register(t, s, "a@x.com")

	rec := s.do(t, http.MethodPost, "/api/generate", "10.0.0.1",
		GenerateRequest{MediaType: domain.MediaTypeAudio, Description: "a tune"}, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp GenerateResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.Remaining)
	assert.Equal(t, 19, *resp.Remaining)
	assert.Contains(t, resp.FileURL, "http://test/works/1/audio/")

	// the file landed under works/<account>/<media type>/
	matches, err := filepath.Glob(filepath.Join(s.worksDir, "1", "audio", "*.wav"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	rec = s.do(t, http.MethodGet, "/api/my-works", "10.0.0.1", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var works MyWorksResponse
	decodeBody(t, rec, &works)
	require.Len(t, works.Works, 1)
	assert.Equal(t, domain.MediaTypeAudio, works.Works[0].MediaType)
	assert.Equal(t, "a tune", works.Works[0].Description)
}

func TestMyWorksExcludesPreviews(t *testing.T) {
	s := newTestServer(t, nil)
	cookies := register(t, s, "a@x.com")

	rec := s.do(t, http.MethodPost, "/api/adjust", "10.0.0.1",
		GenerateRequest{MediaType: domain.MediaTypeImage, Description: "draft"}, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/my-works", "10.0.0.1", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var works MyWorksResponse
	decodeBody(t, rec, &works)
	assert.Empty(t, works.Works)

	rec = s.do(t, http.MethodGet, "/api/my-works", "10.0.0.1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type failingStore struct{}

func (failingStore) Create(context.Context, *domain.Artifact) error {
	return errors.New("disk full")
}

func (failingStore) ListFinal(context.Context, int64) ([]domain.Artifact, error) {
	return nil, errors.New("disk full")
}

func TestGenerateRefundsOnStorageFailure(t *testing.T) {
	s := newTestServer(t, failingStore{})
	cookies := register(t, s, "a@x.com")

	rec := s.do(t, http.MethodPost, "/api/generate", "10.0.0.1",
		GenerateRequest{MediaType: domain.MediaTypeImage, Description: "a sunset"}, cookies)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// no decrement survives the failed generation
	a, err := s.accounts.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 20, a.DailyUses)

	// and no orphaned file either
	matches, err := filepath.Glob(filepath.Join(s.worksDir, "1", "image", "*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestTranslateEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/translate", "10.0.0.1",
		TranslateRequest{Text: "hello", TargetLang: "fr"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp TranslateResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "hello [fr]", resp.Translation)

	rec = s.do(t, http.MethodPost, "/api/translate", "10.0.0.1",
		TranslateRequest{Text: "hello"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	s := newTestServer(t, nil)
	cookies := register(t, s, "a@x.com")

	rec := s.do(t, http.MethodPost, "/api/logout", "10.0.0.1", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)

	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == "muse_session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "logout must expire the session cookie")

	rec = s.do(t, http.MethodPost, "/api/logout", "10.0.0.1", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadsServed(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/adjust", "10.0.0.1",
		GenerateRequest{MediaType: domain.MediaTypeImage, Description: "a sunset"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp GenerateResponse
	decodeBody(t, rec, &resp)
	path := resp.FileURL[len("http://test"):]

	req := httptest.NewRequest(http.MethodGet, path, nil)
	got := httptest.NewRecorder()
	s.router.ServeHTTP(got, req)
	require.Equal(t, http.StatusOK, got.Code)
	assert.Equal(t, "image/png", got.Header().Get("Content-Type"))
}
