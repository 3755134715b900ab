package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophaccount/internal/logging"
	"github.com/dmitrijs2005/gophaccount/internal/server/auth"
	"github.com/dmitrijs2005/gophaccount/internal/server/config"
	"github.com/dmitrijs2005/gophaccount/internal/server/metrics"
	"github.com/dmitrijs2005/gophaccount/internal/server/notify"
	"github.com/dmitrijs2005/gophaccount/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophaccount/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mailbox captures verification mail instead of sending it.
type mailbox struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (m *mailbox) Dispatch(_ context.Context, msg notify.Message) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return true
}

// tokenFor returns the token from the last link mailed to email.
func (m *mailbox) tokenFor(t *testing.T, email string) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.msgs) - 1; i >= 0; i-- {
		if m.msgs[i].To != email {
			continue
		}
		for _, line := range strings.Split(m.msgs[i].Text, "\n") {
			if strings.HasPrefix(line, "http") {
				return line[strings.LastIndex(line, "/")+1:]
			}
		}
	}
	t.Fatalf("no verification mail for %s", email)
	return ""
}

type testEnv struct {
	handler http.Handler
	mail    *mailbox
	db      *sql.DB
	secret  string
}

func newTestEnv(t *testing.T, rate *limiter.Rate, trustedProxies ...string) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, rm, err := repomanager.Open(ctx, config.StoreDriverMemory, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		SecretKey:                   "test-secret",
		AccessTokenValidityDuration: 2 * time.Hour,
		BcryptCost:                  4,
		VerifyBaseURL:               "http://localhost:3000/api/auth/verify",
	}
	mail := &mailbox{}
	svc := services.NewAccountService(db, rm, cfg, mail, logging.Nop{})

	opts := Options{RoutePrefix: "/api/auth", Metrics: metrics.New(), TrustedProxies: trustedProxies}
	if rate != nil {
		store, closeStore, err := NewLimiterStore(ctx, RedisOptions{})
		require.NoError(t, err)
		t.Cleanup(func() { _ = closeStore() })
		opts.LimiterStore = store
		opts.Rate = *rate
	}

	srv, err := NewServer(opts, svc, db, logging.Nop{})
	require.NoError(t, err)

	return &testEnv{handler: srv.Handler(), mail: mail, db: db, secret: cfg.SecretKey}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return e.doWithHeader(t, method, path, body, nil)
}

func (e *testEnv) doWithHeader(t *testing.T, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	req.RemoteAddr = "203.0.113.7:1234"
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func registerBody(username, email string) map[string]string {
	return map[string]string{
		"given_name":  "Ana",
		"family_name": "",
		"username":    username,
		"email":       email,
		"password":    "Secret123",
	}
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var m messageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m.Message
}

func TestEndToEnd_RegisterVerifyLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/auth/register", registerBody("ana_1", "ana@example.com"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, msgRegistered, message(t, rec))
	assert.NotContains(t, rec.Body.String(), "Secret123")

	// Not yet verified.
	rec = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ana@example.com", "password": "Secret123"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidCreds, message(t, rec))

	token := env.mail.tokenFor(t, "ana@example.com")
	assert.Len(t, token, 64)

	rec = env.do(t, http.MethodGet, "/api/auth/verify/"+token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, msgVerified, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/auth/verify/"+token, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidToken, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ana@example.com", "password": "Secret123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, msgLoggedIn, resp.Message)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ana@example.com", resp.User.Email)
	assert.Equal(t, "ana_1", resp.User.Username)
	assert.NotEmpty(t, resp.User.ID)
	assert.NotContains(t, rec.Body.String(), "password")

	claims, err := auth.NewSessionIssuer(env.secret, 2*time.Hour).ParseToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.AccountID)
	assert.Equal(t, "ana@example.com", claims.Email)
	assert.Equal(t, 2*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))
}

func TestRegister_Duplicates(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/api/auth/register", registerBody("ana_1", "ana@example.com"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/auth/register", registerBody("someone", "ana@example.com"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgEmailTaken, message(t, rec))

	rec = env.do(t, http.MethodPost, "/api/auth/register", registerBody("ANA_1", "other@example.com"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgUsernameTaken, message(t, rec))
}

func TestRegister_MalformedInput(t *testing.T) {
	env := newTestEnv(t, nil)

	bodies := []map[string]string{
		{"username": "ana_1", "email": "ana@example.com", "password": "Secret123"},
		registerBody("a b", "ana@example.com"),
		registerBody("ana_1", "not-an-email"),
		{"given_name": "Ana", "username": "ana_1", "email": "ana@example.com", "password": "short"},
	}
	for _, b := range bodies {
		rec := env.do(t, http.MethodPost, "/api/auth/register", b)
		assert.Equal(t, http.StatusBadRequest, rec.Code, b)
		assert.Equal(t, msgInvalidRequest, message(t, rec))
	}

	var count int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM accounts`).Scan(&count))
	assert.Zero(t, count)
}

func TestRegister_ConcurrentSameEmail(t *testing.T) {
	env := newTestEnv(t, nil)

	const n = 6
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := env.do(t, http.MethodPost, "/api/auth/register", registerBody(fmt.Sprintf("user_%d", i), "race@example.com"))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, c := range codes {
		if c == http.StatusOK {
			ok++
		} else {
			assert.Equal(t, http.StatusBadRequest, c)
		}
	}
	assert.Equal(t, 1, ok)

	var count int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM accounts WHERE email = ?`, "race@example.com").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestLogin_FailureBodiesAreIdentical(t *testing.T) {
	env := newTestEnv(t, nil)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/register", registerBody("pending", "pending@example.com")).Code)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/register", registerBody("active", "active@example.com")).Code)
	token := env.mail.tokenFor(t, "active@example.com")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/auth/verify/"+token, nil).Code)

	unverified := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "pending@example.com", "password": "Secret123"})
	wrongPass := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "active@example.com", "password": "nope"})
	unknown := env.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ghost@example.com", "password": "Secret123"})

	for _, rec := range []*httptest.ResponseRecorder{unverified, wrongPass, unknown} {
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Equal(t, unverified.Body.Bytes(), wrongPass.Body.Bytes())
	assert.Equal(t, unverified.Body.Bytes(), unknown.Body.Bytes())
}

func TestVerify_UnknownTokenChangesNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/register", registerBody("ana_1", "ana@example.com")).Code)

	rec := env.do(t, http.MethodGet, "/api/auth/verify/deadbeef", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidToken, rec.Body.String())

	var verified int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM accounts WHERE verified = 1`).Scan(&verified))
	assert.Zero(t, verified)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, &limiter.Rate{Period: time.Minute, Limit: 2})

	body := map[string]string{"email": "x@example.com", "password": "whatever"}
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/auth/login", body).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/auth/login", body).Code)

	rec := env.do(t, http.MethodPost, "/api/auth/login", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, msgTooManyRequests, message(t, rec))

	// Counters are per route.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/auth/register", registerBody("ana_1", "ana@example.com")).Code)
}

func TestRateLimit_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	env := newTestEnv(t, &limiter.Rate{Period: time.Minute, Limit: 2})

	body := map[string]string{"email": "x@example.com", "password": "whatever"}
	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		h := http.Header{"X-Forwarded-For": []string{fmt.Sprintf("10.0.0.%d", i)}}
		codes = append(codes, env.doWithHeader(t, http.MethodPost, "/api/auth/login", body, h).Code)
	}

	assert.Equal(t, []int{
		http.StatusBadRequest, http.StatusBadRequest,
		http.StatusTooManyRequests, http.StatusTooManyRequests,
	}, codes)
}

func TestRateLimit_TrustedProxyForwardsClientAddress(t *testing.T) {
	env := newTestEnv(t, &limiter.Rate{Period: time.Minute, Limit: 2}, "203.0.113.7")

	body := map[string]string{"email": "x@example.com", "password": "whatever"}
	for i := 0; i < 4; i++ {
		h := http.Header{"X-Forwarded-For": []string{fmt.Sprintf("10.0.0.%d", i)}}
		assert.Equal(t, http.StatusBadRequest, env.doWithHeader(t, http.MethodPost, "/api/auth/login", body, h).Code)
	}
}

func TestNewServer_RejectsBadTrustedProxy(t *testing.T) {
	_, err := NewServer(Options{TrustedProxies: []string{"not-an-ip"}}, nil, nil, logging.Nop{})
	require.Error(t, err)
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.do(t, http.MethodPost, "/api/auth/register", registerBody("ana_1", "ana@example.com"))

	rec = env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "accounts_http_request_duration_seconds")

	require.NoError(t, env.db.Close())
	rec = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUsernameValidator(t *testing.T) {
	for _, ok := range []string{"ana_1", "Ana.Ruiz", "a-b"} {
		assert.True(t, usernamePattern.MatchString(ok), ok)
	}
	for _, bad := range []string{"", "ab", "a b", "ana@x", strings.Repeat("a", 31)} {
		assert.False(t, usernamePattern.MatchString(bad), bad)
	}
}
