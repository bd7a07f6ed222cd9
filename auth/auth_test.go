package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/not-mt/zapd/config"
	"github.com/not-mt/zapd/errors"
)

const (
	nikolaKey   = "zpk_nikola_coil_bench_key"
	franklinKey = "zpk_franklin_kite_survey_key"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// benchAuthConfig grants nikola everything on both sections and franklin
// read-only access to widgets.
func benchAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Enabled:         true,
		CacheTTLSeconds: 900,
		APIKeys: []config.APIKeyConfig{
			{
				Name:    "nikola",
				KeyHash: Fingerprint(nikolaKey),
				ACLs: []config.ACLConfig{
					{SectionRegex: "^(widgets|gadgets)$", Permissions: []string{"read", "write", "zap"}},
				},
			},
			{
				Name:    "franklin",
				KeyHash: Fingerprint(franklinKey),
				ACLs: []config.ACLConfig{
					{SectionRegex: "^widgets$", Permissions: []string{"read"}},
				},
			},
		},
	}
}

func benchEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(benchAuthConfig(), testLogger())
	require.NoError(t, err)
	return e
}

// --- Fingerprinting and keygen ---

func TestFingerprintIsStableHex(t *testing.T) {
	fp := Fingerprint(nikolaKey)
	assert.Len(t, fp, 64) // sha256 hex
	assert.Equal(t, fp, Fingerprint(nikolaKey))
	assert.NotEqual(t, fp, Fingerprint(franklinKey))
}

func TestGenerateKey(t *testing.T) {
	key, fp, err := GenerateKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.Equal(t, Fingerprint(key), fp)

	other, _, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

// --- Evaluator construction ---

func TestNewEvaluatorCompilesConfig(t *testing.T) {
	e := benchEvaluator(t)
	assert.True(t, e.Enabled())
	assert.Len(t, e.keys, 2)
}

func TestNewEvaluatorRejectsBadRegex(t *testing.T) {
	cfg := benchAuthConfig()
	cfg.APIKeys[0].ACLs[0].SectionRegex = "^(widgets"
	_, err := NewEvaluator(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid section regex")
}

func TestNewEvaluatorRejectsUnknownPermission(t *testing.T) {
	cfg := benchAuthConfig()
	cfg.APIKeys[0].ACLs[0].Permissions = []string{"read", "launch"}
	_, err := NewEvaluator(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown permission "launch"`)
}

func TestNewEvaluatorRejectsMissingKeyHash(t *testing.T) {
	cfg := benchAuthConfig()
	cfg.APIKeys[1].KeyHash = ""
	_, err := NewEvaluator(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key_hash")
}

func TestNewEvaluatorRejectsDuplicateFingerprint(t *testing.T) {
	cfg := benchAuthConfig()
	cfg.APIKeys[1].KeyHash = cfg.APIKeys[0].KeyHash
	_, err := NewEvaluator(cfg, testLogger())
	require.Error(t, err)
}

func TestNewEvaluatorEnabledNeedsKeys(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true}
	_, err := NewEvaluator(cfg, testLogger())
	require.Error(t, err)

	cfg.Enabled = false
	e, err := NewEvaluator(cfg, testLogger())
	require.NoError(t, err)
	assert.False(t, e.Enabled())
}

// --- Authentication ---

func TestAuthenticateKnownKey(t *testing.T) {
	e := benchEvaluator(t)
	identity, err := e.Authenticate(nikolaKey)
	require.NoError(t, err)
	assert.Equal(t, "nikola", identity.Name)
	assert.Equal(t, Fingerprint(nikolaKey), identity.Fingerprint)
}

func TestAuthenticateMissingKey(t *testing.T) {
	e := benchEvaluator(t)
	_, err := e.Authenticate("")
	assert.True(t, errors.IsUnauthorizedError(err))
}

func TestAuthenticateUnknownKey(t *testing.T) {
	e := benchEvaluator(t)
	_, err := e.Authenticate("zpk_edison_forged_key")
	assert.True(t, errors.IsUnauthorizedError(err))
}

// --- ACL evaluation ---

func TestAuthorizeGrant(t *testing.T) {
	e := benchEvaluator(t)
	nikola, _ := e.Authenticate(nikolaKey)

	assert.NoError(t, e.Authorize(nikola, "widgets", PermissionZap))
	assert.NoError(t, e.Authorize(nikola, "gadgets", PermissionWrite))
}

func TestAuthorizeDeniesMissingPermission(t *testing.T) {
	e := benchEvaluator(t)
	franklin, _ := e.Authenticate(franklinKey)

	assert.NoError(t, e.Authorize(franklin, "widgets", PermissionRead))
	err := e.Authorize(franklin, "widgets", PermissionZap)
	assert.True(t, errors.IsForbiddenError(err))
}

func TestAuthorizeDeniesUnmatchedSection(t *testing.T) {
	e := benchEvaluator(t)
	franklin, _ := e.Authenticate(franklinKey)

	err := e.Authorize(franklin, "gadgets", PermissionRead)
	assert.True(t, errors.IsForbiddenError(err))
}

func TestAuthorizeWildcardSection(t *testing.T) {
	cfg := config.AuthConfig{
		Enabled: true,
		APIKeys: []config.APIKeyConfig{
			{
				Name:    "admin",
				KeyHash: Fingerprint("zpk_admin"),
				ACLs:    []config.ACLConfig{{SectionRegex: ".*", Permissions: []string{"read", "write", "zap"}}},
			},
		},
	}
	e, err := NewEvaluator(cfg, testLogger())
	require.NoError(t, err)

	admin, _ := e.Authenticate("zpk_admin")
	assert.NoError(t, e.Authorize(admin, "widgets", PermissionZap))
	assert.NoError(t, e.Authorize(admin, "gadgets", PermissionRead))
}

func TestValidPermission(t *testing.T) {
	assert.True(t, ValidPermission("read"))
	assert.True(t, ValidPermission("write"))
	assert.True(t, ValidPermission("zap"))
	assert.False(t, ValidPermission("launch"))
	assert.False(t, ValidPermission(""))
}

// --- Decision cache ---

func TestCacheStoresGrantsAndDenials(t *testing.T) {
	c := newDecisionCache(time.Minute)

	c.put("grant", nil)
	decision, ok := c.get("grant")
	assert.True(t, ok)
	assert.NoError(t, decision)

	denial := errors.Wrap(errors.ErrForbidden, "no")
	c.put("denial", denial)
	decision, ok = c.get("denial")
	assert.True(t, ok)
	assert.True(t, errors.IsForbiddenError(decision))
}

func TestCacheExpiry(t *testing.T) {
	c := newDecisionCache(1 * time.Millisecond)
	c.put("k", nil)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.get("k")
	assert.False(t, ok)
}

func TestCacheSweep(t *testing.T) {
	c := newDecisionCache(1 * time.Millisecond)
	c.put("k", nil)
	time.Sleep(5 * time.Millisecond)
	c.sweep()
	// After sweep, the entry should be gone from the map entirely
	_, loaded := c.decisions.Load("k")
	assert.False(t, loaded)
}

func TestAuthorizeCachedUsesCachedDecision(t *testing.T) {
	e := benchEvaluator(t)
	nikola, _ := e.Authenticate(nikolaKey)

	// Plant a canned denial for a triple the ACLs would grant. The cached
	// decision must win until invalidation.
	cacheKey := nikola.Fingerprint + "|widgets|" + string(PermissionZap)
	e.cache.put(cacheKey, errors.Wrap(errors.ErrForbidden, "canned denial"))

	err := e.AuthorizeCached(nikola, "widgets", PermissionZap)
	assert.True(t, errors.IsForbiddenError(err))

	e.InvalidateCache()
	assert.NoError(t, e.AuthorizeCached(nikola, "widgets", PermissionZap))
}

// --- Disabled mode ---

func TestDisabledEvaluatorAllowsEverything(t *testing.T) {
	cfg := benchAuthConfig()
	cfg.Enabled = false
	e, err := NewEvaluator(cfg, testLogger())
	require.NoError(t, err)

	identity, err := e.Check("", "widgets", PermissionZap)
	assert.NoError(t, err)
	assert.Nil(t, identity)
}

func TestEnabledCheckRunsFullPath(t *testing.T) {
	e := benchEvaluator(t)

	identity, err := e.Check(nikolaKey, "gadgets", PermissionZap)
	require.NoError(t, err)
	assert.Equal(t, "nikola", identity.Name)

	_, err = e.Check(franklinKey, "gadgets", PermissionRead)
	assert.True(t, errors.IsForbiddenError(err))

	_, err = e.Check("", "widgets", PermissionRead)
	assert.True(t, errors.IsUnauthorizedError(err))
}

// --- Middleware ---

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequireAllowsAuthorizedKey(t *testing.T) {
	e := benchEvaluator(t)
	handler := e.Require("widgets", PermissionZap)(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/widgets/1/zap", nil)
	req.Header.Set(HeaderAPIKey, nikolaKey)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRejectsMissingKey(t *testing.T) {
	e := benchEvaluator(t)
	handler := e.Require("widgets", PermissionRead)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/widgets", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "missing API key")
}

func TestRequireRejectsUnknownKey(t *testing.T) {
	e := benchEvaluator(t)
	handler := e.Require("widgets", PermissionRead)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/widgets", nil)
	req.Header.Set(HeaderAPIKey, "zpk_edison_forged_key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRejectsForbiddenKey(t *testing.T) {
	e := benchEvaluator(t)
	handler := e.Require("widgets", PermissionZap)(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/widgets/1/zap", nil)
	req.Header.Set(HeaderAPIKey, franklinKey)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "forbidden")
}

func TestRequireAcceptsQueryParamKey(t *testing.T) {
	// WebSocket clients cannot set headers, so the key may ride a query param.
	e := benchEvaluator(t)
	handler := e.Require("widgets", PermissionRead)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/zaps/stream?api_key="+franklinKey, nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireDisabledPassesThrough(t *testing.T) {
	cfg := benchAuthConfig()
	cfg.Enabled = false
	e, err := NewEvaluator(cfg, testLogger())
	require.NoError(t, err)

	handler := e.Require("widgets", PermissionZap)(okHandler)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/widgets/1/zap", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireBindsIdentityToContext(t *testing.T) {
	e := benchEvaluator(t)
	var seen *Identity
	handler := e.Require("widgets", PermissionRead)(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/widgets", nil)
	req.Header.Set(HeaderAPIKey, nikolaKey)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	require.NotNil(t, seen)
	assert.Equal(t, "nikola", seen.Name)
}

func TestStatusForAuthError(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, StatusForAuthError(errors.Wrap(errors.ErrUnauthorized, "nope")))
	assert.Equal(t, http.StatusForbidden, StatusForAuthError(errors.Wrap(errors.ErrForbidden, "nope")))
	assert.Equal(t, http.StatusInternalServerError, StatusForAuthError(errors.New("boom")))
}
