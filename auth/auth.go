// Package auth implements API-key authentication and per-section ACL
// authorization for zapd.
//
// Keys are never stored; configuration carries only their sha256
// fingerprints. Each key grants permissions on resource sections matched
// by regex, and evaluated decisions are cached in-process with a TTL so
// hot request paths skip the regex walk.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"go.uber.org/zap"

	"github.com/not-mt/zapd/config"
	"github.com/not-mt/zapd/errors"
)

// HeaderAPIKey is the request header carrying the API key.
const HeaderAPIKey = "X-API-Key"

// Permission is one action a key may hold on a section.
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
	PermissionZap   Permission = "zap"
)

// ValidPermission reports whether s names a known permission.
func ValidPermission(s string) bool {
	switch Permission(s) {
	case PermissionRead, PermissionWrite, PermissionZap:
		return true
	}
	return false
}

// Fingerprint returns the sha256 hex digest of an API key. This is the
// only form of the key that ever appears in configuration or logs.
func Fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

type compiledACL struct {
	section     *regexp.Regexp
	permissions map[Permission]bool
}

// Identity is an authenticated API key.
type Identity struct {
	Name        string
	Fingerprint string
	acls        []compiledACL
}

// Evaluator authenticates API keys and evaluates section ACLs.
type Evaluator struct {
	enabled bool
	keys    map[string]*Identity // keyed by fingerprint
	cache   *decisionCache
	logger  *zap.SugaredLogger
}

// NewEvaluator compiles the configured keys and ACL patterns. A bad
// section regex fails construction rather than silently denying requests
// at runtime.
func NewEvaluator(cfg config.AuthConfig, logger *zap.SugaredLogger) (*Evaluator, error) {
	keys := make(map[string]*Identity, len(cfg.APIKeys))

	for _, keyCfg := range cfg.APIKeys {
		if keyCfg.Name == "" {
			return nil, errors.New("API key entry has no name")
		}
		if keyCfg.KeyHash == "" {
			return nil, errors.Newf("API key %q has no key_hash", keyCfg.Name)
		}
		if _, exists := keys[keyCfg.KeyHash]; exists {
			return nil, errors.Newf("API key %q reuses another key's fingerprint", keyCfg.Name)
		}

		acls := make([]compiledACL, 0, len(keyCfg.ACLs))
		for _, aclCfg := range keyCfg.ACLs {
			section, err := regexp.Compile(aclCfg.SectionRegex)
			if err != nil {
				return nil, errors.Wrapf(err, "API key %q has an invalid section regex %q", keyCfg.Name, aclCfg.SectionRegex)
			}
			perms := make(map[Permission]bool, len(aclCfg.Permissions))
			for _, p := range aclCfg.Permissions {
				if !ValidPermission(p) {
					return nil, errors.Newf("API key %q grants unknown permission %q", keyCfg.Name, p)
				}
				perms[Permission(p)] = true
			}
			acls = append(acls, compiledACL{section: section, permissions: perms})
		}

		keys[keyCfg.KeyHash] = &Identity{
			Name:        keyCfg.Name,
			Fingerprint: keyCfg.KeyHash,
			acls:        acls,
		}
	}

	if cfg.Enabled && len(keys) == 0 {
		return nil, errors.New("auth enabled but no API keys configured")
	}

	return &Evaluator{
		enabled: cfg.Enabled,
		keys:    keys,
		cache:   newDecisionCache(cfg.CacheTTL()),
		logger:  logger,
	}, nil
}

// Enabled returns whether authentication is enforced. A disabled
// evaluator allows everything (demo mode).
func (e *Evaluator) Enabled() bool {
	return e.enabled
}

// Authenticate resolves a presented key to its configured identity.
func (e *Evaluator) Authenticate(key string) (*Identity, error) {
	if key == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "missing API key")
	}

	identity, ok := e.keys[Fingerprint(key)]
	if !ok {
		return nil, errors.Wrap(errors.ErrUnauthorized, "unknown API key")
	}
	return identity, nil
}

// Authorize checks one section/permission pair against an identity's
// ACLs. The first matching grant wins; no match is a denial.
func (e *Evaluator) Authorize(identity *Identity, section string, perm Permission) error {
	for _, acl := range identity.acls {
		if acl.section.MatchString(section) && acl.permissions[perm] {
			return nil
		}
	}

	err := errors.Wrapf(errors.ErrForbidden, "key %q may not %s %s", identity.Name, perm, section)
	return errors.WithHint(err, "Grant the permission under the key's [[auth.api_keys.acls]] entry")
}

// AuthorizeCached is Authorize behind the TTL decision cache. Only known
// fingerprints reach the cache, so unknown keys cannot grow it.
func (e *Evaluator) AuthorizeCached(identity *Identity, section string, perm Permission) error {
	cacheKey := identity.Fingerprint + "|" + section + "|" + string(perm)
	if decision, ok := e.cache.get(cacheKey); ok {
		return decision
	}

	decision := e.Authorize(identity, section, perm)
	e.cache.put(cacheKey, decision)
	return decision
}

// Check runs the full path: authenticate the raw key, then authorize it
// for the section/permission through the cache. Disabled auth allows
// everything.
func (e *Evaluator) Check(key, section string, perm Permission) (*Identity, error) {
	if !e.enabled {
		return nil, nil
	}

	identity, err := e.Authenticate(key)
	if err != nil {
		return nil, err
	}
	if err := e.AuthorizeCached(identity, section, perm); err != nil {
		return nil, err
	}
	return identity, nil
}

// InvalidateCache flushes all cached decisions. Called when the auth
// configuration reloads.
func (e *Evaluator) InvalidateCache() {
	e.cache.purge()
}
