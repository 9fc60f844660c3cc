package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"fieldline/internal/repo"
)

const tokenIssuer = "fieldline"

var (
	errNoSecret      = errors.New("jwt secret not configured")
	errMalformedAuth = errors.New("malformed authorization header")
)

// AuthConfig selects how callers are identified. Bearer tokens need
// JWTSecret; API keys are looked up in the workspace database.
type AuthConfig struct {
	JWTSecret string
	Logger    *zap.Logger
}

// Principal is the authenticated caller attached to a request context.
type Principal struct {
	ActorID string
	Source  string
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func actorIDFromContext(ctx context.Context) (string, huma.StatusError) {
	p, _ := ctx.Value(principalKey{}).(Principal)
	if p.ActorID == "" {
		return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
	}
	return p.ActorID, nil
}

// IssueToken signs an HS256 bearer token for subject. A zero ttl issues a
// token without expiry.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errNoSecret
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject required")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		Issuer:   tokenIssuer,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

type authenticator struct {
	secret []byte
	keys   repo.Repo
	parser *jwt.Parser
	log    *zap.Logger
	now    func() time.Time
}

func newAuthenticator(cfg AuthConfig, keys repo.Repo) *authenticator {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &authenticator{
		secret: []byte(strings.TrimSpace(cfg.JWTSecret)),
		keys:   keys,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
		log:    log,
		now:    time.Now,
	}
}

func (a *authenticator) bearer(header string) (Principal, error) {
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return Principal{}, errMalformedAuth
	}
	if len(a.secret) == 0 {
		return Principal{}, errNoSecret
	}
	claims := &jwt.RegisteredClaims{}
	if _, err := a.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return Principal{}, err
	}
	if claims.Subject == "" {
		return Principal{}, errors.New("subject claim required")
	}
	return Principal{ActorID: claims.Subject, Source: "jwt"}, nil
}

func (a *authenticator) apiKey(ctx context.Context, plain string) (Principal, error) {
	key, err := a.keys.GetAPIKeyByHash(ctx, repo.HashAPIKey(plain))
	if err != nil {
		return Principal{}, err
	}
	if key.ActorID == "" {
		return Principal{}, errors.New("api key missing actor")
	}
	if err := a.keys.TouchAPIKey(ctx, key.ID, a.now()); err != nil {
		a.log.Debug("api key usage not recorded", zap.String("key_id", key.ID), zap.Error(err))
	}
	return Principal{ActorID: key.ActorID, Source: "api_key"}, nil
}

func (a *authenticator) identify(req *http.Request) (Principal, bool, error) {
	if authz := strings.TrimSpace(req.Header.Get("Authorization")); authz != "" {
		p, err := a.bearer(authz)
		return p, true, err
	}
	if key := strings.TrimSpace(req.Header.Get("X-Api-Key")); key != "" {
		p, err := a.apiKey(req.Context(), key)
		return p, true, err
	}
	return Principal{}, false, nil
}

// middleware guards everything under basePath except the health probe and
// the OpenAPI document.
func (a *authenticator) middleware(basePath string) func(http.Handler) http.Handler {
	public := map[string]bool{
		path.Join(basePath, "health"):       true,
		path.Join(basePath, "openapi.json"): true,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !strings.HasPrefix(req.URL.Path, basePath) || public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}
			principal, presented, err := a.identify(req)
			switch {
			case !presented:
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			case err != nil:
				a.log.Debug("rejected credentials", zap.String("path", req.URL.Path), zap.Error(err))
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
			default:
				next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
			}
		})
	}
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.GetStatus())
	_ = json.NewEncoder(w).Encode(err)
}
