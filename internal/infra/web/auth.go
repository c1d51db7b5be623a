package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"chat-assistant/internal/infra/api"
	"chat-assistant/internal/infra/logging"
)

// ===== Client identity =====
// Every browser gets a signed cookie naming an anonymous client id. The id
// selects the client's chat session and its storage namespace.

const ClientCookie = "chat_client"

var errNoClient = errors.New("missing client token")

type AuthConfig struct {
	HMACSecret   []byte
	CookieName   string
	SecureCookie bool
	TTL          time.Duration
}

type ClientAuth struct{ cfg AuthConfig }

func NewClientAuth(secret string, secure bool, ttl time.Duration) *ClientAuth {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &ClientAuth{cfg: AuthConfig{
		HMACSecret:   []byte(secret),
		CookieName:   ClientCookie,
		SecureCookie: secure,
		TTL:          ttl,
	}}
}

type ClientClaims struct {
	jwt.RegisteredClaims
}

// Token signs a token for clientID.
func (a *ClientAuth) Token(clientID string) (string, error) {
	now := time.Now()
	claims := ClientClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TTL)),
			Subject:   clientID,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.HMACSecret)
}

// Mint creates a new client id and sets its cookie.
func (a *ClientAuth) Mint(w http.ResponseWriter) (string, error) {
	clientID := ulid.Make().String()
	signed, err := a.Token(clientID)
	if err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(a.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
	return clientID, nil
}

// Clear expires the client cookie.
func (a *ClientAuth) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

func (a *ClientAuth) ParseFromRequest(r *http.Request) (*ClientClaims, error) {
	// Authorization: Bearer <jwt>
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(a.cfg.CookieName); err == nil {
		return a.parse(c.Value)
	}
	return nil, errNoClient
}

func (a *ClientAuth) parse(tok string) (*ClientClaims, error) {
	claims := &ClientClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.cfg.HMACSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := ulid.ParseStrict(claims.Subject); err != nil {
		return nil, errors.New("invalid client id")
	}
	return claims, nil
}

// Identify resolves the client, minting a fresh identity when the cookie is
// missing or invalid. Used by the HTML pages.
func (a *ClientAuth) Identify(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var clientID string
			if claims, err := a.ParseFromRequest(r); err == nil {
				clientID = claims.Subject
			} else {
				id, err := a.Mint(w)
				if err != nil {
					logging.With(r.Context(), logger).Error().Err(err).Msg("mint client token")
					http.Error(w, "internal error", http.StatusInternalServerError)
					return
				}
				clientID = id
				logging.With(r.Context(), logger).Info().Str("client_id", id).Msg("new client")
			}
			next.ServeHTTP(w, r.WithContext(withClient(r.Context(), w, clientID)))
		})
	}
}

// Require rejects requests without a valid identity. Used by the JSON API.
// A cookie that no longer verifies is expired, so the next page visit mints
// a fresh identity.
func (a *ClientAuth) Require(onFail http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				if _, cerr := r.Cookie(a.cfg.CookieName); cerr == nil {
					a.Clear(w)
				}
				onFail(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClient(r.Context(), w, claims.Subject)))
		})
	}
}

type ctxKey struct{}

func withClient(ctx context.Context, w http.ResponseWriter, clientID string) context.Context {
	ctx = context.WithValue(ctx, ctxKey{}, clientID)
	ctx = logging.WithClientID(ctx, clientID)
	api.ShareContext(w, ctx)
	return ctx
}

// ClientID returns the id resolved by Identify or Require.
func ClientID(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}
