// Package auth is the session and auth substrate: signed session cookies,
// JWT bearer acceptance, and one-time WebSocket tickets. Cryptography is
// limited to HMAC cookie signing; accounts are out of scope.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shacharon/tavola/pkg/config"
	"github.com/shacharon/tavola/pkg/store"
)

// CookieName is the session cookie.
const CookieName = "session"

const (
	sessionKeyPrefix = "session:"
	ticketKeyPrefix  = "ws_ticket:"
)

// Typed errors surfaced to the API layer.
var (
	// ErrUnauthorized means no valid cookie and no valid bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionStoreUnavailable means the session backend is down.
	ErrSessionStoreUnavailable = errors.New("session store unavailable")

	// ErrTicketInvalid means the WS ticket is unknown or already consumed.
	ErrTicketInvalid = errors.New("ws ticket invalid or consumed")
)

// Identity is the resolved caller identity.
type Identity struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// sessionRecord is the persisted session payload.
type sessionRecord struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ticketRecord is the persisted one-time WS ticket payload.
type ticketRecord struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Service implements the auth substrate over the KV backend.
type Service struct {
	backend      store.Backend
	cookieSecret []byte
	jwtSecret    []byte

	sessionTTL time.Duration
	ticketTTL  time.Duration

	cookieSameSite http.SameSite
	cookieDomain   string
	cookieSecure   bool

	now func() time.Time
}

// NewService builds the auth service from configuration.
func NewService(backend store.Backend, cfg *config.Config) *Service {
	return &Service{
		backend:        backend,
		cookieSecret:   []byte(cfg.SessionCookieSecret),
		jwtSecret:      []byte(cfg.JWTSecret),
		sessionTTL:     cfg.SessionTTL,
		ticketTTL:      cfg.TicketTTL,
		cookieSameSite: parseSameSite(cfg.CookieSameSite),
		cookieDomain:   cfg.CookieDomain,
		cookieSecure:   cfg.CookieSecure,
		now:            time.Now,
	}
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// BootstrapSession creates a fresh session and returns its signed cookie.
func (s *Service) BootstrapSession(ctx context.Context) (string, *http.Cookie, error) {
	sessionID := uuid.NewString()
	rec := sessionRecord{SessionID: sessionID, CreatedAt: s.now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", nil, err
	}
	if err := s.backend.Set(ctx, sessionKeyPrefix+sessionID, data, s.sessionTTL); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return sessionID, s.cookie(sessionID), nil
}

// cookie builds the HttpOnly signed session cookie.
func (s *Service) cookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    sessionID + "." + s.sign(sessionID),
		Path:     "/",
		Domain:   s.cookieDomain,
		MaxAge:   int(s.sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: s.cookieSameSite,
	}
}

func (s *Service) sign(sessionID string) string {
	mac := hmac.New(sha256.New, s.cookieSecret)
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}

// ResolveIdentity resolves the caller: signed cookie first, then bearer
// token. Returns ErrUnauthorized when neither is valid. A valid cookie also
// slides the session TTL.
func (s *Service) ResolveIdentity(ctx context.Context, r *http.Request) (Identity, error) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		if identity, err := s.resolveCookie(ctx, cookie.Value); err == nil {
			return identity, nil
		} else if errors.Is(err, ErrSessionStoreUnavailable) {
			return Identity{}, err
		}
	}

	if token := bearerToken(r); token != "" {
		if identity, err := s.resolveBearer(token); err == nil {
			return identity, nil
		}
	}
	return Identity{}, ErrUnauthorized
}

func (s *Service) resolveCookie(ctx context.Context, value string) (Identity, error) {
	sessionID, sig, ok := strings.Cut(value, ".")
	if !ok || sessionID == "" {
		return Identity{}, ErrUnauthorized
	}
	if !hmac.Equal([]byte(sig), []byte(s.sign(sessionID))) {
		return Identity{}, ErrUnauthorized
	}

	data, err := s.backend.Get(ctx, sessionKeyPrefix+sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrUnauthorized
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Identity{}, ErrUnauthorized
	}

	// Sliding TTL.
	_ = s.backend.Expire(ctx, sessionKeyPrefix+sessionID, s.sessionTTL)
	return Identity{SessionID: rec.SessionID, UserID: rec.UserID}, nil
}

// resolveBearer validates a JWT and extracts the subject as the user id.
func (s *Service) resolveBearer(token string) (Identity, error) {
	if len(s.jwtSecret) == 0 {
		return Identity{}, ErrUnauthorized
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Identity{}, ErrUnauthorized
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: sub}, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

// IssueWSTicket mints a one-time WebSocket ticket for the identity.
func (s *Service) IssueWSTicket(ctx context.Context, identity Identity) (string, time.Duration, error) {
	ticket := uuid.NewString()
	rec := ticketRecord{SessionID: identity.SessionID, UserID: identity.UserID, CreatedAt: s.now()}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", 0, err
	}
	if err := s.backend.Set(ctx, ticketKeyPrefix+ticket, data, s.ticketTTL); err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	return ticket, s.ticketTTL, nil
}

// ConsumeWSTicket redeems a ticket exactly once. A second redemption, an
// unknown ticket, and an expired ticket all fail the same way.
func (s *Service) ConsumeWSTicket(ctx context.Context, ticket string) (Identity, error) {
	if ticket == "" {
		return Identity{}, ErrTicketInvalid
	}
	data, err := s.backend.GetDel(ctx, ticketKeyPrefix+ticket)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Identity{}, ErrTicketInvalid
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrSessionStoreUnavailable, err)
	}
	var rec ticketRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return Identity{}, ErrTicketInvalid
	}
	return Identity{SessionID: rec.SessionID, UserID: rec.UserID}, nil
}
