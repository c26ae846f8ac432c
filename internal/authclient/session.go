// Package authclient es el cliente Go de la API de auth: mantiene un access
// token vigente para un servicio o CLI y lo inyecta en requests salientes.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	dto "github.com/farutech/tenantcore/internal/http/dto/auth"
	"github.com/farutech/tenantcore/internal/observability/logger"
)

var (
	ErrMissingCredentials = errors.New("authclient: email and password are required")
	// ErrContextRequired: el usuario tiene varias organizaciones y no se configuró TenantID.
	ErrContextRequired = errors.New("authclient: tenant selection required")
)

// APIError es una respuesta de error de la API.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("authclient: %d %s: %s (%s)", e.Status, e.Code, e.Message, e.Detail)
	}
	return fmt.Sprintf("authclient: %d %s: %s", e.Status, e.Code, e.Message)
}

// Config de la sesión.
type Config struct {
	BaseURL  string
	Email    string
	Password string
	// TenantID organización a seleccionar cuando el login pide contexto.
	TenantID   uuid.UUID
	RememberMe bool
	// Skew renueva el token antes de que expire (default 30s).
	Skew time.Duration
	// RefreshTimeout acota login + select-context (default 15s).
	RefreshTimeout time.Duration
	HTTPClient     *http.Client
}

// Session cachea el access token y coalesce las renovaciones concurrentes:
// N goroutines con el token vencido disparan un único login.
type Session struct {
	cfg Config
	hc  *http.Client
	now func() time.Time

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	sf singleflight.Group
}

func New(cfg Config) (*Session, error) {
	if cfg.Email == "" || cfg.Password == "" {
		return nil, ErrMissingCredentials
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Skew <= 0 {
		cfg.Skew = 30 * time.Second
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 15 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Session{cfg: cfg, hc: hc, now: time.Now}, nil
}

func (s *Session) cached() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || !s.now().Add(s.cfg.Skew).Before(s.expiresAt) {
		return "", false
	}
	return s.token, true
}

// Token retorna un access token con al menos Skew de vigencia.
func (s *Session) Token(ctx context.Context) (string, error) {
	if tok, ok := s.cached(); ok {
		return tok, nil
	}

	ch := s.sf.DoChan("refresh", func() (any, error) {
		// Otra goroutine pudo haber renovado mientras esperábamos.
		if tok, ok := s.cached(); ok {
			return tok, nil
		}
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RefreshTimeout)
		defer cancel()
		return s.refresh(rctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate descarta el token cacheado; la próxima llamada a Token renueva.
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.token, s.expiresAt = "", time.Time{}
	s.mu.Unlock()
}

// invalidateIf descarta el token sólo si sigue siendo tok, para no tirar uno
// que otra goroutine acaba de renovar.
func (s *Session) invalidateIf(tok string) {
	s.mu.Lock()
	if s.token == tok {
		s.token, s.expiresAt = "", time.Time{}
	}
	s.mu.Unlock()
}

func (s *Session) store(tok string, expiresIn int64) {
	s.mu.Lock()
	s.token = tok
	s.expiresAt = s.now().Add(time.Duration(expiresIn) * time.Second)
	s.mu.Unlock()
}

func (s *Session) refresh(ctx context.Context) (string, error) {
	log := logger.From(ctx).With(logger.Component("authclient"))

	var login dto.SecureLoginResponse
	err := s.post(ctx, "/auth/login", dto.LoginRequest{
		Email:      s.cfg.Email,
		Password:   s.cfg.Password,
		RememberMe: s.cfg.RememberMe,
	}, &login)
	if err != nil {
		return "", err
	}

	if !login.RequiresContextSelection {
		s.store(login.AccessToken, login.ExpiresIn)
		log.Debug("access token refreshed", logger.String("mode", "direct"))
		return login.AccessToken, nil
	}

	tenant := s.cfg.TenantID
	if tenant == uuid.Nil {
		if len(login.AvailableTenants) != 1 {
			return "", fmt.Errorf("%w: %d organizations available", ErrContextRequired, len(login.AvailableTenants))
		}
		tenant = login.AvailableTenants[0].TenantID
	}

	var sel dto.SelectContextResponse
	err = s.post(ctx, "/auth/select-context", dto.SelectContextRequest{
		IntermediateToken: login.IntermediateToken,
		TenantID:          tenant,
		RememberMe:        s.cfg.RememberMe,
	}, &sel)
	if err != nil {
		return "", err
	}
	s.store(sel.AccessToken, sel.ExpiresIn)
	log.Debug("access token refreshed", logger.String("mode", "select_context"), logger.TenantID(tenant.String()))
	return sel.AccessToken, nil
}

func (s *Session) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(apiErr)
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("authclient: decode %s: %w", path, err)
	}
	return nil
}

// Transport inyecta el bearer token y, ante un 401, renueva y reintenta una vez.
// Requests con body sólo se reintentan si GetBody está disponible.
func (s *Session) Transport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &transport{session: s, base: base}
}

type transport struct {
	session *Session
	base    http.RoundTripper
}

func (t *transport) RoundTrip(r *http.Request) (*http.Response, error) {
	tok, err := t.session.Token(r.Context())
	if err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(withBearer(r, tok))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	retry := r
	if r.Body != nil && r.Body != http.NoBody {
		if r.GetBody == nil {
			return resp, nil
		}
		body, err := r.GetBody()
		if err != nil {
			return resp, nil
		}
		retry = r.Clone(r.Context())
		retry.Body = body
	}

	t.session.invalidateIf(tok)
	fresh, err := t.session.Token(r.Context())
	if err != nil {
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return t.base.RoundTrip(withBearer(retry, fresh))
}

func withBearer(r *http.Request, tok string) *http.Request {
	out := r.Clone(r.Context())
	out.Header.Set("Authorization", "Bearer "+tok)
	return out
}
