package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"quicknotes/internal/domain"
	"quicknotes/pkg/response"

	"github.com/golang/glog"
)

const (
	defaultHTTPTimeout        = 30 * time.Second
	defaultHTTPConnectTimeout = 5 * time.Second
	defaultHTTPTLSTimeout     = 5 * time.Second
)

func defaultClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	dialer := &net.Dialer{
		Timeout: defaultHTTPConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHTTPTLSTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// TokenSource supplies the bearer token attached to store calls.
type TokenSource interface {
	Token() string
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

func (t StaticToken) Token() string { return string(t) }

// HTTPStore talks to the store server's /api/v1 surface.
type HTTPStore struct {
	apiURL string
	client *http.Client
	tokens TokenSource
}

func NewHTTPStore(apiURL string, timeout time.Duration, tokens TokenSource) *HTTPStore {
	return &HTTPStore{
		apiURL: strings.TrimRight(apiURL, "/"),
		client: defaultClient(timeout),
		tokens: tokens,
	}
}

// SetTokenSource swaps the credential provider, e.g. after signing in.
func (s *HTTPStore) SetTokenSource(tokens TokenSource) {
	s.tokens = tokens
}

func (s *HTTPStore) List(ctx context.Context, ownerKey string) ([]domain.Note, error) {
	var notes []domain.Note
	path := "/notes?owner=" + url.QueryEscape(ownerKey)
	if err := s.do(ctx, "list", http.MethodGet, path, "", nil, &notes); err != nil {
		return nil, err
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	return notes, nil
}

func (s *HTTPStore) Insert(ctx context.Context, ownerKey, title, body string) (domain.Note, error) {
	var note domain.Note
	req := &domain.CreateNoteRequest{Title: title, Body: body}
	path := "/notes?owner=" + url.QueryEscape(ownerKey)
	if err := s.do(ctx, "insert", http.MethodPost, path, "", req, &note); err != nil {
		return domain.Note{}, err
	}
	return note, nil
}

func (s *HTTPStore) Patch(ctx context.Context, id string, fields domain.NoteFields) error {
	return s.do(ctx, "patch", http.MethodPatch, "/notes/"+url.PathEscape(id), id, &fields, nil)
}

func (s *HTTPStore) Remove(ctx context.Context, id string) error {
	return s.do(ctx, "remove", http.MethodDelete, "/notes/"+url.PathEscape(id), id, nil, nil)
}

// Login exchanges credentials for tokens. It does not need a TokenSource.
func (s *HTTPStore) Login(ctx context.Context, email, password string) (*domain.LoginResponse, error) {
	var resp domain.LoginResponse
	req := &domain.LoginRequest{Email: email, Password: password}
	if err := s.do(ctx, "login", http.MethodPost, "/auth/login", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh trades a refresh token for a new access token.
func (s *HTTPStore) Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error) {
	var resp domain.TokenResponse
	req := &domain.RefreshTokenRequest{RefreshToken: refreshToken}
	if err := s.do(ctx, "refresh", http.MethodPost, "/auth/refresh", "", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *HTTPStore) Register(ctx context.Context, req *domain.RegisterRequest) error {
	return s.do(ctx, "register", http.MethodPost, "/auth/register", "", req, nil)
}

func (s *HTTPStore) UpdateProfile(ctx context.Context, req *domain.UpdateProfileRequest) (*domain.User, error) {
	var user domain.User
	if err := s.do(ctx, "update_profile", http.MethodPut, "/users/me", "", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *HTTPStore) do(ctx context.Context, op, method, path, id string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.apiURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.tokens != nil {
		if token := s.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if glog.V(2) {
		glog.Infof("[remote] %s %s -> %d (%v)", method, path, resp.StatusCode, time.Since(start))
	}

	var env response.Envelope[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return &TransportError{Op: op, Err: fmt.Errorf("status %d: undecodable body: %w", resp.StatusCode, err)}
	}

	if resp.StatusCode >= 400 {
		return statusError(op, id, resp.StatusCode, env.Error)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return &TransportError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
		}
	}

	return nil
}

func statusError(op, id string, status int, message string) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return &ValidationError{Message: message}
	case http.StatusNotFound:
		if id == "" {
			return &TransportError{Op: op, Err: fmt.Errorf("status %d: %s", status, message)}
		}
		return &NotFoundError{ID: id}
	default:
		return &TransportError{Op: op, Err: fmt.Errorf("status %d: %s", status, message)}
	}
}
