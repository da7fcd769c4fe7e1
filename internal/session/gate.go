// Package session holds the identity of the signed-in user and tells the
// rest of the client when it changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quicknotes/internal/domain"
	"quicknotes/pkg/jwt"

	"github.com/golang/glog"
)

var (
	ErrNoOwner = errors.New("session: token carries no user id")
	ErrExpired = errors.New("session: token already expired")
)

type Session struct {
	OwnerKey     string       `json:"owner_key"`
	Token        string       `json:"token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time    `json:"expires_at"`
	User         *domain.User `json:"user,omitempty"`
}

// FromToken builds a Session from an access token. The signature is not
// checked; the server does that on every request.
func FromToken(token string) (Session, error) {
	claims, err := jwt.InspectToken(token)
	if err != nil {
		return Session{}, err
	}
	owner := claims.UserID
	if owner == "" {
		owner = claims.Subject
	}
	if owner == "" {
		return Session{}, ErrNoOwner
	}

	s := Session{OwnerKey: owner, Token: token}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (*domain.LoginResponse, error)
}

func Login(ctx context.Context, auth Authenticator, email, password string) (Session, error) {
	resp, err := auth.Login(ctx, email, password)
	if err != nil {
		return Session{}, fmt.Errorf("login: %w", err)
	}
	s, err := FromToken(resp.AccessToken)
	if err != nil {
		return Session{}, err
	}
	s.User = resp.User
	s.RefreshToken = resp.RefreshToken
	return s, nil
}

type Renewer interface {
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error)
}

// Renew trades the refresh token of s for a new access token. The result
// keeps the user and refresh token of s.
func Renew(ctx context.Context, r Renewer, s Session) (Session, error) {
	if s.RefreshToken == "" {
		return Session{}, ErrExpired
	}
	resp, err := r.Refresh(ctx, s.RefreshToken)
	if err != nil {
		return Session{}, fmt.Errorf("renew: %w", err)
	}
	next, err := FromToken(resp.AccessToken)
	if err != nil {
		return Session{}, err
	}
	if next.OwnerKey != s.OwnerKey {
		return Session{}, fmt.Errorf("renew: token issued for %q, expected %q", next.OwnerKey, s.OwnerKey)
	}
	next.User = s.User
	next.RefreshToken = s.RefreshToken
	return next, nil
}

// Gate holds at most one session. Subscribers learn the new owner key on
// every change, and "" when the session ends.
type Gate struct {
	mu      sync.Mutex
	current *Session
	expiry  *time.Timer
	subs    map[int]func(string)
	order   []int
	nextSub int
	now     func() time.Time
}

func NewGate() *Gate {
	return &Gate{
		subs: make(map[int]func(string)),
		now:  time.Now,
	}
}

// CurrentOwnerKey returns the active owner, or false when nobody is signed in.
func (g *Gate) CurrentOwnerKey() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return "", false
	}
	return g.current.OwnerKey, true
}

// Token returns the bearer token of the active session, or "".
func (g *Gate) Token() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return ""
	}
	return g.current.Token
}

func (g *Gate) Current() (Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current == nil {
		return Session{}, false
	}
	return *g.current, true
}

// OnChange registers fn and returns a function that removes it. fn is called
// synchronously by whoever changed the session, never with the gate locked.
func (g *Gate) OnChange(fn func(ownerKey string)) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = fn
	g.order = append(g.order, id)
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.subs, id)
			for i, sub := range g.order {
				if sub == id {
					g.order = append(g.order[:i], g.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Establish replaces the active session. A session with an expiry is
// cleared automatically once it passes.
func (g *Gate) Establish(s Session) error {
	if s.OwnerKey == "" {
		return ErrNoOwner
	}

	g.mu.Lock()
	if !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(g.now()) {
		g.mu.Unlock()
		return ErrExpired
	}

	previous := ""
	if g.current != nil {
		previous = g.current.OwnerKey
	}
	g.stopExpiryLocked()
	current := s
	g.current = &current
	if !s.ExpiresAt.IsZero() {
		token := s.Token
		g.expiry = time.AfterFunc(s.ExpiresAt.Sub(g.now()), func() {
			g.expire(token)
		})
	}
	subs := g.subscribersLocked()
	g.mu.Unlock()

	glog.Infof("[session] established for %q", s.OwnerKey)
	if previous != s.OwnerKey {
		publish(subs, s.OwnerKey)
	}
	return nil
}

// Clear ends the active session, if any.
func (g *Gate) Clear() {
	g.mu.Lock()
	if g.current == nil {
		g.mu.Unlock()
		return
	}
	owner := g.current.OwnerKey
	g.current = nil
	g.stopExpiryLocked()
	subs := g.subscribersLocked()
	g.mu.Unlock()

	glog.Infof("[session] cleared for %q", owner)
	publish(subs, "")
}

func (g *Gate) expire(token string) {
	g.mu.Lock()
	if g.current == nil || g.current.Token != token {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	glog.Warningf("[session] token expired, signing out")
	g.Clear()
}

func (g *Gate) stopExpiryLocked() {
	if g.expiry != nil {
		g.expiry.Stop()
		g.expiry = nil
	}
}

func (g *Gate) subscribersLocked() []func(string) {
	out := make([]func(string), 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.subs[id])
	}
	return out
}

func publish(subs []func(string), ownerKey string) {
	for _, fn := range subs {
		fn(ownerKey)
	}
}
