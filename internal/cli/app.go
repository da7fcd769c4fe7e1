package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"quicknotes/internal/config"
	"quicknotes/internal/domain"
	"quicknotes/internal/reconcile"
	"quicknotes/internal/remote"
	"quicknotes/internal/repository"
	"quicknotes/internal/service"
	"quicknotes/internal/session"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	errNotSignedIn = errors.New("not signed in, run `notesctl login` first")
	errNoMatch     = errors.New("no note matches")
	errAmbiguous   = errors.New("more than one note matches")
)

// backend is where notes and accounts live: the store server, or the
// configured database when running embedded.
type backend interface {
	remote.Store
	session.Authenticator
	session.Renewer
	Register(ctx context.Context, req *domain.RegisterRequest) error
	UpdateProfile(ctx context.Context, req *domain.UpdateProfileRequest) (*domain.User, error)
	Close() error
}

type httpBackend struct {
	*remote.HTTPStore
}

func (httpBackend) Close() error { return nil }

type embeddedBackend struct {
	*remote.ServiceStore
	auth   *service.AuthService
	users  *service.UserService
	owners remote.OwnerSource
	stores *repository.Stores
}

func openEmbedded(ctx context.Context, cfg *config.Config, owners remote.OwnerSource) (*embeddedBackend, error) {
	stores, err := repository.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return &embeddedBackend{
		ServiceStore: remote.NewServiceStore(service.NewNoteService(stores.Notes), owners),
		auth:         service.NewAuthService(stores.Users, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration),
		users:        service.NewUserService(stores.Users),
		owners:       owners,
		stores:       stores,
	}, nil
}

func (b *embeddedBackend) Login(ctx context.Context, email, password string) (*domain.LoginResponse, error) {
	return b.auth.Login(ctx, &domain.LoginRequest{Email: email, Password: password})
}

func (b *embeddedBackend) Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error) {
	return b.auth.RefreshToken(&domain.RefreshTokenRequest{RefreshToken: refreshToken})
}

func (b *embeddedBackend) Register(ctx context.Context, req *domain.RegisterRequest) error {
	return b.auth.Register(ctx, req)
}

func (b *embeddedBackend) UpdateProfile(ctx context.Context, req *domain.UpdateProfileRequest) (*domain.User, error) {
	owner, ok := b.owners.CurrentOwnerKey()
	if !ok {
		return nil, errNotSignedIn
	}
	return b.users.UpdateProfile(ctx, owner, req)
}

func (b *embeddedBackend) Close() error {
	return b.stores.Close()
}

// app is one notesctl process: a session gate driving an engine over a
// backend.
type app struct {
	cfg         *config.Config
	sessionPath string
	gate        *session.Gate
	backend     backend
	engine      *reconcile.Engine
	registry    *prometheus.Registry
}

func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	path, err := sessionPath(opts)
	if err != nil {
		return nil, err
	}

	gate := session.NewGate()

	var b backend
	if opts.Embedded {
		b, err = openEmbedded(ctx, cfg, gate)
		if err != nil {
			return nil, err
		}
	} else {
		b = httpBackend{remote.NewHTTPStore(cfg.Client.APIURL, cfg.Client.RequestTimeout, gate)}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	rollback := reconcile.RollbackSnapshot
	if cfg.Client.DeleteRollback == config.DeleteRollbackRecord {
		rollback = reconcile.RollbackRecord
	}
	engine := reconcile.New(ctx, b, reconcile.Options{
		DeleteRollback:        rollback,
		RollbackFailedUpdates: cfg.Client.RollbackFailedUpdates,
		NotifyBuffer:          cfg.Client.NotifyBuffer,
		Metrics:               reconcile.NewMetrics(registry),
	})
	gate.OnChange(engine.SetOwner)

	return &app{
		cfg:         cfg,
		sessionPath: path,
		gate:        gate,
		backend:     b,
		engine:      engine,
		registry:    registry,
	}, nil
}

func sessionPath(opts *RootOptions) (string, error) {
	if opts.SessionPath != "" {
		return opts.SessionPath, nil
	}
	return session.DefaultPath()
}

// resume signs in with the saved session, renewing it if it has expired.
func (a *app) resume(ctx context.Context) error {
	s, err := session.Load(a.sessionPath)
	if errors.Is(err, os.ErrNotExist) {
		return errNotSignedIn
	}
	if err != nil {
		return err
	}

	err = a.gate.Establish(s)
	if !errors.Is(err, session.ErrExpired) {
		return err
	}

	glog.V(1).Infof("saved session for %q expired, renewing", s.OwnerKey)
	s, err = session.Renew(ctx, a.backend, s)
	if err != nil {
		return fmt.Errorf("session expired, run `notesctl login` again: %w", err)
	}
	if err := session.Save(a.sessionPath, s); err != nil {
		return err
	}
	return a.gate.Establish(s)
}

// signIn logs in, persists the session and makes it current.
func (a *app) signIn(ctx context.Context, email, password string) (session.Session, error) {
	s, err := session.Login(ctx, a.backend, email, password)
	if err != nil {
		return session.Session{}, err
	}
	if err := session.Save(a.sessionPath, s); err != nil {
		return session.Session{}, err
	}
	return s, a.gate.Establish(s)
}

// refresh loads the owner's notes into the engine once.
func (a *app) refresh(ctx context.Context) error {
	owner, ok := a.gate.CurrentOwnerKey()
	if !ok {
		return errNotSignedIn
	}
	records, err := a.backend.List(ctx, owner)
	if err != nil {
		a.engine.RefreshFailed(owner, err)
		return fmt.Errorf("failed to load notes: %w", err)
	}
	return a.engine.ApplyRefresh(owner, records)
}

// settle waits for every remote call and reports the failures the engine
// absorbed on the way.
func (a *app) settle() error {
	a.engine.Wait()

	var errs []error
	for {
		select {
		case n := <-a.engine.Notifications():
			errs = append(errs, errors.New(n.String()))
		default:
			return errors.Join(errs...)
		}
	}
}

// resolveID finds the note in the view whose id is, or starts with, ref.
func (a *app) resolveID(ref string) (string, error) {
	return matchID(a.engine.View(), ref)
}

func matchID(notes []domain.Note, ref string) (string, error) {
	var found []string
	for _, n := range notes {
		if n.ID == ref {
			return n.ID, nil
		}
		if ref != "" && strings.HasPrefix(n.ID, ref) {
			found = append(found, n.ID)
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w %q", errNoMatch, ref)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%w %q: %s", errAmbiguous, ref, strings.Join(found, ", "))
	}
}

func (a *app) close() {
	a.gate.Clear()
	a.engine.Wait()
	if err := a.backend.Close(); err != nil {
		glog.Warningf("closing backend: %v", err)
	}
}
