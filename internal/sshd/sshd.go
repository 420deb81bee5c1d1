package sshd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/InsulaLabs/msdscript/internal/repl"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	"github.com/pkg/errors"
	gossh "golang.org/x/crypto/ssh"
)

type Config struct {
	Logger         *slog.Logger
	Binding        string
	HostKeyPath    string
	AuthorizedKeys []string // authorized_keys lines; empty accepts any key

	// NewSession builds the REPL session for a connected user.
	NewSession func(ctx context.Context, user string) *repl.Session
}

// Server serves the bubbletea REPL to SSH clients.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	authorized []ssh.PublicKey
	srv        *ssh.Server
}

func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewSession == nil {
		return nil, errors.New("sshd requires a session constructor")
	}

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger.WithGroup("sshd"),
	}
	for i, line := range cfg.AuthorizedKeys {
		if strings.TrimSpace(line) == "" {
			continue
		}
		key, _, _, _, err := gossh.ParseAuthorizedKey([]byte(line))
		if err != nil {
			return nil, errors.Wrapf(err, "ssh.authorizedKeys[%d]", i)
		}
		s.authorized = append(s.authorized, key)
	}
	if len(s.authorized) == 0 {
		s.logger.Warn("No authorized keys configured, any public key will be accepted")
	}

	srv, err := wish.NewServer(
		wish.WithAddress(cfg.Binding),
		wish.WithHostKeyPath(cfg.HostKeyPath),
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			return s.authenticate(ctx, key)
		}),

		ssh.AllocatePty(),

		wish.WithMiddleware(
			bubbletea.Middleware(func(sess ssh.Session) (tea.Model, []tea.ProgramOption) {
				s.logger.Info("New session", "user", sess.User(), "remote_addr", sess.RemoteAddr())
				return s.newModel(sess), []tea.ProgramOption{tea.WithAltScreen()}
			}),
			activeterm.Middleware(),
			logging.Middleware(),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not create ssh server")
	}
	s.srv = srv
	return s, nil
}

func (s *Server) authenticate(ctx ssh.Context, key ssh.PublicKey) bool {
	ok := s.isAuthorized(key)
	if ok {
		s.logger.Info("SSH user authenticated", "user", ctx.User(), "fingerprint", gossh.FingerprintSHA256(key))
	} else {
		s.logger.Debug("SSH authentication failed", "user", ctx.User(), "fingerprint", gossh.FingerprintSHA256(key))
	}
	return ok
}

func (s *Server) isAuthorized(key ssh.PublicKey) bool {
	if len(s.authorized) == 0 {
		return true
	}
	for _, k := range s.authorized {
		if ssh.KeysEqual(k, key) {
			return true
		}
	}
	return false
}

func (s *Server) newModel(sess ssh.Session) tea.Model {
	session := s.cfg.NewSession(sess.Context(), sess.User())
	return repl.NewModel(session)
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting SSH server", "address", s.cfg.Binding)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return errors.Wrap(err, "ssh server")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
		return errors.Wrap(err, "ssh shutdown")
	}
	return nil
}
