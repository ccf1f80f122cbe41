package gate

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mri-lab/mri-console/internal/client/nav"
	"github.com/mri-lab/mri-console/internal/client/session"
	"github.com/mri-lab/mri-console/internal/client/transport"
	"github.com/mri-lab/mri-console/internal/logger"
	model "github.com/mri-lab/mri-console/internal/model/session"
)

// Decision is the outcome of the page-load check.
type Decision int

const (
	DecisionAllow Decision = iota
	// DecisionLogin means no session on a protected page.
	DecisionLogin
	// DecisionForbidden means a non-admin on an admin page.
	DecisionForbidden
)

func (d Decision) String() string {
	switch d {
	case DecisionLogin:
		return "login"
	case DecisionForbidden:
		return "forbidden"
	default:
		return "allow"
	}
}

// Options configures a Gate.
type Options struct {
	ProtectedPaths []string
	AdminPaths     []string
	Logger         *zap.Logger
}

// DefaultProtectedPaths are the pages that require a session.
var DefaultProtectedPaths = []string{"/dashboard", "/reconstruction", "/medical-qa"}

// Gate checks the session once when a page loads.
type Gate struct {
	sessions  *session.Service
	navigator nav.Navigator
	protected []string
	admin     []string
	logger    *zap.Logger

	once     sync.Once
	decision Decision
}

// New creates a gate. Nil path lists fall back to the defaults.
func New(sessions *session.Service, navigator nav.Navigator, opts Options) *Gate {
	protected := opts.ProtectedPaths
	if protected == nil {
		protected = DefaultProtectedPaths
	}
	return &Gate{
		sessions:  sessions,
		navigator: navigator,
		protected: protected,
		admin:     opts.AdminPaths,
		logger:    logger.OrNop(opts.Logger).Named("gate"),
	}
}

// Init runs the check for path. Only the first call has any effect; later
// calls return the first decision.
func (g *Gate) Init(path string) Decision {
	g.once.Do(func() {
		g.decision = g.check(path)
	})
	return g.decision
}

func (g *Gate) check(path string) Decision {
	sess, ok := g.sessions.Get()

	if g.IsProtected(path) && !ok {
		g.logger.Info("no session on protected page", zap.String("path", path))
		g.navigator.Navigate(nav.PathLogin)
		return DecisionLogin
	}

	if g.IsAdminPath(path) && (!ok || sess.Role != model.RoleAdmin) {
		g.logger.Info("non-admin on admin page", zap.String("path", path), zap.String("username", sess.Username))
		g.navigator.Navigate(nav.PathDashboard)
		return DecisionForbidden
	}

	return DecisionAllow
}

// IsProtected reports whether path is under a protected prefix.
func (g *Gate) IsProtected(path string) bool {
	return matchAny(path, g.protected)
}

// IsAdminPath reports whether path is under an admin prefix.
func (g *Gate) IsAdminPath(path string) bool {
	return matchAny(path, g.admin)
}

// Logout clears the session and goes to the login page.
func (g *Gate) Logout() error {
	err := g.sessions.Clear()
	if err != nil {
		g.logger.Warn("failed to clear session on logout", zap.Error(err))
	}
	g.navigator.Navigate(nav.PathLogin)
	return err
}

// Transport returns the passive authorization middleware for outgoing calls.
func (g *Gate) Transport() transport.Middleware {
	return transport.PassiveAuth(g.sessions)
}

// Match is the prefix rule shared by protected and admin lists.
func Match(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func matchAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if Match(path, p) {
			return true
		}
	}
	return false
}
