package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/amsc/internal/interfaces"
	"github.com/ternarybob/amsc/internal/services/vocab"
	"github.com/ternarybob/amsc/pkg/models"
)

// Installer pages are slow to render: they wait for the Storage Service.
const installerTimeout = 100 * time.Second

// Navigate loads url in the current session. When the page redirects
// elsewhere, the harness logs in to the dashboard or the Storage Service
// (depending on which one serves url), or runs first-install setup when
// sent to the installer, and then loads url once more. Unless reload is
// set, a session already showing url is left alone.
func (h *Harness) Navigate(ctx context.Context, url string, reload bool) error {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return err
	}
	return h.navigate(ctx, s, url, reload)
}

func (h *Harness) navigate(ctx context.Context, s interfaces.Session, url string, reload bool) error {
	if !reload {
		if current, err := s.CurrentURL(ctx); err == nil && current == url {
			return nil
		}
	}

	landed, err := h.load(ctx, s, url)
	if err != nil {
		return err
	}
	if landed == url {
		return nil
	}

	h.logger.Debug().Str("url", url).Str("landed", landed).Msg("Navigation redirected")
	switch {
	case strings.HasSuffix(pageURLKey(landed), "/installer/welcome/"):
		err = h.setupNewInstall(ctx, s)
	case h.config.IsSSURL(url):
		err = h.loginSS(ctx, s)
	default:
		err = h.login(ctx, s)
	}
	if err != nil {
		return err
	}
	_, err = h.load(ctx, s, url)
	return err
}

// load navigates s to url and returns the URL the session ended up at.
func (h *Harness) load(ctx context.Context, s interfaces.Session, url string) (string, error) {
	if err := s.Navigate(ctx, url); err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrNavigationFailed, url, err)
	}
	landed, err := s.CurrentURL(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", models.ErrNavigationFailed, url, err)
	}
	return landed, nil
}

// Login signs in to the dashboard with the configured user.
func (h *Harness) Login(ctx context.Context) error {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return err
	}
	return h.login(ctx, s)
}

func (h *Harness) login(ctx context.Context, s interfaces.Session) error {
	if _, err := h.load(ctx, s, h.LoginURL()); err != nil {
		return err
	}
	err := h.submitCredentials(ctx, s, h.config.Dashboard.Username, h.config.Dashboard.Password, vocab.RoleLoginSubmit)
	if err != nil {
		return fmt.Errorf("dashboard login failed: %w", err)
	}
	h.logger.Info().Str("user", h.config.Dashboard.Username).Msg("Logged in to dashboard")
	return nil
}

// LoginSS signs in to the Storage Service with the configured user.
func (h *Harness) LoginSS(ctx context.Context) error {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return err
	}
	return h.loginSS(ctx, s)
}

func (h *Harness) loginSS(ctx context.Context, s interfaces.Session) error {
	if _, err := h.load(ctx, s, h.SSLoginURL()); err != nil {
		return err
	}
	ss := h.config.StorageService
	if err := h.submitCredentials(ctx, s, ss.Username, ss.Password, vocab.RoleSSLoginSubmit); err != nil {
		return fmt.Errorf("storage service login failed: %w", err)
	}
	h.logger.Info().Str("user", ss.Username).Msg("Logged in to storage service")
	return nil
}

// submitCredentials fills a login form. A form that never renders is
// tolerated by the wait; the lookups that follow report it.
func (h *Harness) submitCredentials(ctx context.Context, s interfaces.Session, username, password string, submit vocab.Role) error {
	userLoc := h.vocab.MustSelector(vocab.RoleLoginUsername)
	h.waiter.Present(ctx, s, userLoc, 0)

	if err := typeInto(ctx, s, userLoc, username); err != nil {
		return err
	}
	if err := typeInto(ctx, s, h.vocab.MustSelector(vocab.RoleLoginPassword), password); err != nil {
		return err
	}
	return click(ctx, s, h.vocab.MustSelector(submit))
}

// SetupNewInstall completes the installer of a fresh dashboard: it creates
// the first user and registers the dashboard with the Storage Service.
func (h *Harness) SetupNewInstall(ctx context.Context) error {
	s, err := h.sessions.Current(ctx)
	if err != nil {
		return err
	}
	return h.setupNewInstall(ctx, s)
}

func (h *Harness) setupNewInstall(ctx context.Context, s interfaces.Session) error {
	h.logger.Info().Str("url", h.config.Dashboard.URL).Msg("Setting up new dashboard install")

	apiKey, err := h.SSAPIKey(ctx)
	if err != nil {
		return err
	}
	if err := h.createFirstUser(ctx, s); err != nil {
		return err
	}

	keyLoc := interfaces.ID("id_storage_service_apikey")
	h.waiter.Present(ctx, s, keyLoc, installerTimeout)
	if err := typeInto(ctx, s, keyLoc, apiKey); err != nil {
		return fmt.Errorf("storage service registration failed: %w", err)
	}
	if err := click(ctx, s, h.vocab.MustSelector(vocab.RoleSSDefaultRegistration)); err != nil {
		return fmt.Errorf("storage service registration failed: %w", err)
	}
	return nil
}

func (h *Harness) createFirstUser(ctx context.Context, s interfaces.Session) error {
	if _, err := h.load(ctx, s, h.InstallerWelcomeURL()); err != nil {
		return err
	}
	h.waiter.Present(ctx, s, interfaces.ID("id_org_name"), 0)

	am := h.config.Dashboard
	fields := []struct {
		id    string
		value string
	}{
		{"id_org_name", am.Username},
		{"id_org_identifier", am.Username},
		{"id_username", am.Username},
		{"id_first_name", am.Username},
		{"id_last_name", am.Username},
		{"id_email", am.Email},
		{"id_password1", am.Password},
		{"id_password2", am.Password},
	}
	for _, f := range fields {
		if err := typeInto(ctx, s, interfaces.ID(f.id), f.value); err != nil {
			return fmt.Errorf("failed to fill %s: %w", f.id, err)
		}
	}
	if err := click(ctx, s, h.vocab.MustSelector(vocab.RoleLoginSubmit)); err != nil {
		return err
	}

	cont := interfaces.CSS("input[value=Continue]")
	h.waiter.Present(ctx, s, cont, installerTimeout)
	if err := click(ctx, s, cont); err != nil {
		return fmt.Errorf("installer did not offer to continue: %w", err)
	}
	h.logger.Info().Str("user", am.Username).Msg("Created first dashboard user")
	return nil
}

// SSAPIKey returns the Storage Service API key: the configured one, else
// the key shown on the first user's edit page, read once in an auxiliary
// session and cached.
func (h *Harness) SSAPIKey(ctx context.Context) (string, error) {
	h.mu.Lock()
	key := h.ssAPIKey
	h.mu.Unlock()
	if key != "" {
		return key, nil
	}

	err := h.sessions.WithAuxiliary(ctx, func(s interfaces.Session) error {
		if err := h.loginSS(ctx, s); err != nil {
			return err
		}
		if _, err := h.load(ctx, s, h.SSUserEditURL()); err != nil {
			return err
		}
		code := interfaces.CSS("code")
		h.waiter.Present(ctx, s, code, 20*time.Second)
		el, err := s.FindElement(ctx, code)
		if err != nil {
			return err
		}
		text, err := el.Text(ctx)
		if err != nil {
			return err
		}
		key = strings.TrimSpace(text)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read storage service api key: %w", err)
	}

	h.mu.Lock()
	h.ssAPIKey = key
	h.mu.Unlock()
	h.logger.Debug().Msg("Read storage service api key")
	return key, nil
}
