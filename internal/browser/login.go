package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/pquerna/otp/totp"

	"github.com/justmadeid/social-services/internal/config"
	"github.com/justmadeid/social-services/internal/logging"
	"github.com/justmadeid/social-services/internal/models"
	"github.com/justmadeid/social-services/internal/session"
)

// LoginURL is where the interactive login flow starts.
const LoginURL = "https://x.com/i/flow/login"

// Selectors used during login and as the signed-in marker.
const (
	SelectorHome          = `[data-testid="primaryColumn"]`
	selectorUsername      = `input[autocomplete="username"]`
	selectorTextInput     = `input[type="text"]`
	selectorPassword      = `input[name="password"]`
	selectorChallengeText = `input[data-testid="ocfEnterTextTextInput"]`
)

var _ session.Authenticator = (*LoginFlow)(nil)

// ErrTwoFactorRequired is returned when the account asks for a code and the
// credential carries no TOTP secret.
var ErrTwoFactorRequired = errors.New("two-factor code required but no TOTP secret configured")

// LoginFlow drives the platform's login form in a fresh browser.
type LoginFlow struct {
	launcher *Launcher
	cfg      *config.Config
	logger   *slog.Logger
	step     time.Duration
	now      func() time.Time
}

// NewLoginFlow creates a login flow.
func NewLoginFlow(l *Launcher, cfg *config.Config, logger *slog.Logger) *LoginFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginFlow{
		launcher: l,
		cfg:      cfg,
		logger:   logger.With("component", "login"),
		step:     2 * time.Second,
		now:      time.Now,
	}
}

// Authenticate logs in with creds and returns every cookie the browser holds
// afterwards.
func (f *LoginFlow) Authenticate(ctx context.Context, creds models.Credentials) (*session.AuthResult, error) {
	logger := logging.FromContext(ctx, f.logger).With("username", creds.Username)

	inst, err := f.launcher.Launch(ctx, LoginViewport)
	if err != nil {
		return nil, err
	}
	defer inst.Close()

	page, err := CreatePage(inst.Browser, DefaultUserAgent, LoginViewport)
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	logger.Info("navigating to login page")
	if err := page.Navigate(LoginURL); err != nil {
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	timeout := f.cfg.PageReadyTimeout
	user, err := findWithin(page, timeout, firstOf(selectorUsername, selectorTextInput))
	if err != nil {
		return nil, fmt.Errorf("username field not found: %w", err)
	}
	dismissConsent(page, time.Second, logger)

	if err := f.fill(ctx, user, creds.Username); err != nil {
		return nil, fmt.Errorf("failed to enter username: %w", err)
	}
	if err := f.clickButton(page, "Next"); err != nil {
		return nil, err
	}

	if err := f.enterPassword(ctx, page, creds, logger); err != nil {
		return nil, err
	}
	if err := f.clickButton(page, "Log in"); err != nil {
		return nil, err
	}

	if err := f.twoFactor(ctx, page, creds, logger); err != nil {
		return nil, err
	}

	confirmed := true
	if _, err := findWithin(page, timeout, bySelector(SelectorHome)); err != nil {
		confirmed = false
		logger.Warn("signed-in marker did not appear", "block", detectBlock(page), "error", err)
	}

	cookies, err := inst.Browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("failed to export cookies: %w", err)
	}

	logger.Info("login flow finished", "cookies", len(cookies), "confirmed", confirmed)
	return &session.AuthResult{
		Cookies:         FromNetworkCookies(cookies),
		MarkerConfirmed: confirmed,
	}, nil
}

// enterPassword fills the password, first answering the alternate-identifier
// prompt the platform shows for unusual sign-ins.
func (f *LoginFlow) enterPassword(ctx context.Context, page *rod.Page, creds models.Credentials, logger *slog.Logger) error {
	timeout := f.cfg.PageReadyTimeout

	el, err := findWithin(page, timeout, firstOf(selectorPassword, selectorChallengeText))
	if err != nil {
		return fmt.Errorf("password field not found: %w", err)
	}

	if name, _ := el.Attribute("name"); name == nil || *name != "password" {
		logger.Info("answering alternate identifier prompt")
		if err := f.fill(ctx, el, creds.Username); err != nil {
			return fmt.Errorf("failed to enter identifier: %w", err)
		}
		if err := f.clickButton(page, "Next"); err != nil {
			return err
		}
		if el, err = findWithin(page, timeout, bySelector(selectorPassword)); err != nil {
			return fmt.Errorf("password field not found: %w", err)
		}
	}

	if err := f.fill(ctx, el, creds.Password); err != nil {
		return fmt.Errorf("failed to enter password: %w", err)
	}
	return nil
}

// twoFactor submits a TOTP code when the account asks for one.
func (f *LoginFlow) twoFactor(ctx context.Context, page *rod.Page, creds models.Credentials, logger *slog.Logger) error {
	el, err := findWithin(page, f.step*3, firstOf(SelectorHome, selectorChallengeText))
	if err != nil {
		return nil
	}
	if id, _ := el.Attribute("data-testid"); id == nil || *id != "ocfEnterTextTextInput" {
		return nil
	}

	if strings.TrimSpace(creds.TOTPSecret) == "" {
		return ErrTwoFactorRequired
	}
	code, err := TwoFactorCode(creds.TOTPSecret, f.now())
	if err != nil {
		return err
	}

	logger.Info("submitting two-factor code")
	if err := f.fill(ctx, el, code); err != nil {
		return fmt.Errorf("failed to enter two-factor code: %w", err)
	}
	return f.clickButton(page, "Next")
}

// TwoFactorCode returns the current TOTP code for secret.
func TwoFactorCode(secret string, now time.Time) (string, error) {
	secret = strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	code, err := totp.GenerateCode(secret, now)
	if err != nil {
		return "", fmt.Errorf("failed to generate two-factor code: %w", err)
	}
	return code, nil
}

func (f *LoginFlow) fill(ctx context.Context, el *rod.Element, text string) error {
	if err := Sleep(ctx, f.step); err != nil {
		return err
	}
	return el.Input(text)
}

func (f *LoginFlow) clickButton(page *rod.Page, label string) error {
	el, err := findWithin(page, f.cfg.PageReadyTimeout, func(p *rod.Page) (*rod.Element, error) {
		return p.ElementR(`button, div[role="button"]`, "^"+label+"$")
	})
	if err != nil {
		return fmt.Errorf("%q button not found: %w", label, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %q: %w", label, err)
	}
	return Sleep(page.GetContext(), f.step)
}
