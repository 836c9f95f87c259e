package browser

import (
	"log/slog"
	"time"

	"github.com/go-rod/rod"
)

// consentTexts are the buttons of the platform's cookie sheet, least
// permissive first.
var consentTexts = []string{
	"Refuse non-essential cookies",
	"Accept all cookies",
}

// dismissConsent closes the cookie sheet if one is showing. It never fails.
func dismissConsent(page *rod.Page, timeout time.Duration, logger *slog.Logger) bool {
	const clickJS = `(text) => {
		const nodes = document.querySelectorAll('button, div[role="button"]');
		for (const n of nodes) {
			if (n.textContent.trim() === text) {
				const r = n.getBoundingClientRect();
				if (r.width > 0 && r.height > 0) {
					n.click();
					return true;
				}
			}
		}
		return false;
	}`

	for _, text := range consentTexts {
		clicked := false
		_ = withTimeout(page, timeout, func(p *rod.Page) error {
			res, err := p.Eval(clickJS, text)
			if err != nil {
				return err
			}
			clicked = res.Value.Bool()
			return nil
		})
		if clicked {
			logger.Debug("dismissed cookie consent", "text", text)
			return true
		}
	}
	return false
}
