package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// initScript patches the fingerprints go-rod/stealth leaves alone.
const initScript = `
(function() {
    'use strict';

    try {
        Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
        delete Object.getPrototypeOf(navigator).webdriver;
    } catch (e) {}

    Object.defineProperty(navigator, 'languages', {
        get: () => Object.freeze(['en-US', 'en']),
        configurable: true
    });

    if (!window.chrome) {
        Object.defineProperty(window, 'chrome', { value: {}, writable: true, configurable: false });
    }
    if (!window.chrome.runtime) {
        window.chrome.runtime = { connect: function() {}, sendMessage: function() {} };
    }

    try {
        const query = Permissions.prototype.query;
        Permissions.prototype.query = function(p) {
            if (p && p.name === 'notifications') {
                return Promise.resolve({ state: Notification.permission });
            }
            return query.call(this, p);
        };
    } catch (e) {}

    if (!navigator.hardwareConcurrency) {
        Object.defineProperty(navigator, 'hardwareConcurrency', { get: () => 8, configurable: true });
    }
    if (!navigator.deviceMemory) {
        Object.defineProperty(navigator, 'deviceMemory', { get: () => 8, configurable: true });
    }
})();
`

// CreatePage opens a stealth page with the given user agent and viewport.
func CreatePage(b *rod.Browser, userAgent string, vp Viewport) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, err
	}

	if _, err := page.EvalOnNewDocument(initScript); err != nil {
		page.Close()
		return nil, err
	}

	if userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      userAgent,
			AcceptLanguage: "en-US,en;q=0.9",
		}); err != nil {
			page.Close()
			return nil, err
		}
	}

	vp = vp.orDefault()
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             vp.Width,
		Height:            vp.Height,
		DeviceScaleFactor: 1,
	}); err != nil {
		page.Close()
		return nil, err
	}

	return page, nil
}
