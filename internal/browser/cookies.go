package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/justmadeid/social-services/internal/models"
)

// CookieParams converts persisted cookies into CDP parameters.
func CookieParams(cookies []models.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if p.Path == "" {
			p.Path = "/"
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		switch proto.NetworkCookieSameSite(c.SameSite) {
		case proto.NetworkCookieSameSiteStrict:
			p.SameSite = proto.NetworkCookieSameSiteStrict
		case proto.NetworkCookieSameSiteLax:
			p.SameSite = proto.NetworkCookieSameSiteLax
		case proto.NetworkCookieSameSiteNone:
			p.SameSite = proto.NetworkCookieSameSiteNone
		}
		params = append(params, p)
	}
	return params
}

// FromNetworkCookies converts browser cookies into the persisted form.
// Session cookies are stored with Expires -1.
func FromNetworkCookies(cookies []*proto.NetworkCookie) []models.Cookie {
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		expires := float64(c.Expires)
		if c.Session || expires <= 0 {
			expires = -1
		}
		out = append(out, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

// SetCookies seeds the page's browser context with cookies.
func SetCookies(page *rod.Page, cookies []models.Cookie) error {
	params := CookieParams(cookies)
	if len(params) == 0 {
		return nil
	}
	return proto.NetworkSetCookies{Cookies: params}.Call(page)
}
