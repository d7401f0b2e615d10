package handlers

import (
	"net/http"
	"time"

	"github.com/AnshRaj112/bugtracker-backend/internal/middleware"
)

const refreshTokenCookie = "refreshToken"

// CookiePolicy decides the attributes of the token cookies.
type CookiePolicy struct {
	Secure     bool
	SameSite   http.SameSite
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// NewCookiePolicy returns Secure, SameSite=Strict cookies in production and
// SameSite=Lax cookies elsewhere.
func NewCookiePolicy(production bool, accessTTL, refreshTTL time.Duration) CookiePolicy {
	p := CookiePolicy{SameSite: http.SameSiteLaxMode, AccessTTL: accessTTL, RefreshTTL: refreshTTL}
	if production {
		p.Secure = true
		p.SameSite = http.SameSiteStrictMode
	}
	return p
}

func (p CookiePolicy) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

// SetTokens writes both token cookies.
func (p CookiePolicy) SetTokens(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, p.cookie(middleware.AccessTokenCookie, access, p.AccessTTL))
	http.SetCookie(w, p.cookie(refreshTokenCookie, refresh, p.RefreshTTL))
}

// Clear expires both token cookies.
func (p CookiePolicy) Clear(w http.ResponseWriter) {
	for _, name := range []string{middleware.AccessTokenCookie, refreshTokenCookie} {
		c := p.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}
