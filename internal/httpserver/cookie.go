package httpserver

import (
	"net/http"
	"time"

	mw "github.com/rakadenta/cakeorder/internal/middleware"
)

// Refresh cookies are SameSite strict in dev and none+secure in prod,
// where the SPA is served from a different origin than the API.
func RefreshCookie(value string, expiresAt time.Time, prod bool) *http.Cookie {
	sameSite := http.SameSiteStrictMode
	if prod {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     mw.RefreshCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   prod,
		SameSite: sameSite,
	}
}

func DeleteRefreshCookie(prod bool) *http.Cookie {
	sameSite := http.SameSiteStrictMode
	if prod {
		sameSite = http.SameSiteNoneMode
	}
	return &http.Cookie{
		Name:     mw.RefreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   prod,
		SameSite: sameSite,
	}
}
