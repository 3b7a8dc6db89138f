// Package credentials keeps a signed-in user's tokens between requests.
// Passwords never pass through it.
package credentials

import (
	"net/http"
	"time"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
	RememberCookie     = "remember_me"

	RememberFor = 30 * 24 * time.Hour
)

type Store interface {
	// Save stores the token pair. The refresh token outlives the browser
	// session only when remember is true.
	Save(w http.ResponseWriter, accessToken string, accessTTL time.Duration, refreshToken string, remember bool)
	AccessToken(r *http.Request) (string, bool)
	RefreshToken(r *http.Request) (string, bool)
	// Remembered reports whether the user opted in on their last login.
	Remembered(r *http.Request) bool
	Forget(w http.ResponseWriter)
}

// CookieStore keeps tokens in HttpOnly cookies.
type CookieStore struct {
	Secure bool
	Domain string
	Path   string
}

func NewCookieStore(secure bool) *CookieStore {
	return &CookieStore{Secure: secure, Path: "/"}
}

func (cs *CookieStore) Save(w http.ResponseWriter, accessToken string, accessTTL time.Duration, refreshToken string, remember bool) {
	cs.set(w, AccessTokenCookie, accessToken, accessTTL)

	if refreshToken == "" {
		return
	}
	if remember {
		cs.set(w, RefreshTokenCookie, refreshToken, RememberFor)
		cs.set(w, RememberCookie, "1", RememberFor)
		return
	}
	// Session cookie: gone when the browser closes.
	cs.set(w, RefreshTokenCookie, refreshToken, 0)
	cs.clear(w, RememberCookie)
}

func (cs *CookieStore) AccessToken(r *http.Request) (string, bool) {
	return cs.get(r, AccessTokenCookie)
}

func (cs *CookieStore) RefreshToken(r *http.Request) (string, bool) {
	return cs.get(r, RefreshTokenCookie)
}

func (cs *CookieStore) Remembered(r *http.Request) bool {
	v, ok := cs.get(r, RememberCookie)
	return ok && v == "1"
}

func (cs *CookieStore) Forget(w http.ResponseWriter) {
	cs.clear(w, AccessTokenCookie)
	cs.clear(w, RefreshTokenCookie)
	cs.clear(w, RememberCookie)
}

func (cs *CookieStore) get(r *http.Request, name string) (string, bool) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

func (cs *CookieStore) set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cs.path(),
		Domain:   cs.Domain,
		Secure:   cs.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl > 0 {
		c.MaxAge = int(ttl.Seconds())
		c.Expires = time.Now().Add(ttl)
	}
	http.SetCookie(w, c)
}

func (cs *CookieStore) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     cs.path(),
		Domain:   cs.Domain,
		Secure:   cs.Secure,
		HttpOnly: true,
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
}

func (cs *CookieStore) path() string {
	if cs.Path == "" {
		return "/"
	}
	return cs.Path
}
