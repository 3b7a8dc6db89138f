package credentials

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func cookiesByName(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestSaveRemembered(t *testing.T) {
	cs := NewCookieStore(true)
	rec := httptest.NewRecorder()
	cs.Save(rec, "access", time.Hour, "refresh", true)

	cookies := cookiesByName(rec)
	rt := cookies[RefreshTokenCookie]
	if rt == nil || rt.Value != "refresh" || rt.MaxAge != int(RememberFor.Seconds()) {
		t.Fatalf("refresh cookie = %+v", rt)
	}
	if !rt.HttpOnly || !rt.Secure {
		t.Error("refresh cookie must be HttpOnly and Secure")
	}
	if cookies[RememberCookie] == nil || cookies[RememberCookie].Value != "1" {
		t.Error("remember flag not set")
	}
	if at := cookies[AccessTokenCookie]; at == nil || at.MaxAge != 3600 {
		t.Errorf("access cookie = %+v", at)
	}
}

func TestSaveNotRemembered(t *testing.T) {
	cs := NewCookieStore(false)
	rec := httptest.NewRecorder()
	cs.Save(rec, "access", time.Hour, "refresh", false)

	cookies := cookiesByName(rec)
	if rt := cookies[RefreshTokenCookie]; rt == nil || rt.MaxAge != 0 || !rt.Expires.IsZero() {
		t.Errorf("refresh cookie should be a session cookie: %+v", rt)
	}
	if rm := cookies[RememberCookie]; rm == nil || rm.MaxAge >= 0 {
		t.Errorf("remember flag should be cleared: %+v", rm)
	}
}

func TestReadAndForget(t *testing.T) {
	cs := NewCookieStore(false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "a"})
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "r"})
	req.AddCookie(&http.Cookie{Name: RememberCookie, Value: "1"})

	if v, ok := cs.AccessToken(req); !ok || v != "a" {
		t.Errorf("AccessToken = %q, %v", v, ok)
	}
	if v, ok := cs.RefreshToken(req); !ok || v != "r" {
		t.Errorf("RefreshToken = %q, %v", v, ok)
	}
	if !cs.Remembered(req) {
		t.Error("Remembered = false")
	}

	rec := httptest.NewRecorder()
	cs.Forget(rec)
	for name, c := range cookiesByName(rec) {
		if c.MaxAge >= 0 {
			t.Errorf("%s not expired", name)
		}
	}
	if len(rec.Result().Cookies()) != 3 {
		t.Errorf("Forget cleared %d cookies, want 3", len(rec.Result().Cookies()))
	}
}

func TestMissingCookies(t *testing.T) {
	cs := NewCookieStore(false)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := cs.RefreshToken(req); ok {
		t.Error("expected no refresh token")
	}
	if cs.Remembered(req) {
		t.Error("expected not remembered")
	}
}
