package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/nearby/internal/credentials"
	"github.com/joshua-takyi/nearby/internal/middleware"
	"github.com/joshua-takyi/nearby/internal/models"
	"github.com/joshua-takyi/nearby/internal/services"
	"github.com/joshua-takyi/nearby/internal/session"
)

// GoogleAuthURL builds the GoTrue authorize URL for the Google provider.
func GoogleAuthURL(supabaseURL, redirectTo string) string {
	q := url.Values{}
	q.Set("provider", "google")
	q.Set("redirect_to", redirectTo)
	return strings.TrimRight(supabaseURL, "/") + "/auth/v1/authorize?" + q.Encode()
}

// GoogleAuth initiates Google OAuth flow via Supabase
func GoogleAuth(supabaseURL, frontendURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		redirectTo := c.Query("redirect_to")
		if redirectTo == "" || !strings.HasPrefix(redirectTo, frontendURL) {
			redirectTo = frontendURL + "/auth/callback"
		}

		c.Redirect(http.StatusTemporaryRedirect, GoogleAuthURL(supabaseURL, redirectTo))
	}
}

// GoogleAuthCallback handles the callback from Google OAuth. Supabase sends
// tokens as URL fragments, which only the browser can read, so this only
// forwards errors and otherwise bounces to the frontend callback page.
func GoogleAuthCallback(frontendURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if errCode := c.Query("error"); errCode != "" {
			q := url.Values{}
			q.Set("error", errCode)
			q.Set("error_description", c.Query("error_description"))
			c.Redirect(http.StatusTemporaryRedirect, frontendURL+"/login?"+q.Encode())
			return
		}

		c.Redirect(http.StatusTemporaryRedirect, frontendURL+"/auth/callback")
	}
}

// Logout revokes the session upstream, clears stored tokens and ends the
// local session so its location watch is released.
func Logout(u *services.UserService, store credentials.Store, registry *session.Registry, secure bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := store.AccessToken(c.Request); ok {
			if err := u.Logout(c.Request.Context(), token); err != nil {
				_ = c.Error(err)
			}
		}
		store.Forget(c.Writer)

		if id, err := c.Cookie(session.CookieName); err == nil && id != "" {
			registry.End(id)
		}
		c.SetCookie(session.CookieName, "", -1, "/", "", secure, true)

		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Logged out successfully"))
	}
}

func currentSession(c *gin.Context) (*session.Session, bool) {
	s, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse("no session attached to request"))
	}
	return s, ok
}
