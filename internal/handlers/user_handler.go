package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshua-takyi/nearby/internal/credentials"
	"github.com/joshua-takyi/nearby/internal/middleware"
	"github.com/joshua-takyi/nearby/internal/models"
	"github.com/joshua-takyi/nearby/internal/services"
)

func CreateUser(u *services.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var user models.User
		if err := c.ShouldBindJSON(&user); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		res, err := u.CreateUser(c.Request.Context(), &user)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusCreated, models.SuccessResponse(gin.H{
			"id":    res.ID,
			"email": res.Email,
		}, "account created, check your email to confirm it"))
	}
}

// AuthenticateUser signs in with email and password. The refresh token is
// kept past the browser session only when remember_me is set.
func AuthenticateUser(u *services.UserService, store credentials.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email      string `json:"email" binding:"required,email"`
			Password   string `json:"password" binding:"required"`
			RememberMe bool   `json:"remember_me"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()).WithMessage("invalid request payload"))
			return
		}

		tokenRes, err := u.AuthenticateUser(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse(err.Error()).WithMessage("invalid email or password"))
			return
		}
		if tokenRes == nil || tokenRes.AccessToken == "" {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse("invalid token response"))
			return
		}

		store.Save(c.Writer,
			tokenRes.AccessToken,
			time.Duration(tokenRes.ExpiresIn)*time.Second,
			tokenRes.RefreshToken,
			req.RememberMe,
		)

		// Return user info but not tokens
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"user":        tokenRes.User,
			"remember_me": req.RememberMe,
		}, "signed in"))
	}
}

func Profile() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"user_id":    claims.UserID,
			"email":      claims.Email,
			"role":       claims.GetSafeRole(),
			"username":   claims.Username,
			"fullname":   claims.Fullname,
			"avatar_url": claims.AvatarURL,
			"created_at": claims.CreatedAt,
			"is_admin":   claims.IsAdmin(),
		}, ""))
	}
}
