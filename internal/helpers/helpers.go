package helpers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/golang-jwt/jwt/v5"
)

const EventsFolder = "events"

type CustomClaims struct {
	Role        string `json:"role"`
	Email       string `json:"email"`
	AppMetadata struct {
		Provider  string   `json:"provider"`
		Providers []string `json:"providers"`
		Roles     []string `json:"roles,omitempty"`
	} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// TokenValidator verifies Supabase access tokens against the project JWKS.
// The key set is fetched on first use and refreshed in the background.
type TokenValidator struct {
	jwksURL string

	mu   sync.Mutex
	jwks *keyfunc.JWKS
}

func NewTokenValidator(supabaseURL string) *TokenValidator {
	return &TokenValidator{
		jwksURL: strings.TrimRight(supabaseURL, "/") + "/auth/v1/.well-known/jwks.json",
	}
}

func (tv *TokenValidator) keySet() (*keyfunc.JWKS, error) {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	if tv.jwks != nil {
		return tv.jwks, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	jwks, err := keyfunc.Get(tv.jwksURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   time.Hour,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %v", err)
	}
	tv.jwks = jwks
	return jwks, nil
}

func (tv *TokenValidator) ValidateToken(tokenStr string) (*CustomClaims, error) {
	if tokenStr == "" {
		return nil, errors.New("token is empty")
	}

	jwks, err := tv.keySet()
	if err != nil {
		return nil, err
	}

	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, jwks.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %v", err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	return claims, nil
}

// Close stops the background JWKS refresh.
func (tv *TokenValidator) Close() {
	tv.mu.Lock()
	defer tv.mu.Unlock()
	if tv.jwks != nil {
		tv.jwks.EndBackground()
		tv.jwks = nil
	}
}

var (
	hasLower   = regexp.MustCompile(`[a-z]`)
	hasUpper   = regexp.MustCompile(`[A-Z]`)
	hasNumber  = regexp.MustCompile(`\d`)
	hasSpecial = regexp.MustCompile(`[@$!%*?&]`)
)

func IsPasswordStrong(password string) bool {
	if len(password) < 8 {
		return false
	}
	return hasLower.MatchString(password) &&
		hasUpper.MatchString(password) &&
		hasNumber.MatchString(password) &&
		hasSpecial.MatchString(password)
}

// StringTrim trims whitespace and surrounding quotes, which show up when
// clients template ids into paths.
func StringTrim(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, "\"'")
}

// UploadImage copies a remote or local image into the given Cloudinary
// folder and returns the secure URL and public id.
func UploadImage(ctx context.Context, cld *cloudinary.Cloudinary, source, folder string) (string, string, error) {
	if strings.TrimSpace(source) == "" {
		return "", "", errors.New("empty image source")
	}

	uploadResult, err := cld.Upload.Upload(ctx, source, uploader.UploadParams{
		Folder: folder,
		Tags:   []string{"nearby-app"},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload image %s: %v", source, err)
	}
	if uploadResult.Error.Message != "" {
		return "", "", fmt.Errorf("failed to upload image %s: %s", source, uploadResult.Error.Message)
	}

	return uploadResult.SecureURL, uploadResult.PublicID, nil
}

// DeleteImages removes previously uploaded images; failures are returned joined.
func DeleteImages(ctx context.Context, cld *cloudinary.Cloudinary, publicIDs []string) error {
	var errs []error
	for _, id := range publicIDs {
		if _, err := cld.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: id}); err != nil {
			errs = append(errs, fmt.Errorf("destroy %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// IsHostedImage reports whether url already lives on Cloudinary.
func IsHostedImage(url string) bool {
	return strings.Contains(url, "res.cloudinary.com/")
}
