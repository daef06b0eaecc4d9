package tokens

import (
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/internal/config"
	"github.com/gogotex/gogotex/backend/go-collab/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is stamped on tokens minted by GenerateAccessToken when no
// issuer is configured.
const DefaultIssuer = "gogotex-collab"

// GenerateAccessToken creates a signed HS256 access token for the user.
// Issuance belongs to the identity service; this exists for cmd/devtoken and tests.
func GenerateAccessToken(cfg *config.Config, u *models.User, ttl time.Duration) (string, error) {
	iss := cfg.JWT.Issuer
	if iss == "" {
		iss = DefaultIssuer
	}
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":        u.Sub,
		"name":       u.Name,
		"email":      u.Email,
		"iss":        iss,
		"token_type": "access",
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString([]byte(cfg.JWT.Secret))
}
