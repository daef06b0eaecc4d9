package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Authentication failures. Every error returned by a Verifier matches
// exactly one of these with errors.Is.
var (
	ErrMalformed = errors.New("malformed token")
	ErrInvalid   = errors.New("invalid token")
	ErrExpired   = errors.New("token expired")
)

// Identity is the authenticated principal extracted from a verified token.
type Identity struct {
	Subject   string    `json:"sub"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Issuer    string    `json:"iss"`
	ExpiresAt time.Time `json:"exp"`
}

// Verifier validates a raw bearer credential.
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Identity, error)
}

type verifyOptions struct {
	issuer string
}

// VerifyOption customises Verify.
type VerifyOption func(*verifyOptions)

// WithIssuer pins the expected "iss" claim.
func WithIssuer(iss string) VerifyOption {
	return func(o *verifyOptions) { o.issuer = iss }
}

// Verify checks an HMAC-signed JWT against secret at instant now. It has no
// side effects. Signature comparison is done by jwt's HMAC method, which uses
// hmac.Equal.
func Verify(raw, secret string, now time.Time, opts ...VerifyOption) (*Identity, error) {
	var o verifyOptions
	for _, opt := range opts {
		opt(&o)
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: empty token", ErrMalformed)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if o.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(o.issuer))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(parserOpts...).ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		if secret == "" {
			return nil, errors.New("no signing secret configured")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, classify(err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrMalformed)
	}
	id := identityFromClaims(claims)
	id.ExpiresAt = exp.Time.UTC()
	if id.Subject == "" {
		return nil, fmt.Errorf("%w: token carries neither sub nor email", ErrMalformed)
	}
	return id, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
}

// IdentityFromClaims builds an Identity from a decoded claim set. Subject
// falls back to the email claim, which is what older clients carry.
func IdentityFromClaims(claims map[string]interface{}) *Identity {
	return identityFromClaims(jwt.MapClaims(claims))
}

func identityFromClaims(claims jwt.MapClaims) *Identity {
	id := &Identity{}
	id.Subject, _ = claims.GetSubject()
	id.Issuer, _ = claims.GetIssuer()
	id.Email, _ = claims["email"].(string)
	id.Name, _ = claims["name"].(string)
	if id.Subject == "" {
		id.Subject = id.Email
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time.UTC()
	}
	return id
}

// HMACVerifier verifies HS* tokens signed with a shared secret. Revoked, when
// set, is consulted after a successful signature check (e.g. the Redis
// access-token blacklist); a revoked token is reported as ErrInvalid.
type HMACVerifier struct {
	Secret  string
	Issuer  string
	Now     func() time.Time
	Revoked func(ctx context.Context, raw string) (bool, error)
}

func (v *HMACVerifier) Verify(ctx context.Context, raw string) (*Identity, error) {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	var opts []VerifyOption
	if v.Issuer != "" {
		opts = append(opts, WithIssuer(v.Issuer))
	}
	id, err := Verify(raw, v.Secret, now(), opts...)
	if err != nil {
		return nil, err
	}
	if v.Revoked != nil {
		revoked, err := v.Revoked(ctx, raw)
		if err != nil {
			// unknown revocation status fails closed
			return nil, fmt.Errorf("%w: revocation check failed: %v", ErrInvalid, err)
		}
		if revoked {
			return nil, fmt.Errorf("%w: token revoked", ErrInvalid)
		}
	}
	return id, nil
}
