// Package pagetoken encodes roster pagination state into self-contained,
// HMAC-signed capability tokens. A token carries everything needed to act on
// a "previous/next page" control later (the action, the target page, the
// actor it is bound to, and its issue time), so no server-side session state
// exists. Validity is enforced at redemption time: tokens expire after a TTL
// and may only be redeemed by the actor they were issued to.
package pagetoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rosterhub/rosterhub/internal/domain/model"
)

// TTL is the maximum age at which a token remains redeemable.
const TTL = 2 * time.Minute

var (
	// ErrExpired is returned when a token is older than the TTL. The caller
	// should present a "no longer valid" outcome and strip the control.
	ErrExpired = errors.New("page token expired")

	// ErrForbidden is returned when the redeemer is not the actor the token
	// was issued to. No page contents are revealed.
	ErrForbidden = errors.New("page token bound to a different actor")

	// ErrMalformed is returned for tokens that fail to parse or verify.
	ErrMalformed = errors.New("malformed page token")
)

// Codec signs and verifies pagination tokens with a shared HMAC secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL overrides the default token TTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) { c.ttl = ttl }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// New creates a Codec signing with the given secret.
func New(secret []byte, opts ...Option) *Codec {
	c := &Codec{
		secret: secret,
		ttl:    TTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Issue encodes a token for the given action, target page, and actor, stamped
// with the current time.
func (c *Codec) Issue(action model.PageAction, targetPage int, actorID string) (string, error) {
	return c.Encode(model.PageToken{
		Action:     action,
		TargetPage: targetPage,
		ActorID:    actorID,
		IssuedAt:   c.now(),
	})
}

// Encode signs the given token fields into an opaque string. The four fields
// round-trip exactly through Decode; the issue time is carried at millisecond
// precision.
func (c *Codec) Encode(t model.PageToken) (string, error) {
	claims := jwt.MapClaims{
		"act":    string(t.Action),
		"pg":     t.TargetPage,
		"sub":    t.ActorID,
		"iat_ms": t.IssuedAt.UnixMilli(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign page token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and unpacks the token fields. It performs no
// expiry or ownership checks; use Redeem for those.
func (c *Codec) Decode(token string) (model.PageToken, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return model.PageToken{}, ErrMalformed
	}

	action, _ := claims["act"].(string)
	actor, _ := claims["sub"].(string)
	page, okPage := claims["pg"].(float64)
	iatMilli, okIat := claims["iat_ms"].(float64)

	if !okPage || !okIat || !model.PageAction(action).Valid() || actor == "" {
		return model.PageToken{}, ErrMalformed
	}

	return model.PageToken{
		Action:     model.PageAction(action),
		TargetPage: int(page),
		ActorID:    actor,
		IssuedAt:   time.UnixMilli(int64(iatMilli)).UTC(),
	}, nil
}

// Redeem validates the token for the given redeemer at the current time and
// returns the action and target page on success. A token strictly older than
// the TTL fails with ErrExpired; a redeemer other than the bound actor fails
// with ErrForbidden regardless of timing.
func (c *Codec) Redeem(token, redeemerID string) (model.PageAction, int, error) {
	t, err := c.Decode(token)
	if err != nil {
		return "", 0, err
	}

	if c.now().Sub(t.IssuedAt) > c.ttl {
		return "", 0, ErrExpired
	}
	if redeemerID != t.ActorID {
		return "", 0, ErrForbidden
	}

	return t.Action, t.TargetPage, nil
}
