package driven

import (
	"context"

	"github.com/rosterhub/rosterhub/internal/domain/model"
)

// PlatformClient is the driven port for the third-party platform's OAuth and
// REST APIs. All calls are subject to the platform's rate limits; the adapter
// is responsible for transport-level retry, callers for admission control.
type PlatformClient interface {
	// AuthCodeURL returns the URL a member visits to begin authorization.
	// state is echoed back to the callback for CSRF correlation.
	AuthCodeURL(state string) string

	// ExchangeCode swaps an authorization code for a token pair.
	ExchangeCode(ctx context.Context, code string) (model.TokenPair, error)

	// RefreshToken obtains a fresh token pair using a stored refresh token.
	// The returned pair's RefreshToken may be empty when the platform does
	// not rotate it.
	RefreshToken(ctx context.Context, refreshToken string) (model.TokenPair, error)

	// Identity fetches the authorizing account's identity using its access token.
	Identity(ctx context.Context, accessToken string) (model.Identity, error)

	// AddGroupMember grants the identified member membership in the target
	// group, using the member's own access token for consent.
	AddGroupMember(ctx context.Context, groupID, memberID, accessToken string) error

	// PostLogMessage posts a log line to the given platform channel.
	PostLogMessage(ctx context.Context, channelRef, text string) error
}
