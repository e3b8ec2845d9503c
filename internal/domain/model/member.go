package model

import "time"

// DefaultDisplayName is used when the platform returns no usable display name.
const DefaultDisplayName = "Unknown User"

// DefaultOrigin is recorded when the verifying client's network origin
// cannot be determined.
const DefaultOrigin = "Unknown"

// Member is one roster entry: the stored OAuth token pair and metadata for a
// single externally-verified identity. Members are keyed by the
// platform-assigned ID in the roster store.
type Member struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	OriginAddr   string    `json:"origin_address"`
	VerifiedAt   time.Time `json:"verified_at"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
}

// Durable reports whether the member holds a refresh token and is therefore
// eligible for token renewal. Non-durable members are evicted on the next
// refresh pass since they can never be renewed.
func (m Member) Durable() bool {
	return m.RefreshToken != ""
}

// Invitable reports whether the member currently holds an access token that a
// group-membership grant could use.
func (m Member) Invitable() bool {
	return m.AccessToken != ""
}

// Normalize fills defaulted fields so a Member never carries an empty display
// name or origin address.
func (m Member) Normalize() Member {
	if m.DisplayName == "" {
		m.DisplayName = DefaultDisplayName
	}
	if m.OriginAddr == "" {
		m.OriginAddr = DefaultOrigin
	}
	return m
}
