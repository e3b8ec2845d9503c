package model

// TokenPair is an OAuth access/refresh token pair returned by the platform's
// token endpoint. RefreshToken may be empty: some refresh responses rotate
// only the access token, in which case the stored refresh token is retained.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Identity is the platform's externally-asserted description of the account
// that authorized us.
type Identity struct {
	ID          string
	DisplayName string
	AvatarURL   string
}
