package token

import "context"

// Provider is the token interface consumed by the REST gateway and
// both WebSocket channels. *Authority satisfies this interface.
type Provider interface {
	AccessToken() string
	ClientID() string
	UserID() string
	Login() string
	Validate(ctx context.Context, generate bool) error
}
