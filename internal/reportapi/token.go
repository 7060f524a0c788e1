package reportapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

type tokenKey struct{}

// WithToken attaches the caller's bearer token. It is forwarded unchanged on
// every upstream call made with the returned context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFrom returns the bearer token attached to ctx, if any.
func TokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// Owner returns the key under which local records of the caller are kept.
// It is a digest of the bearer token; callers without a token share "".
func Owner(ctx context.Context) string {
	return ownerKey(TokenFrom(ctx))
}

func ownerKey(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}
