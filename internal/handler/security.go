package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// apiKeyHeader carries the caller's raw API key.
const apiKeyHeader = "api_key"

type apiKeyInfoKey struct{}

// requireAPIKey rejects requests without a valid key holding scope.
func (h *Handler) requireAPIKey(scope string) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, err := h.auth.Authenticate(r.Context(), r.Header.Get(apiKeyHeader), scope)
			if err != nil {
				if errors.Is(err, auth.ErrUnauthorized) {
					writeError(w, http.StatusUnauthorized, "unauthorized")
					return
				}
				writeInternal(w, r, errors.Wrap(err, "authenticate"))
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyInfoKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func apiKeyName(ctx context.Context) string {
	if info, ok := ctx.Value(apiKeyInfoKey{}).(*auth.APIKeyInfo); ok {
		return info.Name
	}
	return ""
}
