package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/meridianpay/meridian-backend/internal/chain"
)

const (
	// WalletHeader carries the caller's wallet address on every request
	WalletHeader = "X-Wallet-Address"

	// APISecretHeader carries the shared service secret
	APISecretHeader = "X-API-Secret"

	// walletContextKey is the echo context key the wallet address is stored under
	walletContextKey = "wallet_address"
)

// AuthMiddleware authenticates requests by wallet address header plus an
// optional shared API secret.
type AuthMiddleware struct {
	apiSecret string
}

// NewAuthMiddleware creates a new AuthMiddleware. An empty apiSecret
// disables the secret check (local development).
func NewAuthMiddleware(apiSecret string) *AuthMiddleware {
	return &AuthMiddleware{apiSecret: apiSecret}
}

// Authenticate returns an Echo middleware that requires a valid wallet
// address and, when configured, the shared API secret.
func (m *AuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.apiSecret != "" {
				secret := c.Request().Header.Get(APISecretHeader)
				if subtle.ConstantTimeCompare([]byte(secret), []byte(m.apiSecret)) != 1 {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid api secret")
				}
			}

			wallet := strings.TrimSpace(c.Request().Header.Get(WalletHeader))
			if wallet == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing wallet address")
			}
			if !chain.IsHexAddress(wallet) && !chain.IsTronAddress(wallet) {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid wallet address")
			}

			c.Set(walletContextKey, wallet)
			return next(c)
		}
	}
}

// GetWalletAddress returns the authenticated wallet address from the
// context, or "" when unauthenticated.
func GetWalletAddress(c echo.Context) string {
	if wallet, ok := c.Get(walletContextKey).(string); ok {
		return wallet
	}
	return ""
}
