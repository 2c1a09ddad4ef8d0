package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

const testWallet = "0x1234567890abcdef1234567890abcdef12345678"

func invoke(t *testing.T, m *AuthMiddleware, setup func(*http.Request)) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches", nil)
	if setup != nil {
		setup(req)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := m.Authenticate()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	return c, handler(c)
}

func TestAuthenticate_ValidWallet(t *testing.T) {
	c, err := invoke(t, NewAuthMiddleware(""), func(req *http.Request) {
		req.Header.Set(WalletHeader, testWallet)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := GetWalletAddress(c); got != testWallet {
		t.Errorf("wallet in context %q, want %q", got, testWallet)
	}
}

func TestAuthenticate_TronWallet(t *testing.T) {
	_, err := invoke(t, NewAuthMiddleware(""), func(req *http.Request) {
		req.Header.Set(WalletHeader, "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuthenticate_MissingWallet(t *testing.T) {
	_, err := invoke(t, NewAuthMiddleware(""), nil)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestAuthenticate_MalformedWallet(t *testing.T) {
	_, err := invoke(t, NewAuthMiddleware(""), func(req *http.Request) {
		req.Header.Set(WalletHeader, "not-a-wallet")
	})
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestAuthenticate_APISecret(t *testing.T) {
	m := NewAuthMiddleware("s3cret")

	_, err := invoke(t, m, func(req *http.Request) {
		req.Header.Set(WalletHeader, testWallet)
		req.Header.Set(APISecretHeader, "s3cret")
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = invoke(t, m, func(req *http.Request) {
		req.Header.Set(WalletHeader, testWallet)
		req.Header.Set(APISecretHeader, "wrong")
	})
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong secret, got %v", err)
	}

	_, err = invoke(t, m, func(req *http.Request) {
		req.Header.Set(WalletHeader, testWallet)
	})
	httpErr, ok = err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for missing secret, got %v", err)
	}
}

func TestGetWalletAddress_Unauthenticated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	if got := GetWalletAddress(c); got != "" {
		t.Errorf("expected empty wallet, got %q", got)
	}
}
