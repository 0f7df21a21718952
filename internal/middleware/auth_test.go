package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/ridepool/backend/internal/models"
)

type mockValidator struct {
	accountID uuid.UUID
	err       error
}

func (m mockValidator) ValidateToken(_ context.Context, _ string) (uuid.UUID, error) {
	return m.accountID, m.err
}

type mockAccounts struct {
	accounts map[uuid.UUID]*models.Account
}

func (m mockAccounts) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return a, nil
}

// ok200 proves the middleware let the request through and exposes the
// account it stored in context.
func ok200(t *testing.T, want uuid.UUID) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		acc := AccountFromCtx(r.Context())
		if acc == nil || acc.ID != want {
			t.Errorf("handler saw account %v, want %s", acc, want)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTAuth_ValidToken(t *testing.T) {
	id := uuid.New()
	accounts := mockAccounts{accounts: map[uuid.UUID]*models.Account{id: {ID: id}}}
	handler := JWTAuth(mockValidator{accountID: id}, accounts)(ok200(t, id))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	handler := JWTAuth(mockValidator{}, mockAccounts{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run without credentials")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTAuth_BadToken(t *testing.T) {
	handler := JWTAuth(mockValidator{err: errors.New("expired")}, mockAccounts{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run with a bad token")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expiredtoken")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestJWTAuth_UnknownAccount(t *testing.T) {
	handler := JWTAuth(mockValidator{accountID: uuid.New()}, mockAccounts{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler must not run for a deleted account")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
