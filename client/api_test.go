package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAPIEnvelopeDecoding(t *testing.T) {
	t.Run("success envelope unwraps data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization = %q, want Bearer tok", got)
			}
			writeEnvelope(w, map[string]any{
				"user": User{ID: "u1", Username: "alice", FullName: "Alice"},
			})
		}))
		defer srv.Close()

		api := NewAPI(srv.URL)
		api.Token = "tok"

		me, err := api.AuthCheck(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if me.ID != "u1" || me.Username != "alice" {
			t.Fatalf("user = %+v, want u1/alice", me)
		}
	})

	t.Run("error envelope surfaces as APIError", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"code":    3003,
				"message": "Invalid username or password.",
			})
		}))
		defer srv.Close()

		api := NewAPI(srv.URL)

		_, err := api.Login(context.Background(), "alice", "wrong")
		if err == nil {
			t.Fatal("expected an error")
		}

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("error type = %T, want *APIError", err)
		}
		if apiErr.Code != 3003 || apiErr.HTTPStatus != http.StatusUnauthorized {
			t.Fatalf("APIError = %+v, want code 3003 / http 401", apiErr)
		}
	})

	t.Run("login stores the issued token", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, map[string]any{
				"token": "issued-token",
				"user":  User{ID: "u1", Username: "alice"},
			})
		}))
		defer srv.Close()

		api := NewAPI(srv.URL)
		if _, err := api.Login(context.Background(), "alice", "secret"); err != nil {
			t.Fatal(err)
		}
		if api.Token != "issued-token" {
			t.Fatalf("Token = %q, want issued-token", api.Token)
		}
	})
}
