package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/indexsupply/golden-axe/query"
	"github.com/indexsupply/golden-axe/services"
)

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", query.NewError(query.ErrValidation, "bad"), http.StatusBadRequest},
		{"parse", query.NewError(query.ErrParse, "bad"), http.StatusBadRequest},
		{"signature", query.NewError(query.ErrSignature, "bad"), http.StatusBadRequest},
		{"cursor", query.NewError(query.ErrCursor, "bad"), http.StatusBadRequest},
		{"decode", query.NewError(query.ErrDecode, "bad"), http.StatusBadRequest},
		{"timeout", query.NewError(query.ErrTimeout, "slow"), http.StatusRequestTimeout},
		{"storage", query.NewError(query.ErrStorage, "down"), http.StatusInternalServerError},
		{"unknown key", services.ErrUnknownApiKey, http.StatusUnauthorized},
		{"disabled", services.ErrAccountDisabled, http.StatusForbidden},
		{"rate limited", services.ErrRateLimited, http.StatusTooManyRequests},
		{"too many streams", services.ErrTooManyStreams, http.StatusTooManyRequests},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := errorStatus(tc.err); got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestApiKeySources(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/query?api-key=k1", nil)
	if got := apiKey(r); got != "k1" {
		t.Errorf("query param: got %q", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/api/v1/query", nil)
	r.Header.Set("Api-Key", "k2")
	if got := apiKey(r); got != "k2" {
		t.Errorf("header: got %q", got)
	}
	r = httptest.NewRequest(http.MethodGet, "/api/v1/query", nil)
	r.Header.Set("Authorization", "Bearer k3")
	if got := apiKey(r); got != "k3" {
		t.Errorf("bearer: got %q", got)
	}
}

func TestLegacyRows(t *testing.T) {
	result := &services.QueryResult{
		Columns: []query.OutputColumn{{Name: "from"}, {Name: "tokens"}},
		Rows:    [][]any{{"0xabc", "7"}},
	}
	rows := legacyRows(result)
	if len(rows) != 2 {
		t.Fatalf("expected header plus one row, got %d", len(rows))
	}
	if rows[0][0] != "from" || rows[0][1] != "tokens" {
		t.Errorf("unexpected header %v", rows[0])
	}

	empty := legacyRows(&services.QueryResult{Columns: result.Columns})
	if len(empty) != 0 {
		t.Errorf("empty result must not emit a header, got %v", empty)
	}
}
