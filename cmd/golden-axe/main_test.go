package main

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
)

func TestRouterMatchesEndpoints(t *testing.T) {
	router := newRouter()
	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/query"},
		{"POST", "/query"},
		{"GET", "/query-live"},
		{"GET", "/status"},
		{"GET", "/api/v1/query"},
		{"POST", "/api/v1/query"},
		{"GET", "/api/v1/query-live"},
		{"GET", "/api/v1/status"},
		{"POST", "/api/v0/query"},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(tt.method, "http://localhost"+tt.path, nil)
		if err != nil {
			t.Fatal(err)
		}
		var match mux.RouteMatch
		if !router.Match(req, &match) || match.MatchErr != nil {
			t.Errorf("%s %s: no route", tt.method, tt.path)
		}
	}
}
