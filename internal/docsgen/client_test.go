package docsgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestGenerateParsesEnvelopedResponse(t *testing.T) {
	var gotIdea string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/docs/generate" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		gotIdea = req["idea"]

		json.NewEncoder(w).Encode(map[string]string{
			"docs": "```json\n" + docsArray + "\n```",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, zap.NewNop())
	docs, err := c.Generate(context.Background(), "a candle shop")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if gotIdea != "a candle shop" {
		t.Errorf("idea = %q", gotIdea)
	}
	if len(docs) != 2 {
		t.Errorf("got %d documents", len(docs))
	}
}

func TestGenerateAcceptsBareTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, docsArray)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, zap.NewNop())
	docs, err := c.Generate(context.Background(), "a bakery")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(docs) != 2 {
		t.Errorf("got %d documents", len(docs))
	}
}

func TestGenerateNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, zap.NewNop())
	_, err := c.Generate(context.Background(), "a bakery")

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if se.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", se.StatusCode)
	}
}

func TestGenerateUnparsableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "sorry, I had trouble with that")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, zap.NewNop())
	_, err := c.Generate(context.Background(), "a bakery")

	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}
