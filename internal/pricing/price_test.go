package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
)

func TestUnitPriceUSD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"monero":{"usd":162.35}}`))
	}))
	defer srv.Close()

	s := NewService(nil, srv.URL)
	price := s.UnitPriceUSD(context.Background())
	if !price.Equal(decimal.RequireFromString("162.35")) {
		t.Fatalf("prix = %s, attendu 162.35", price)
	}
}

func TestFallbackOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"JSON malformé", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("oops"))
		}},
		{"réponse vide", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			s := NewService(nil, srv.URL)
			if price := s.UnitPriceUSD(context.Background()); !price.Equal(fallbackUSD) {
				t.Fatalf("prix = %s, attendu la valeur de repli %s", price, fallbackUSD)
			}
		})
	}
}

func TestFallbackWhenUnreachable(t *testing.T) {
	s := NewService(nil, "http://127.0.0.1:1/price")
	if price := s.UnitPriceUSD(context.Background()); !price.Equal(fallbackUSD) {
		t.Fatalf("prix = %s, attendu la valeur de repli", price)
	}
}
