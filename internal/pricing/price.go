package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// Taux de repli si le ticker est injoignable : affichage uniquement, ne
// bloque jamais le flux de commande.
var fallbackUSD = decimal.RequireFromString("150")

const (
	defaultTickerURL = "https://api.coingecko.com/api/v3/simple/price?ids=monero&vs_currencies=usd"
	cacheKey         = "price:xmr_usd"
	cacheTTL         = 5 * time.Minute
)

// Service fournit le taux XMR/USD pour le formatage d'affichage.
type Service struct {
	client    *http.Client
	redis     *redis.Client
	tickerURL string
}

func NewService(redisClient *redis.Client, tickerURL string) *Service {
	if tickerURL == "" {
		tickerURL = defaultTickerURL
	}
	return &Service{
		client:    &http.Client{Timeout: 10 * time.Second},
		redis:     redisClient,
		tickerURL: tickerURL,
	}
}

// UnitPriceUSD retourne le prix d'un XMR en USD. Toute défaillance est
// absorbée : cache Redis d'abord, fetch ensuite, valeur de repli sinon.
func (s *Service) UnitPriceUSD(ctx context.Context) decimal.Decimal {
	if s.redis != nil {
		if cached, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			if price, err := decimal.NewFromString(cached); err == nil {
				return price
			}
		}
	}

	price, err := s.fetch(ctx)
	if err != nil {
		log.Printf("⚠️  Ticker XMR/USD injoignable: %v — valeur de repli utilisée", err)
		return fallbackUSD
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, cacheKey, price.String(), cacheTTL).Err(); err != nil {
			log.Printf("⚠️  Écriture cache prix échouée: %v", err)
		}
	}
	return price
}

func (s *Service) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tickerURL, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	var payload struct {
		Monero struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"monero"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, err
	}
	if payload.Monero.USD.IsZero() {
		return decimal.Zero, errors.New("réponse ticker vide")
	}
	return payload.Monero.USD, nil
}
