package monero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ErrIndisponible : le wallet RPC est injoignable ou a répondu n'importe quoi.
// À distinguer de "aucun paiement observé", qui est l'état normal d'attente.
var ErrIndisponible = errors.New("monero: wallet RPC indisponible")

// Un piconero = 1e-12 XMR ; les montants RPC sont en unités atomiques.
var piconero = decimal.New(1, -12)

// AmountEpsilon tolère les arrondis flottants côté wallet (1e-6 XMR).
var AmountEpsilon = decimal.New(1, -6)

// PaymentIdentity corrèle une transaction entrante à une commande précise.
type PaymentIdentity struct {
	Address    string
	PaymentID  string
	PaymentURI string
}

// Observation décrit un transfert entrant correspondant à un payment id.
type Observation struct {
	TxHash        string
	Amount        decimal.Decimal
	Confirmations int
}

type Wallet struct {
	rpcURL string
	client *http.Client
}

func NewWallet(rpcURL string, timeout time.Duration) *Wallet {
	return &Wallet{
		rpcURL: rpcURL,
		client: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      string      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call exécute un appel JSON-RPC 2.0 contre le wallet. Toute défaillance de
// transport ou de décodage est repliée sur ErrIndisponible.
func (w *Wallet) call(ctx context.Context, method string, params, out interface{}) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%w: encodage requête %s: %v", ErrIndisponible, method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.rpcURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndisponible, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIndisponible, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: HTTP %d", ErrIndisponible, method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: %s: réponse illisible: %v", ErrIndisponible, method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s: RPC %d %s", ErrIndisponible, method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if rpcResp.Result == nil {
		return fmt.Errorf("%w: %s: résultat absent", ErrIndisponible, method)
	}

	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("%w: %s: résultat malformé: %v", ErrIndisponible, method, err)
	}
	return nil
}

// CreatePaymentIdentity génère une adresse intégrée et son payment id.
// Jamais d'identité partielle : tout champ manquant est une erreur.
func (w *Wallet) CreatePaymentIdentity(ctx context.Context, description string, amount decimal.Decimal) (*PaymentIdentity, error) {
	var result struct {
		IntegratedAddress string `json:"integrated_address"`
		PaymentID         string `json:"payment_id"`
	}
	if err := w.call(ctx, "make_integrated_address", map[string]interface{}{}, &result); err != nil {
		return nil, err
	}
	if result.IntegratedAddress == "" || result.PaymentID == "" {
		return nil, fmt.Errorf("%w: make_integrated_address: identité incomplète", ErrIndisponible)
	}

	return &PaymentIdentity{
		Address:    result.IntegratedAddress,
		PaymentID:  result.PaymentID,
		PaymentURI: paymentURI(result.IntegratedAddress, description, amount),
	}, nil
}

// paymentURI encode une demande de paiement au format monero: (scannable en QR).
func paymentURI(address, description string, amount decimal.Decimal) string {
	q := url.Values{}
	q.Set("tx_amount", amount.String())
	if description != "" {
		q.Set("tx_description", description)
	}
	return "monero:" + address + "?" + q.Encode()
}

// CheckPayment cherche un transfert entrant portant ce payment id et dont le
// montant atteint minAmount (à epsilon près). Retourne (nil, nil) quand rien
// n'est encore arrivé — c'est l'état d'attente normal, pas une erreur.
func (w *Wallet) CheckPayment(ctx context.Context, paymentID string, minAmount decimal.Decimal) (*Observation, error) {
	var result struct {
		In []struct {
			TxID          string `json:"txid"`
			PaymentID     string `json:"payment_id"`
			Amount        int64  `json:"amount"`
			Confirmations int    `json:"confirmations"`
		} `json:"in"`
		Pending []struct {
			TxID          string `json:"txid"`
			PaymentID     string `json:"payment_id"`
			Amount        int64  `json:"amount"`
			Confirmations int    `json:"confirmations"`
		} `json:"pending"`
	}

	params := map[string]interface{}{
		"in":      true,
		"pending": true,
		"failed":  false,
	}
	if err := w.call(ctx, "get_transfers", params, &result); err != nil {
		return nil, err
	}

	threshold := minAmount.Sub(AmountEpsilon)

	transfers := append(result.In, result.Pending...)
	for _, t := range transfers {
		if t.PaymentID != paymentID {
			continue
		}
		amount := decimal.New(t.Amount, 0).Mul(piconero)
		if amount.Cmp(threshold) >= 0 {
			return &Observation{
				TxHash:        t.TxID,
				Amount:        amount,
				Confirmations: t.Confirmations,
			}, nil
		}
	}
	return nil, nil
}

// Balance retourne le solde du wallet (total, débloqué). Outil admin.
func (w *Wallet) Balance(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	var result struct {
		Balance         int64 `json:"balance"`
		UnlockedBalance int64 `json:"unlocked_balance"`
	}
	if err := w.call(ctx, "get_balance", map[string]interface{}{}, &result); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return decimal.New(result.Balance, 0).Mul(piconero),
		decimal.New(result.UnlockedBalance, 0).Mul(piconero), nil
}

// ValidateAddress vérifie la validité syntaxique d'une adresse Monero.
func (w *Wallet) ValidateAddress(ctx context.Context, address string) (bool, error) {
	var result struct {
		Valid bool `json:"valid"`
	}
	err := w.call(ctx, "validate_address", map[string]interface{}{"address": address}, &result)
	if err != nil {
		return false, err
	}
	return result.Valid, nil
}
