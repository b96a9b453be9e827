package utils

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

// GeneratePaymentQR encode une URI de paiement monero: en QR PNG base64,
// prêt à mettre dans un <img src="...">.
func GeneratePaymentQR(paymentURI string) (string, error) {
	png, err := qrcode.Encode(paymentURI, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
