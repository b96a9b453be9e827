package utils

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/wneessen/go-mail"

	"xmr_shop_back_end/internal/models"
)

// NotifyOrderConfirmed envoie un mail à l'opérateur quand une commande est
// confirmée on-chain. Best-effort : sans config SMTP on logge et on sort.
func NotifyOrderConfirmed(order *models.Order, user *models.User) {
	to := os.Getenv("ADMIN_EMAIL")
	host := os.Getenv("SMTP_HOST")
	if to == "" || host == "" {
		log.Printf("📋 Commande %s confirmée (notification mail non configurée)", order.Reference)
		return
	}

	if err := sendMail(to, "✅ Commande confirmée — "+order.Reference, confirmationHTML(order, user)); err != nil {
		log.Printf("❌ Erreur envoi mail de confirmation: %v", err)
		return
	}
	log.Printf("📧 Notification envoyée pour la commande %s", order.Reference)
}

func sendMail(to, subject, htmlBody string) error {
	msg := mail.NewMsg()

	from := os.Getenv("SMTP_FROM")
	if from == "" {
		from = "noreply@localhost"
	}
	if err := msg.From(from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	port := 587
	if p, err := strconv.Atoi(os.Getenv("SMTP_PORT")); err == nil && p > 0 {
		port = p
	}

	client, err := mail.NewClient(os.Getenv("SMTP_HOST"),
		mail.WithPort(port),
		mail.WithSMTPAuth(mail.SMTPAuthLogin),
		mail.WithUsername(os.Getenv("SMTP_USERNAME")),
		mail.WithPassword(os.Getenv("SMTP_PASSWORD")),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return err
	}

	return client.DialAndSend(msg)
}

func confirmationHTML(order *models.Order, user *models.User) string {
	itemsHTML := ""
	for _, item := range order.Items {
		itemsHTML += fmt.Sprintf(`
			<tr>
				<td>%s</td>
				<td>%d</td>
				<td>%s XMR</td>
			</tr>`, item.Name, item.Quantity, item.UnitPriceXMR.String())
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html lang="fr">
<head><meta charset="UTF-8"><title>Commande confirmée</title></head>
<body style="font-family: Arial, sans-serif; background-color: #f9f9f9; padding: 20px;">
	<div style="max-width: 600px; margin: auto; background-color: white; padding: 20px; border-radius: 10px;">
		<h2 style="color: #333;">✅ Paiement confirmé</h2>
		<p>Commande <strong>%s</strong> — utilisateur Telegram %d (%s)</p>
		<table style="width: 100%%; border-collapse: collapse;">
			<tr><th>Produit</th><th>Qté</th><th>Prix unitaire</th></tr>
			%s
		</table>
		<p><strong>Total : %s XMR</strong></p>
		<p>Adresse de livraison : %s, %s %s, %s %s</p>
	</div>
</body>
</html>`,
		order.Reference, user.TelegramID, user.Username,
		itemsHTML, order.TotalAmountXMR.String(),
		order.ShippingAddress.Street, order.ShippingAddress.Unit,
		order.ShippingAddress.City, order.ShippingAddress.State,
		order.ShippingAddress.PostalCode)
}
