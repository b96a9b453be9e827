package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"xmr_shop_back_end/internal/checkout"
	"xmr_shop_back_end/internal/config"
	"xmr_shop_back_end/internal/models"
	"xmr_shop_back_end/internal/monero"
	"xmr_shop_back_end/internal/orders"
	"xmr_shop_back_end/internal/pricing"
	"xmr_shop_back_end/internal/ratelimit"
)

// Messages partagés. Le texte « aucun paiement détecté » est volontairement
// identique que le wallet soit muet ou injoignable ; la distinction part
// dans les logs, pas vers l'utilisateur.
const (
	msgErreurGenerique = "❌ Une erreur est survenue. Veuillez réessayer."
	msgTropDeRequetes  = "🐢 Doucement ! Trop de requêtes, réessayez dans une minute."
	msgAucunPaiement   = "⏳ Aucun paiement détecté pour le moment. Envoyez le montant exact à l'adresse fournie puis revérifiez."
)

// Profile est le profil transmis par la passerelle chat avec chaque /start.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

// Bot expose un handler par action entrante (§ frontière d'actions) et rend
// des Reply opaques. Aucune erreur ne remonte à la passerelle : tout échec
// interne devient un message générique + un diagnostic loggé.
type Bot struct {
	db        *gorm.DB
	orders    *orders.Manager
	dialogues *checkout.Manager
	limiter   *ratelimit.Limiter
	prices    *pricing.Service

	// makeQR encode une URI de paiement en image QR (data URI). Optionnel.
	makeQR func(uri string) (string, error)

	// notifyConfirmed est appelé en best-effort quand une commande se
	// confirme (mail admin). Optionnel.
	notifyConfirmed func(order *models.Order, user *models.User)
}

func New(db *gorm.DB, om *orders.Manager, dm *checkout.Manager, rl *ratelimit.Limiter, ps *pricing.Service) *Bot {
	return &Bot{
		db:        db,
		orders:    om,
		dialogues: dm,
		limiter:   rl,
		prices:    ps,
	}
}

// WithQR branche le générateur de QR code.
func (b *Bot) WithQR(fn func(uri string) (string, error)) *Bot {
	b.makeQR = fn
	return b
}

// WithConfirmationNotifier branche la notification admin de confirmation.
func (b *Bot) WithConfirmationNotifier(fn func(order *models.Order, user *models.User)) *Bot {
	b.notifyConfirmed = fn
	return b
}

// guard encapsule chaque handler : rate limiting, récupération de panique,
// conversion des erreurs inattendues en message générique. Rien n'est fatal
// au process, un utilisateur en erreur n'affecte pas les autres.
func (b *Bot) guard(action string, telegramID int64, fn func() (*Reply, error)) (reply *Reply) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ Panique dans %s (utilisateur %d): %v", action, telegramID, r)
			reply = textReply(msgErreurGenerique)
		}
	}()

	if !b.limiter.Allow(telegramID) {
		return textReply(msgTropDeRequetes)
	}

	reply, err := fn()
	if err != nil {
		log.Printf("❌ Erreur dans %s (utilisateur %d): %v", action, telegramID, err)
		return textReply(msgErreurGenerique)
	}
	return reply
}

// ensureUser retrouve ou crée l'utilisateur à partir de son identité chat.
func (b *Bot) ensureUser(ctx context.Context, telegramID int64) (*models.User, error) {
	var user models.User
	err := b.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{TelegramID: telegramID}
		if err := b.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	return &user, err
}

// Start enregistre (ou rafraîchit) l'utilisateur et rend le menu d'accueil.
func (b *Bot) Start(ctx context.Context, telegramID int64, profile Profile) *Reply {
	return b.guard("start", telegramID, func() (*Reply, error) {
		var user models.User
		err := b.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = models.User{
				TelegramID: telegramID,
				Username:   profile.Username,
				FirstName:  profile.FirstName,
				LastName:   profile.LastName,
			}
			if err := b.db.WithContext(ctx).Create(&user).Error; err != nil {
				return nil, err
			}
		case err != nil:
			return nil, err
		default:
			// Rafraîchissement de profil à chaque /start.
			b.db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
				"username":   profile.Username,
				"first_name": profile.FirstName,
				"last_name":  profile.LastName,
			})
		}

		reply := textReply("🤖 Bienvenue sur la boutique Monero !\n\n" +
			"🛍️ Parcourez le catalogue, remplissez votre panier et payez en XMR.\n" +
			"💳 Paiements privés et sécurisés, confirmation on-chain.\n")
		reply.withButton("🛍️ Voir les produits", "list_products")
		reply.withButton("🛒 Mon panier", "view_cart")
		reply.withButton("📋 Mes commandes", "my_orders")
		return reply, nil
	})
}

// ListProducts rend le catalogue disponible avec les prix en XMR et leur
// équivalent USD indicatif (oracle de prix, jamais bloquant).
func (b *Bot) ListProducts(ctx context.Context, telegramID int64) *Reply {
	return b.guard("list_products", telegramID, func() (*Reply, error) {
		if _, err := b.ensureUser(ctx, telegramID); err != nil {
			return nil, err
		}

		var products []models.Product
		if err := b.db.WithContext(ctx).Where("is_available = ?", true).Find(&products).Error; err != nil {
			return nil, err
		}
		if len(products) == 0 {
			return textReply("❌ Aucun produit disponible pour le moment."), nil
		}

		rate := b.prices.UnitPriceUSD(ctx)

		var sb strings.Builder
		sb.WriteString("🛍️ Produits disponibles :\n\n")
		reply := &Reply{}
		for _, p := range products {
			usd := p.PriceXMR.Mul(rate)
			fmt.Fprintf(&sb, "%s\n💰 %s XMR (≈ %s $)\n%s\n\n",
				p.Name, p.PriceXMR.String(), usd.StringFixed(2), p.Description)
			reply.withButton(
				fmt.Sprintf("➕ %s — %s XMR", p.Name, p.PriceXMR.String()),
				fmt.Sprintf("add_to_cart:%d", p.ID),
			)
		}
		reply.Text = sb.String()
		reply.withButton("🛒 Mon panier", "view_cart")
		return reply, nil
	})
}

// AddToCart ajoute un produit au panier : get-or-create du panier, puis
// fusion sur l'article existant (incrément) plutôt que doublon de ligne.
func (b *Bot) AddToCart(ctx context.Context, telegramID int64, productID uint) *Reply {
	return b.guard("add_to_cart", telegramID, func() (*Reply, error) {
		user, err := b.ensureUser(ctx, telegramID)
		if err != nil {
			return nil, err
		}

		var product models.Product
		err = b.db.WithContext(ctx).Where("id = ? AND is_available = ?", productID, true).First(&product).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return textReply("❌ Produit introuvable."), nil
		}
		if err != nil {
			return nil, err
		}

		err = b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var cart models.Cart
			if err := tx.Where(models.Cart{UserID: user.ID}).FirstOrCreate(&cart).Error; err != nil {
				return err
			}

			item := models.CartItem{CartID: cart.ID, ProductID: product.ID, Quantity: 1}
			return tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "cart_id"}, {Name: "product_id"}},
				DoUpdates: clause.Assignments(map[string]interface{}{"quantity": gorm.Expr("quantity + 1")}),
			}).Create(&item).Error
		})
		if err != nil {
			return nil, err
		}

		reply := textReply(fmt.Sprintf("✅ %s ajouté au panier.", product.Name))
		reply.withButton("🛒 Voir le panier", "view_cart")
		reply.withButton("🛍️ Continuer mes achats", "list_products")
		return reply, nil
	})
}

// ViewCart affiche le panier avec un total recalculé aux prix courants
// (contrairement aux commandes, qui figent les prix).
func (b *Bot) ViewCart(ctx context.Context, telegramID int64) *Reply {
	return b.guard("view_cart", telegramID, func() (*Reply, error) {
		user, err := b.ensureUser(ctx, telegramID)
		if err != nil {
			return nil, err
		}

		var cart models.Cart
		err = b.db.WithContext(ctx).Preload("Items.Product").Where("user_id = ?", user.ID).First(&cart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && len(cart.Items) == 0) {
			reply := textReply("🛒 Votre panier est vide.")
			reply.withButton("🛍️ Voir les produits", "list_products")
			return reply, nil
		}
		if err != nil {
			return nil, err
		}

		total := decimal.Zero
		var sb strings.Builder
		sb.WriteString("🛒 Votre panier :\n\n")
		for _, item := range cart.Items {
			line := item.Product.PriceXMR.Mul(decimal.NewFromInt(int64(item.Quantity)))
			total = total.Add(line)
			fmt.Fprintf(&sb, "• %s × %d — %s XMR\n", item.Product.Name, item.Quantity, line.String())
		}
		fmt.Fprintf(&sb, "\n💰 Total : %s XMR", total.String())

		reply := textReply(sb.String())
		reply.withButton("📦 Passer commande", "begin_checkout")
		reply.withButton("🗑️ Vider le panier", "clear_cart")
		return reply, nil
	})
}

// ClearCart vide explicitement le panier (cascade sur les articles).
func (b *Bot) ClearCart(ctx context.Context, telegramID int64) *Reply {
	return b.guard("clear_cart", telegramID, func() (*Reply, error) {
		user, err := b.ensureUser(ctx, telegramID)
		if err != nil {
			return nil, err
		}

		err = b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var cart models.Cart
			if err := tx.Where("user_id = ?", user.ID).First(&cart).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}
			if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
				return err
			}
			return tx.Delete(&cart).Error
		})
		if err != nil {
			return nil, err
		}

		reply := textReply("🗑️ Panier vidé.")
		reply.withButton("🛍️ Voir les produits", "list_products")
		return reply, nil
	})
}

// BeginCheckout démarre le dialogue d'adresse. Refusé si un checkout est
// déjà en vol pour cet utilisateur, ou si le panier est vide.
func (b *Bot) BeginCheckout(ctx context.Context, telegramID int64) *Reply {
	return b.guard("begin_checkout", telegramID, func() (*Reply, error) {
		user, err := b.ensureUser(ctx, telegramID)
		if err != nil {
			return nil, err
		}

		var cart models.Cart
		err = b.db.WithContext(ctx).Preload("Items").Where("user_id = ?", user.ID).First(&cart).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && len(cart.Items) == 0) {
			return textReply("🛒 Votre panier est vide — ajoutez un produit avant de commander."), nil
		}
		if err != nil {
			return nil, err
		}

		field, err := b.dialogues.Begin(telegramID)
		if errors.Is(err, checkout.ErrDejaEnCours) {
			return textReply("⚠️ Un checkout est déjà en cours. Répondez à la question posée, ou envoyez « annuler »."), nil
		}
		if err != nil {
			return nil, err
		}

		return textReply("🚚 Préparons la livraison !\n" + field.Prompt()), nil
	})
}

// SubmitText fait avancer le dialogue d'adresse d'un champ. Sur le dernier
// champ la main passe à la création de commande ; succès comme échec dur
// lèvent l'état de dialogue (l'utilisateur n'est jamais coincé mi-parcours).
func (b *Bot) SubmitText(ctx context.Context, telegramID int64, text string) *Reply {
	return b.guard("submit_text", telegramID, func() (*Reply, error) {
		if !b.dialogues.Active(telegramID) {
			return textReply("🤖 Utilisez les boutons du menu, ou /start pour recommencer."), nil
		}

		result, err := b.dialogues.Submit(telegramID, text)

		var vErr *checkout.ValidationError
		if errors.As(err, &vErr) {
			return textReply("⚠️ " + vErr.Reason + "\n" + vErr.Field.Prompt()), nil
		}
		if errors.Is(err, checkout.ErrAucunDialogue) {
			return textReply("🤖 Utilisez les boutons du menu, ou /start pour recommencer."), nil
		}
		if err != nil {
			b.dialogues.Release(telegramID)
			return nil, err
		}

		if !result.Done {
			return textReply(result.NextField.Prompt()), nil
		}

		// Dernier champ accepté : création de la commande. Le garde-fou de
		// réentrance reste posé pendant l'appel wallet, puis est levé quoi
		// qu'il arrive.
		defer b.dialogues.Release(telegramID)

		user, err := b.ensureUser(ctx, telegramID)
		if err != nil {
			return nil, err
		}

		order, err := b.orders.Create(ctx, user, result.Form)
		if errors.Is(err, orders.ErrPanierVide) {
			return textReply("🛒 Votre panier est vide — la commande n'a pas été créée."), nil
		}
		if errors.Is(err, monero.ErrIndisponible) {
			log.Printf("⚠️  Wallet indisponible pendant la création (utilisateur %d): %v", telegramID, err)
			return textReply("❌ Impossible de générer l'adresse de paiement. Votre panier est intact, réessayez dans un instant."), nil
		}
		if err != nil {
			return nil, err
		}

		return b.paymentReply(order), nil
	})
}

// paymentReply compose le message de paiement : montant, adresse, QR,
// rappel d'expiration, bouton de vérification.
func (b *Bot) paymentReply(order *models.Order) *Reply {
	var sb strings.Builder
	sb.WriteString("💰 Détails du paiement\n\n")
	fmt.Fprintf(&sb, "Commande : %s\n", order.Reference)
	fmt.Fprintf(&sb, "Montant : %s XMR\n", order.TotalAmountXMR.String())
	fmt.Fprintf(&sb, "Adresse : %s\n\n", order.PaymentAddress)
	sb.WriteString("1️⃣ Envoyez exactement le montant à l'adresse ci-dessus\n")
	sb.WriteString("2️⃣ Cliquez « Vérifier le paiement » après l'envoi\n")
	sb.WriteString("⏰ Le paiement expire dans 30 minutes")

	reply := textReply(sb.String())
	reply.withButton("🔍 Vérifier le paiement", "check_payment:"+order.Reference)

	if b.makeQR != nil {
		qr, err := b.makeQR(order.PaymentURI)
		if err != nil {
			log.Printf("⚠️  Génération QR échouée pour %s: %v", order.Reference, err)
		} else {
			reply.QRDataURI = qr
		}
	}
	return reply
}

// CheckPayment interroge le cycle de vie pour une commande de l'utilisateur.
// Wallet muet et wallet injoignable rendent le même texte ; seule la trace
// loggée diffère.
func (b *Bot) CheckPayment(ctx context.Context, telegramID int64, reference string) *Reply {
	return b.guard("check_payment", telegramID, func() (*Reply, error) {
		user, err := b.ensureUser(ctx, telegramID)
		if err != nil {
			return nil, err
		}

		result, err := b.orders.Check(ctx, user.ID, reference)
		if errors.Is(err, orders.ErrIntrouvable) {
			return textReply("❌ Commande introuvable."), nil
		}
		if errors.Is(err, monero.ErrIndisponible) {
			log.Printf("⚠️  Wallet indisponible pendant la vérification de %s: %v", reference, err)
			reply := textReply(msgAucunPaiement)
			reply.withButton("🔍 Revérifier", "check_payment:"+reference)
			return reply, nil
		}
		if err != nil {
			return nil, err
		}

		switch result.Outcome {
		case orders.CheckExpired:
			return textReply("❌ Commande expirée. Créez une nouvelle commande pour finaliser votre achat."), nil

		case orders.CheckAwaitingPayment:
			reply := textReply(msgAucunPaiement)
			reply.withButton("🔍 Revérifier", "check_payment:"+reference)
			return reply, nil

		case orders.CheckPendingConfirmation:
			obs := result.Observation
			text := fmt.Sprintf("⏳ Paiement reçu — en attente de confirmation\n\n"+
				"Montant : %s XMR\nTransaction : %s\nConfirmations : %d/%d",
				obs.Amount.String(), obs.TxHash, obs.Confirmations, config.ConfirmationsRequired)
			reply := textReply(text)
			reply.withButton("🔍 Revérifier", "check_payment:"+reference)
			return reply, nil

		case orders.CheckConfirmed:
			if result.Observation != nil && b.notifyConfirmed != nil {
				// Confirmation fraîche : notification admin en best-effort.
				go b.notifyConfirmed(result.Order, user)
			}
			text := "✅ Paiement confirmé !\n\nCommande : " + result.Order.Reference
			if result.Observation != nil {
				text += fmt.Sprintf("\nTransaction : %s\nConfirmations : %d",
					result.Observation.TxHash, result.Observation.Confirmations)
			}
			text += "\n\nVotre commande est en préparation 🎉"
			return textReply(text), nil
		}

		return textReply(msgErreurGenerique), nil
	})
}

// MyOrders liste les dix dernières commandes de l'utilisateur.
func (b *Bot) MyOrders(ctx context.Context, telegramID int64) *Reply {
	return b.guard("my_orders", telegramID, func() (*Reply, error) {
		user, err := b.ensureUser(ctx, telegramID)
		if err != nil {
			return nil, err
		}

		list, err := b.orders.Recent(ctx, user.ID, 10)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			reply := textReply("📋 Vous n'avez pas encore de commande.")
			reply.withButton("🛍️ Voir les produits", "list_products")
			return reply, nil
		}

		statusEmoji := map[string]string{
			models.OrderStatusPending:   "⏳",
			models.OrderStatusConfirmed: "🎉",
			models.OrderStatusExpired:   "❌",
		}

		var sb strings.Builder
		sb.WriteString("📋 Vos dernières commandes :\n\n")
		reply := &Reply{}
		for _, o := range list {
			fmt.Fprintf(&sb, "%s %s — %s XMR — %s\n📅 %s\n\n",
				statusEmoji[o.Status], o.Reference, o.TotalAmountXMR.String(),
				o.Status, o.CreatedAt.Format("2006-01-02 15:04"))
			if o.Status == models.OrderStatusPending {
				reply.withButton("🔍 Vérifier "+o.Reference[:8], "check_payment:"+o.Reference)
			}
		}
		reply.Text = sb.String()
		return reply, nil
	})
}

// Cancel abandonne le dialogue en cours et lève le garde-fou de checkout.
// Sans effet sur les commandes déjà créées.
func (b *Bot) Cancel(ctx context.Context, telegramID int64) *Reply {
	return b.guard("cancel", telegramID, func() (*Reply, error) {
		if b.dialogues.Cancel(telegramID) {
			return textReply("🚫 Checkout annulé. Votre panier est conservé."), nil
		}
		return textReply("🤖 Rien à annuler."), nil
	})
}
