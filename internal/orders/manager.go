package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"xmr_shop_back_end/internal/checkout"
	"xmr_shop_back_end/internal/models"
	"xmr_shop_back_end/internal/monero"
)

var (
	// ErrPanierVide : impossible de créer une commande sans article.
	ErrPanierVide = errors.New("orders: panier vide")

	// ErrIntrouvable : commande inconnue (ou appartenant à un autre utilisateur).
	ErrIntrouvable = errors.New("orders: commande introuvable")
)

// Oracle est la vue que le cycle de vie a du wallet : émettre une identité
// de paiement, et répondre « ce payment id a-t-il reçu au moins X ».
type Oracle interface {
	CreatePaymentIdentity(ctx context.Context, description string, amount decimal.Decimal) (*monero.PaymentIdentity, error)
	CheckPayment(ctx context.Context, paymentID string, minAmount decimal.Decimal) (*monero.Observation, error)
}

// CheckOutcome résume un passage de vérification de paiement.
type CheckOutcome int

const (
	// CheckAwaitingPayment : aucun transfert observé, état d'attente normal.
	CheckAwaitingPayment CheckOutcome = iota
	// CheckPendingConfirmation : transfert vu mais sous le seuil de finalité.
	CheckPendingConfirmation
	// CheckConfirmed : commande confirmée (à l'instant ou précédemment).
	CheckConfirmed
	// CheckExpired : commande expirée (à l'instant ou précédemment).
	CheckExpired
)

type CheckResult struct {
	Outcome     CheckOutcome
	Order       *models.Order
	Observation *monero.Observation
}

// Manager pilote le cycle de vie pending → confirmed / expired. Toute
// tentative de transition sur une commande non-pending est un no-op.
type Manager struct {
	db            *gorm.DB
	oracle        Oracle
	timeout       time.Duration
	confirmations int

	now func() time.Time
}

func NewManager(db *gorm.DB, oracle Oracle, timeout time.Duration, confirmations int) *Manager {
	return &Manager{
		db:            db,
		oracle:        oracle,
		timeout:       timeout,
		confirmations: confirmations,
		now:           time.Now,
	}
}

// Create transforme le panier de l'utilisateur en commande : total figé,
// identité de paiement demandée au wallet, puis commande + articles +
// adresse persistés et panier supprimé dans une même transaction. Si le
// wallet échoue, rien n'est persisté et le panier reste intact.
func (m *Manager) Create(ctx context.Context, user *models.User, form *checkout.Form) (*models.Order, error) {
	var cart models.Cart
	err := m.db.WithContext(ctx).
		Preload("Items.Product").
		Where("user_id = ?", user.ID).
		First(&cart).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && len(cart.Items) == 0) {
		return nil, ErrPanierVide
	}
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, item := range cart.Items {
		total = total.Add(item.Product.PriceXMR.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	reference := uuid.NewString()

	// Appel wallet hors transaction et hors verrou utilisateur : il peut
	// être arbitrairement long, et son échec doit laisser le panier intact.
	identity, err := m.oracle.CreatePaymentIdentity(ctx, "Commande "+reference, total)
	if err != nil {
		return nil, fmt.Errorf("création identité de paiement: %w", err)
	}

	now := m.now()
	order := &models.Order{
		Reference:      reference,
		UserID:         user.ID,
		TotalAmountXMR: total,
		PaymentAddress: identity.Address,
		PaymentID:      identity.PaymentID,
		PaymentURI:     identity.PaymentURI,
		Status:         models.OrderStatusPending,
		ShippingAddress: models.ShippingAddress{
			FullName:   form.FullName,
			Street:     form.Street,
			Unit:       form.Unit,
			City:       form.City,
			State:      form.State,
			PostalCode: form.PostalCode,
		},
		ExpiresAt: now.Add(m.timeout),
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Re-validation du panier après l'appel réseau : son contenu a pu
		// bouger pendant que le wallet répondait.
		var fresh models.Cart
		if err := tx.Preload("Items.Product").Where("user_id = ?", user.ID).First(&fresh).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPanierVide
			}
			return err
		}
		if len(fresh.Items) == 0 {
			return ErrPanierVide
		}

		total = decimal.Zero
		for _, item := range fresh.Items {
			total = total.Add(item.Product.PriceXMR.Mul(decimal.NewFromInt(int64(item.Quantity))))
			order.Items = append(order.Items, models.OrderItem{
				ProductID:    item.ProductID,
				Name:         item.Product.Name,
				Quantity:     item.Quantity,
				UnitPriceXMR: item.Product.PriceXMR,
			})
		}
		order.TotalAmountXMR = total

		if err := tx.Create(order).Error; err != nil {
			return err
		}

		if err := tx.Where("cart_id = ?", fresh.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Cart{}, fresh.ID).Error
	})
	if err != nil {
		return nil, err
	}

	log.Printf("🧾 Commande %s créée (%s XMR) pour l'utilisateur %d", order.Reference, order.TotalAmountXMR, user.ID)
	return order, nil
}

// Check vérifie le paiement d'une commande. L'expiration prime : une
// commande passée expires_at est expirée sans consulter le wallet, et une
// commande expirée n'est plus jamais vérifiée.
func (m *Manager) Check(ctx context.Context, userID uint, reference string) (*CheckResult, error) {
	var order models.Order
	err := m.db.WithContext(ctx).
		Preload("Items").
		Preload("ShippingAddress").
		Where("reference = ? AND user_id = ?", reference, userID).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIntrouvable
	}
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case models.OrderStatusConfirmed:
		return &CheckResult{Outcome: CheckConfirmed, Order: &order}, nil
	case models.OrderStatusExpired:
		return &CheckResult{Outcome: CheckExpired, Order: &order}, nil
	}

	if m.now().After(order.ExpiresAt) {
		if err := m.expire(ctx, order.ID); err != nil {
			return nil, err
		}
		order.Status = models.OrderStatusExpired
		return &CheckResult{Outcome: CheckExpired, Order: &order}, nil
	}

	obs, err := m.oracle.CheckPayment(ctx, order.PaymentID, order.TotalAmountXMR)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		return &CheckResult{Outcome: CheckAwaitingPayment, Order: &order}, nil
	}

	if obs.Confirmations < m.confirmations {
		return &CheckResult{Outcome: CheckPendingConfirmation, Order: &order, Observation: obs}, nil
	}

	if err := m.confirm(ctx, &order, obs); err != nil {
		return nil, err
	}
	return &CheckResult{Outcome: CheckConfirmed, Order: &order, Observation: obs}, nil
}

// confirm applique pending → confirmed et enregistre le règlement. La mise à
// jour est gardée par le statut : si un autre passage (ou le reaper) a gagné
// la course, c'est un no-op et aucun Payment n'est dupliqué.
func (m *Manager) confirm(ctx context.Context, order *models.Order, obs *monero.Observation) error {
	now := m.now()
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":       models.OrderStatusConfirmed,
				"confirmed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Déjà terminal : on recharge pour refléter l'état réel.
			return tx.First(order, order.ID).Error
		}

		order.Status = models.OrderStatusConfirmed
		order.ConfirmedAt = &now

		payment := models.Payment{
			OrderID:       order.ID,
			TxHash:        obs.TxHash,
			AmountXMR:     obs.Amount,
			Confirmations: obs.Confirmations,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoNothing: true,
		}).Create(&payment).Error
	})
}

// expire applique pending → expired, gardé par le statut.
func (m *Manager) expire(ctx context.Context, orderID uint) error {
	return m.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
		Update("status", models.OrderStatusExpired).Error
}

// ExpireStale est le balayage périodique : toutes les commandes pending
// passées leur expiration basculent en expired, dans une transaction à part,
// sans toucher aux verrous par utilisateur. Seul ce chemin expire en masse.
func (m *Manager) ExpireStale(ctx context.Context) (int64, error) {
	res := m.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND expires_at < ?", models.OrderStatusPending, m.now()).
		Update("status", models.OrderStatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("🧹 Reaper: %d commande(s) expirée(s)", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Recent liste les dernières commandes d'un utilisateur.
func (m *Manager) Recent(ctx context.Context, userID uint, limit int) ([]models.Order, error) {
	var list []models.Order
	err := m.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
