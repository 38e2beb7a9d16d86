package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

const paymentColumns = `id, order_id, user_id, amount, currency, status,
	provider_order_id, provider_payment_id, created_at, updated_at`

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
// Уникальность order_id гарантирует один платёж на заказ.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

func (r *paymentRepository) Create(ctx context.Context, payment domain.Payment) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		payment.ID, payment.OrderID, payment.UserID, payment.Amount, payment.Currency,
		string(payment.Status), payment.ProviderOrderID, payment.ProviderPaymentID,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrPaymentAlreadyExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByOrder(ctx context.Context, orderID string) (domain.Payment, error) {
	return r.getBy(ctx, "order_id", orderID)
}

func (r *paymentRepository) GetByProviderOrder(ctx context.Context, providerOrderID string) (domain.Payment, error) {
	return r.getBy(ctx, "provider_order_id", providerOrderID)
}

func (r *paymentRepository) getBy(ctx context.Context, column, value string) (domain.Payment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		payment domain.Payment
		status  string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE `+column+` = $1`, value,
	).Scan(
		&payment.ID, &payment.OrderID, &payment.UserID, &payment.Amount, &payment.Currency,
		&status, &payment.ProviderOrderID, &payment.ProviderPaymentID,
		&payment.CreatedAt, &payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, fmt.Errorf("select payment: %w", err)
	}
	payment.Status = domain.PaymentStatus(status)
	payment.CreatedAt = payment.CreatedAt.UTC()
	payment.UpdatedAt = payment.UpdatedAt.UTC()
	return payment, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.Payment, from domain.PaymentStatus) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
		    provider_payment_id = $2,
		    updated_at = $3
		WHERE id = $4 AND status = $5
	`, string(payment.Status), payment.ProviderPaymentID, payment.UpdatedAt, payment.ID, string(from))
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return r.saveMiss(ctx, payment.ID)
	}
	return nil
}

// saveMiss различает отсутствующий платёж и платёж, чей статус уже сменили.
func (r *paymentRepository) saveMiss(ctx context.Context, id string) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check payment: %w", err)
	}
	if !exists {
		return domain.ErrPaymentNotFound
	}
	return domain.ErrPaymentAlreadySettled
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
