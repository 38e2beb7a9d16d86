package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

type shopRepository struct {
	db *sql.DB
}

// NewShopRepository создаёт PostgreSQL-реализацию ShopRepository.
func NewShopRepository(store *Store) domain.ShopRepository {
	return &shopRepository{db: store.DB()}
}

func (r *shopRepository) Create(ctx context.Context, shop domain.Shop) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shops (
			id, owner_id, name, lat, lng,
			rate_bw_single, rate_bw_double, rate_color_single, rate_color_double, rate_binding,
			phone, email, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`,
		shop.ID, shop.OwnerID, shop.Name, shop.Lat, shop.Lng,
		shop.Rates.BWSingle, shop.Rates.BWDouble, shop.Rates.ColorSingle, shop.Rates.ColorDouble, shop.Rates.Binding,
		shop.Phone, shop.Email, shop.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrShopAlreadyExists
		}
		return fmt.Errorf("insert shop: %w", err)
	}
	return nil
}

func (r *shopRepository) Get(ctx context.Context, id string) (domain.Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var shop domain.Shop
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, name, lat, lng,
		       rate_bw_single, rate_bw_double, rate_color_single, rate_color_double, rate_binding,
		       phone, email, created_at
		FROM shops
		WHERE id = $1
	`, id).Scan(
		&shop.ID, &shop.OwnerID, &shop.Name, &shop.Lat, &shop.Lng,
		&shop.Rates.BWSingle, &shop.Rates.BWDouble, &shop.Rates.ColorSingle, &shop.Rates.ColorDouble, &shop.Rates.Binding,
		&shop.Phone, &shop.Email, &shop.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shop{}, domain.ErrShopNotFound
		}
		return domain.Shop{}, fmt.Errorf("select shop: %w", err)
	}
	shop.CreatedAt = shop.CreatedAt.UTC()
	return shop, nil
}

type userRepository struct {
	db *sql.DB
}

// NewUserRepository создаёт PostgreSQL-реализацию UserRepository.
func NewUserRepository(store *Store) domain.UserRepository {
	return &userRepository{db: store.DB()}
}

func (r *userRepository) Create(ctx context.Context, user domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.ID, user.Name, user.Email, user.Phone, string(user.Role), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		user domain.User
		role string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, phone, role, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	user.Role = domain.UserRole(role)
	user.CreatedAt = user.CreatedAt.UTC()
	return user, nil
}

var (
	_ domain.ShopRepository = (*shopRepository)(nil)
	_ domain.UserRepository = (*userRepository)(nil)
)
