// Package auth разбирает HS256 JWT, выданные внешним сервисом сессий.
// Один и тот же Verifier используется REST API и realtime-шлюзом.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/campusprint/internal/domain"
)

// ErrUnauthenticated: токен отсутствует, просрочен или подписан не тем ключом.
var ErrUnauthenticated = errors.New("unauthenticated")

const leeway = 30 * time.Second

// Claims описывает полезную нагрузку токена: sub, role, shop_id.
type Claims struct {
	Role   domain.UserRole `json:"role"`
	ShopID string          `json:"shop_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal описывает аутентифицированного пользователя запроса.
type Principal struct {
	UserID string
	Role   domain.UserRole
	ShopID string
}

// IsAdmin сообщает, что токен выдан администратору.
func (p Principal) IsAdmin() bool {
	return p.Role == domain.UserRoleAdmin
}

// Verifier проверяет и выпускает токены.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// Option настраивает Verifier.
type Option func(*Verifier)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// NewVerifier создаёт Verifier. Пустой секрет недопустим.
func NewVerifier(secret string, options ...Option) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	v := &Verifier{secret: []byte(secret), now: time.Now}
	for _, option := range options {
		option(v)
	}
	return v, nil
}

// Verify разбирает токен и возвращает Principal.
func (v *Verifier) Verify(raw string) (Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(leeway),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("%w: subject is empty", ErrUnauthenticated)
	}

	role := claims.Role
	if role == "" {
		role = domain.UserRoleStudent
	}
	return Principal{UserID: claims.Subject, Role: role, ShopID: claims.ShopID}, nil
}

// Issue подписывает токен. Нужен тестам и локальной отладке.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Role:   p.Role,
		ShopID: p.ShopID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// FromRequest берёт токен из заголовка Authorization: Bearer, а для
// websocket-рукопожатия допускает query-параметр token.
func (v *Verifier) FromRequest(r *http.Request) (Principal, error) {
	raw := ""
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return Principal{}, fmt.Errorf("%w: malformed authorization header", ErrUnauthenticated)
		}
		raw = strings.TrimSpace(token)
	} else {
		raw = r.URL.Query().Get("token")
	}
	if raw == "" {
		return Principal{}, fmt.Errorf("%w: token is missing", ErrUnauthenticated)
	}
	return v.Verify(raw)
}

type principalKey struct{}

// WithPrincipal кладёт Principal в контекст запроса.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom достаёт Principal из контекста.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
