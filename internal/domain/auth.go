package domain

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrUserNotFound — в хранилище нет пользователя с таким username.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserDisabled — учётная запись есть, но входить ей нельзя.
	ErrUserDisabled = errors.New("user disabled")
)

// Claims — полезная нагрузка bearer-токена. В Subject лежит username.
type Claims struct {
	jwt.RegisteredClaims
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"` // USER, ADMIN
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Principal — от чьего имени выполняется запрос после проверки токена.
type Principal struct {
	UserID      string   `json:"user_id"`
	Username    string   `json:"username"`
	Authorities []string `json:"authorities"`
}

// Principal строит принципала из пользователя: роль становится единственным authority.
func (u *User) Principal() *Principal {
	p := &Principal{
		UserID:   u.ID,
		Username: u.Username,
	}
	if u.Role != "" {
		p.Authorities = []string{u.Role}
	}
	return p
}
