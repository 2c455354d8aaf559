package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken — токен битый, просрочен, подписан не тем ключом или отозван.
	ErrInvalidToken = errors.New("invalid token")
	// ErrPrincipalResolution — из токена не удалось получить субъекта или найти пользователя.
	ErrPrincipalResolution = errors.New("principal resolution failed")
)

// RejectionError несёт причину отказа. Kind всегда один из двух sentinel-ов выше,
// Err — исходная ошибка коллаборатора.
type RejectionError struct {
	Kind error
	Err  error
}

func (e *RejectionError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap позволяет errors.Is находить и Kind, и исходную ошибку.
func (e *RejectionError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func reject(kind, err error) *RejectionError {
	return &RejectionError{Kind: kind, Err: err}
}
