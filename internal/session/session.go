// Package session хранит токен и данные вошедшего курьера между запусками.
package session

import (
	"context"
	"errors"

	"github.com/mmeshcher/shipper-client/internal/model"
)

// ErrNotFound возвращается, если сессия ещё не сохранялась или была очищена.
var ErrNotFound = errors.New("session not found")

// Store - единственный слот сессии на устройстве.
// Запись при входе, очистка при выходе, чтение токена при каждом запросе.
type Store interface {
	Load(ctx context.Context) (model.Session, error)
	Save(ctx context.Context, s model.Session) error
	Clear(ctx context.Context) error
	Token(ctx context.Context) (string, error)
}

// stored отбрасывает сессию без токена: такая запись не означает входа.
func stored(sess model.Session) (model.Session, error) {
	if sess.Token == "" {
		return model.Session{}, ErrNotFound
	}
	return sess, nil
}

func tokenOf(ctx context.Context, s Store) (string, error) {
	sess, err := s.Load(ctx)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return sess.Token, nil
}
