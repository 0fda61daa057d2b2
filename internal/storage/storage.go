// storage задаёт контракт долговременного хранилища клиентской сессии:
// access/refresh-токены и проекция пользователя хранятся и очищаются вместе.
//
// Инвариант: пользователь присутствует тогда и только тогда, когда
// присутствует access-токен; Load никогда не возвращает «половину» сессии.
package storage

import (
	"context"

	"github.com/learncamera/camera101-client/internal/models"
)

// TokenStorage выполняет операции над сохранённой сессией.
//
// Реализации обязаны быть потокобезопасными: хранилище — единственный
// разделяемый ресурс между HTTP-клиентом и сервисом сессии.
type TokenStorage interface {
	// Load читает сохранённую сессию; (nil, nil, nil) — сессии нет.
	// Частичное состояние не наблюдаемо: либо пара+пользователь, либо ничего.
	Load(ctx context.Context) (*models.TokenPair, *models.SessionUser, error)
	// Save атомарно перезаписывает всё содержимое хранилища.
	Save(ctx context.Context, pair models.TokenPair, user models.SessionUser) error
	// UpdateTokens заменяет access-токен после успешного refresh;
	// refresh-токен перезаписывается, только если сервер выдал новый
	// (refresh != "").
	UpdateTokens(ctx context.Context, access, refresh string) error
	// Clear удаляет сессию целиком; идемпотентна.
	Clear(ctx context.Context) error
}
