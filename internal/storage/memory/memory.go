// memory — потокобезопасная реализация storage.TokenStorage в памяти:
// для тестов и эфемерных запусков CLI без сохранения сессии на диск.
package memory

import (
	"context"
	"sync"

	"github.com/learncamera/camera101-client/internal/models"
)

// Storage — сессия в памяти процесса; нулевое значение готово к работе.
type Storage struct {
	mu   sync.Mutex
	pair *models.TokenPair
	user *models.SessionUser
}

// New создаёт пустое хранилище.
func New() *Storage { return &Storage{} }

// Load возвращает копии сохранённого состояния; (nil, nil, nil) — сессии нет.
func (s *Storage) Load(_ context.Context) (*models.TokenPair, *models.SessionUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pair == nil {
		return nil, nil, nil
	}

	pair := *s.pair

	var user *models.SessionUser
	if s.user != nil {
		u := *s.user
		user = &u
	}

	return &pair, user, nil
}

// Save перезаписывает состояние целиком.
func (s *Storage) Save(_ context.Context, pair models.TokenPair, user models.SessionUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = &pair
	s.user = &user

	return nil
}

// UpdateTokens заменяет access-токен; refresh — только если непустой.
func (s *Storage) UpdateTokens(_ context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pair == nil {
		s.pair = &models.TokenPair{}
	}

	s.pair.AccessToken = access
	if refresh != "" {
		s.pair.RefreshToken = refresh
	}

	return nil
}

// Clear сбрасывает состояние; идемпотентна.
func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pair = nil
	s.user = nil

	return nil
}
