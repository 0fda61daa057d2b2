// file — файловая реализация storage.TokenStorage: вся сессия лежит
// в одном JSON-файле (аналог localStorage браузерного клиента) и
// переживает перезапуски процесса.
//
// Атомарность записи обеспечивается путём запись-во-временный-файл +
// os.Rename в пределах одного каталога: читатель никогда не видит
// частично записанное состояние.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/learncamera/camera101-client/internal/models"
)

// sessionFile — формат файла на диске.
type sessionFile struct {
	AccessToken  string              `json:"access_token,omitempty"`
	RefreshToken string              `json:"refresh_token,omitempty"`
	User         *models.SessionUser `json:"user,omitempty"`
}

// Storage — файловое хранилище сессии.
type Storage struct {
	mu   sync.Mutex
	path string
}

// New создаёт хранилище по указанному пути, заводя недостающие каталоги.
func New(path string) (*Storage, error) {
	const op = "storage/file.New"

	if path == "" {
		return nil, fmt.Errorf("%s: empty path", op)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("%s: mkdir %q: %w", op, dir, err)
		}
	}

	return &Storage{path: path}, nil
}

// Load читает сессию с диска; отсутствие файла — не ошибка.
func (s *Storage) Load(ctx context.Context) (*models.TokenPair, *models.SessionUser, error) {
	const op = "storage/file.Load"

	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	// Сессия без access-токена эквивалентна отсутствующей: читаем
	// либо всё, либо ничего.
	if raw == nil || raw.AccessToken == "" {
		return nil, nil, nil
	}

	pair := &models.TokenPair{
		AccessToken:  raw.AccessToken,
		RefreshToken: raw.RefreshToken,
	}

	var user *models.SessionUser
	if raw.User != nil {
		u := *raw.User
		user = &u
	}

	return pair, user, nil
}

// Save атомарно перезаписывает файл сессии.
func (s *Storage) Save(ctx context.Context, pair models.TokenPair, user models.SessionUser) error {
	const op = "storage/file.Save"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw := sessionFile{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         &user,
	}

	if err := s.write(&raw); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UpdateTokens заменяет access-токен существующей сессии; refresh-токен
// ротируется, только когда передан непустым.
func (s *Storage) UpdateTokens(ctx context.Context, access, refresh string) error {
	const op = "storage/file.UpdateTokens"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if access == "" {
		return fmt.Errorf("%s: empty access token", op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.read()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if raw == nil {
		raw = &sessionFile{}
	}

	raw.AccessToken = access
	if refresh != "" {
		raw.RefreshToken = refresh
	}

	if err := s.write(raw); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Clear удаляет файл сессии; повторный вызов — no-op.
func (s *Storage) Clear(ctx context.Context) error {
	const op = "storage/file.Clear"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// read загружает и разбирает файл; (nil, nil), если файла нет.
// Вызывается под s.mu.
func (s *Storage) read() (*sessionFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, err
	}

	var raw sessionFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("corrupted session file %q: %w", s.path, err)
	}

	return &raw, nil
}

// write сериализует состояние во временный файл и атомарно подменяет им
// целевой. Вызывается под s.mu.
func (s *Storage) write(raw *sessionFile) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	return nil
}
