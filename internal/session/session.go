// session — сервис состояния аутентификации: мост между долговременным
// хранилищем токенов, HTTP-клиентом и потребителями (CLI-командами).
//
// Сервис владеет in-memory зеркалом сессии и является единственным
// компонентом, которому разрешено вызывать Save/Clear хранилища
// (HTTP-слой пишет туда только в рамках протокола обновления токена).
// Login/Register/Logout никогда не возвращают ошибку наружу: исход —
// булево, детали — в карте ошибок по полям.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/learncamera/camera101-client/internal/client"
	"github.com/learncamera/camera101-client/internal/events"
	"github.com/learncamera/camera101-client/internal/models"
	"github.com/learncamera/camera101-client/internal/storage"
)

// Общие сообщения для ошибок без пофилдовой структуры (сетевые сбои,
// неожиданные тела ответов). Формулировки — как у исходного клиента.
const (
	msgLoginFailed    = "Login failed"
	msgRegisterFailed = "Registration failed"
)

// Service — потокобезопасное состояние аутентификации.
type Service struct {
	client *client.Client
	store  storage.TokenStorage
	log    *slog.Logger

	mu             sync.RWMutex
	accessToken    string
	user           *models.SessionUser
	loading        bool
	initialLoading bool
	errors         models.FieldErrors

	unsubscribe func()
}

// New создаёт сервис и подписывает его на сигнал истечения сессии.
// До вызова Init состояние считается неопределённым (InitialLoading=true).
func New(cl *client.Client, store storage.TokenStorage, bus *events.Broadcaster, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{
		client:         cl,
		store:          store,
		log:            log,
		initialLoading: true,
		errors:         models.FieldErrors{},
	}

	s.unsubscribe = bus.Subscribe(s.handleExpired)

	return s
}

// Init выполняет единственное стартовое чтение хранилища и снимает
// InitialLoading. Сетевых вызовов и повторов нет: что нашлось, то и сессия.
// Потребители обязаны дожидаться InitialLoading()==false, прежде чем
// принимать решения по IsAuthenticated().
func (s *Service) Init(ctx context.Context) error {
	const op = "session.Init"

	pair, user, err := s.store.Load(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	// InitialLoading снимается при любом исходе чтения.
	s.initialLoading = false

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if pair != nil {
		s.accessToken = pair.AccessToken
		s.user = user
	}

	return nil
}

// Close отписывает сервис от сигнала истечения.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Login выполняет вход. На успех — пара токенов и пользователь записаны
// в хранилище и в память, true. На отказ — карта ошибок заполнена из
// ответа (или общей ошибкой), false. Loading гарантированно снимается
// при любом исходе.
func (s *Service) Login(ctx context.Context, email, password string) bool {
	defer s.endAttempt()
	s.beginAttempt()

	email = normalizeEmail(email)

	pair, err := s.client.ObtainToken(ctx, email, password)
	if err != nil {
		s.setErrors(fieldErrorsFrom(err, msgLoginFailed))
		s.log.Debug("login_failed", slog.String("email", email))
		return false
	}

	user := models.SessionUser{Identifier: email}
	if err := s.store.Save(ctx, *pair, user); err != nil {
		// Сессия работоспособна до перезапуска процесса; фиксируем сбой.
		s.log.Warn("session_persist_failed", slog.String("err", err.Error()))
	}

	s.mu.Lock()
	s.accessToken = pair.AccessToken
	s.user = &user
	s.mu.Unlock()

	s.log.Info("login_ok", slog.String("email", email))

	return true
}

// Register создаёт учётную запись и сразу входит с теми же данными:
// регистрация сама по себе сессию не открывает. При отказе на втором
// шаге карта ошибок отражает ошибку входа, не регистрации.
func (s *Service) Register(ctx context.Context, username, email, password string) bool {
	defer s.endAttempt()
	s.beginAttempt()

	username = strings.TrimSpace(username)
	email = normalizeEmail(email)

	if err := s.client.Register(ctx, username, email, password); err != nil {
		s.setErrors(fieldErrorsFrom(err, msgRegisterFailed))
		s.log.Debug("register_failed", slog.String("email", email))
		return false
	}

	s.log.Info("register_ok", slog.String("email", email))

	return s.Login(ctx, email, password)
}

// Logout сбрасывает сессию локально: хранилище и память очищаются
// безусловно, сетевой вызов не требуется и не выполняется.
func (s *Service) Logout(ctx context.Context) {
	if err := s.store.Clear(ctx); err != nil {
		s.log.Warn("token_storage_clear_failed", slog.String("err", err.Error()))
	}

	s.mu.Lock()
	s.accessToken = ""
	s.user = nil
	s.mu.Unlock()

	s.log.Info("logout_ok")
}

// IsAuthenticated — производное состояние: access-токен присутствует.
func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.accessToken != ""
}

// User возвращает копию проекции пользователя (nil — нет сессии).
func (s *Service) User() *models.SessionUser {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return nil
	}

	u := *s.user
	return &u
}

// Errors возвращает копию карты ошибок последней попытки входа/регистрации.
func (s *Service) Errors() models.FieldErrors {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.errors.Clone()
}

// Loading — идёт ли сейчас попытка входа/регистрации.
func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.loading
}

// InitialLoading — true до завершения стартового чтения хранилища.
func (s *Service) InitialLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.initialLoading
}

// handleExpired — реакция на сигнал истечения: память очищается
// (хранилище уже очистил поднявший сигнал), Loading/Errors не трогаются.
func (s *Service) handleExpired() {
	s.mu.Lock()
	s.accessToken = ""
	s.user = nil
	s.mu.Unlock()

	s.log.Debug("session_state_reset")
}

// beginAttempt — старт попытки: Loading=true, ошибки сброшены целиком.
func (s *Service) beginAttempt() {
	s.mu.Lock()
	s.loading = true
	s.errors = models.FieldErrors{}
	s.mu.Unlock()
}

// endAttempt снимает Loading; вызывается через defer, чтобы инвариант
// держался и при панике транспорта.
func (s *Service) endAttempt() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Service) setErrors(errs models.FieldErrors) {
	s.mu.Lock()
	s.errors = errs
	s.mu.Unlock()
}

// fieldErrorsFrom распределяет ошибку по таксономии:
//   - ответ сервера с пофилдовым телом — карта 1:1;
//   - ответ сервера без структуры и транспортные сбои — общая ошибка.
func fieldErrorsFrom(err error, fallback string) models.FieldErrors {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && !apiErr.Fields.Empty() {
		return apiErr.Fields.Clone()
	}

	return models.General(fallback)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
