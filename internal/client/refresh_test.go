package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/learncamera/camera101-client/internal/config"
	"github.com/learncamera/camera101-client/internal/events"
	"github.com/learncamera/camera101-client/internal/models"
	"github.com/learncamera/camera101-client/internal/storage/memory"
)

// testEnv — клиент поверх httptest-сервера с хранилищем в памяти.
type testEnv struct {
	client *Client
	store  *memory.Storage
	bus    *events.Broadcaster
	raised *atomic.Int32
}

func newTestEnv(t *testing.T, handler http.Handler) *testEnv {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := memory.New()
	bus := events.New(slog.Default())

	var raised atomic.Int32
	bus.Subscribe(func() { raised.Add(1) })

	cl, err := New(
		config.APIConfig{BaseURL: srv.URL, Timeout: 5 * time.Second},
		store, bus, slog.Default(),
	)
	require.NoError(t, err)

	return &testEnv{client: cl, store: store, bus: bus, raised: &raised}
}

func seedSession(t *testing.T, env *testEnv, access, refresh string) {
	t.Helper()
	require.NoError(t, env.store.Save(context.Background(),
		models.TokenPair{AccessToken: access, RefreshToken: refresh},
		models.SessionUser{Identifier: "user@x.com"},
	))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// N одновременных 401 порождают ровно один сетевой refresh, и все
// вызовы завершаются успешно с новым токеном.
func TestRefresh_SingleFlight_ConcurrentCallers(t *testing.T) {
	t.Parallel()

	var refreshCalls atomic.Int32

	r := chi.NewRouter()
	r.Get("/api/protected", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer A2" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"ok": "yes"})
	})
	r.Post("/api/payments/token/refresh/", func(w http.ResponseWriter, req *http.Request) {
		refreshCalls.Add(1)
		// Затягиваем вызов, чтобы остальные горутины пришли в очередь.
		time.Sleep(50 * time.Millisecond)

		var in struct {
			Refresh string `json:"refresh"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&in))
		require.Equal(t, "R1", in.Refresh)

		writeJSON(w, http.StatusOK, map[string]string{"access": "A2"})
	})

	env := newTestEnv(t, r)
	seedSession(t, env, "A1", "R1")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out map[string]string
			_, errs[i] = env.client.call(context.Background(), http.MethodGet, "/api/protected", nil, &out, callOpts{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "caller %d", i)
	}

	require.Equal(t, int32(1), refreshCalls.Load())

	// Новая пара записана; refresh-токен не ротировался — остался R1.
	pair, _, err := env.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.Equal(t, "A2", pair.AccessToken)
	require.Equal(t, "R1", pair.RefreshToken)

	require.Equal(t, int32(0), env.raised.Load())
}

// Ротация refresh-токена: новый refresh из ответа перезаписывает старый.
func TestRefresh_RotatesRefreshToken(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/protected", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer A2" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/payments/token/refresh/", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"access": "A2", "refresh": "R2"})
	})

	env := newTestEnv(t, r)
	seedSession(t, env, "A1", "R1")

	_, err := env.client.call(context.Background(), http.MethodGet, "/api/protected", nil, nil, callOpts{})
	require.NoError(t, err)

	pair, _, err := env.store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pair)
	require.Equal(t, "A2", pair.AccessToken)
	require.Equal(t, "R2", pair.RefreshToken)
}

// Отказ refresh: хранилище очищено, сигнал поднят ровно один раз,
// вызывающий получает исходную 401-ошибку.
func TestRefresh_Failure_ExpiresSession(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/protected", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "token expired"})
	})
	r.Post("/api/payments/token/refresh/", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"refresh": []string{"Token is invalid or expired"}})
	})

	env := newTestEnv(t, r)
	seedSession(t, env, "A1", "R1")

	_, err := env.client.call(context.Background(), http.MethodGet, "/api/protected", nil, nil, callOpts{})
	require.Error(t, err)

	// Исходная ошибка — 401 запроса, не 400 рефреша.
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	pair, user, lerr := env.store.Load(context.Background())
	require.NoError(t, lerr)
	require.Nil(t, pair)
	require.Nil(t, user)

	require.Equal(t, int32(1), env.raised.Load())
}

// Отказ refresh при N ожидающих: сигнал всё равно поднимается один раз,
// все вызовы получают ошибку.
func TestRefresh_Failure_ConcurrentCallers_RaiseOnce(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.Get("/api/protected", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r.Post("/api/payments/token/refresh/", func(w http.ResponseWriter, req *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusBadRequest)
	})

	env := newTestEnv(t, r)
	seedSession(t, env, "A1", "R1")

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.client.call(context.Background(), http.MethodGet, "/api/protected", nil, nil, callOpts{})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.Error(t, err, "caller %d", i)
	}

	require.Equal(t, int32(1), env.raised.Load())
}

// Нет refresh-токена — терминальное истечение без сетевого вызова.
func TestRefresh_NoRefreshToken_ExpiresImmediately(t *testing.T) {
	t.Parallel()

	var refreshCalls atomic.Int32

	r := chi.NewRouter()
	r.Get("/api/protected", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r.Post("/api/payments/token/refresh/", func(w http.ResponseWriter, req *http.Request) {
		refreshCalls.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	env := newTestEnv(t, r)
	seedSession(t, env, "A1", "")

	_, err := env.client.call(context.Background(), http.MethodGet, "/api/protected", nil, nil, callOpts{})
	require.Error(t, err)

	require.Equal(t, int32(0), refreshCalls.Load())
	require.Equal(t, int32(1), env.raised.Load())

	pair, _, lerr := env.store.Load(context.Background())
	require.NoError(t, lerr)
	require.Nil(t, pair)
}

// Повторный 401 после успешного refresh не даёт второго цикла:
// запрос отвергается после ровно одного повтора.
func TestRetry_SecondUnauthorized_NotRetriedAgain(t *testing.T) {
	t.Parallel()

	var protectedCalls, refreshCalls atomic.Int32

	r := chi.NewRouter()
	r.Get("/api/protected", func(w http.ResponseWriter, req *http.Request) {
		protectedCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	r.Post("/api/payments/token/refresh/", func(w http.ResponseWriter, req *http.Request) {
		refreshCalls.Add(1)
		writeJSON(w, http.StatusOK, map[string]string{"access": "A2"})
	})

	env := newTestEnv(t, r)
	seedSession(t, env, "A1", "R1")

	status, err := env.client.call(context.Background(), http.MethodGet, "/api/protected", nil, nil, callOpts{})
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, status)

	require.Equal(t, int32(2), protectedCalls.Load())
	require.Equal(t, int32(1), refreshCalls.Load())
}

// Последовательные истечения: после завершения одного refresh следующий
// 401 запускает новый (single-flight ключ забывается на settle).
func TestRefresh_SequentialExpiries_StartFreshRefresh(t *testing.T) {
	t.Parallel()

	var refreshCalls atomic.Int32
	var current atomic.Value
	current.Store("A1")

	r := chi.NewRouter()
	r.Get("/api/protected", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+current.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/payments/token/refresh/", func(w http.ResponseWriter, req *http.Request) {
		n := refreshCalls.Add(1)
		token := map[int32]string{1: "A2", 2: "A3"}[n]
		current.Store(token)
		writeJSON(w, http.StatusOK, map[string]string{"access": token})
	})

	env := newTestEnv(t, r)
	seedSession(t, env, "stale", "R1")

	_, err := env.client.call(context.Background(), http.MethodGet, "/api/protected", nil, nil, callOpts{})
	require.NoError(t, err)

	// Второе истечение: валидным становится A3.
	current.Store("A3-pending")
	_, err = env.client.call(context.Background(), http.MethodGet, "/api/protected", nil, nil, callOpts{})
	require.NoError(t, err)

	require.Equal(t, int32(2), refreshCalls.Load())
}
