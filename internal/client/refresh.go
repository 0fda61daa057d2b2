package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"
)

// refreshPath — эндпойнт обмена refresh-токена на новую пару.
const refreshPath = "/api/payments/token/refresh/"

// refreshKey — единственный ключ single-flight группы: обновление токена
// глобально для клиента, а не на запрос.
const refreshKey = "token-refresh"

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// refresher координирует обновление access-токена: сколько бы запросов
// ни получили 401 одновременно, сетевой вызов выполняется ровно один,
// и все ожидающие получают его исход — новый токен либо общую ошибку.
//
// Без координации N одновременных 401 означали бы N вызовов refresh, и
// поскольку refresh-токены обычно одноразовые/ротируемые, все вызовы после
// первого отказывали бы — классический thundering herd.
type refresher struct {
	group  singleflight.Group
	client *Client
}

func newRefresher(c *Client) *refresher {
	return &refresher{client: c}
}

// Token возвращает действующий access-токен, при необходимости выполняя
// единственный на всех ожидающих вызов обновления.
//
// При любом отказе (нет refresh-токена, сетевой сбой, не-2xx ответ)
// хранилище очищено и сигнал истечения поднят ровно один раз — внутри
// single-flight секции — до того, как ожидающие получат ошибку.
func (r *refresher) Token(ctx context.Context) (string, error) {
	v, err, _ := r.group.Do(refreshKey, func() (any, error) {
		return r.doRefresh(ctx)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// doRefresh — тело single-flight секции. Новая пара записывается в
// хранилище до возврата, то есть до того, как хоть один ожидающий
// запрос будет повторён.
func (r *refresher) doRefresh(ctx context.Context) (string, error) {
	const op = "client.refresh"

	pair, _, err := r.client.store.Load(ctx)
	if err != nil {
		r.expire(ctx)
		return "", fmt.Errorf("%s: load session: %w", op, err)
	}
	if pair == nil || pair.RefreshToken == "" {
		r.expire(ctx)
		return "", fmt.Errorf("%s: %w", op, ErrNoRefreshToken)
	}

	var out refreshResponse
	_, err = r.client.call(ctx, http.MethodPost, refreshPath,
		refreshRequest{Refresh: pair.RefreshToken}, &out,
		callOpts{noAuth: true, noRetry: true},
	)
	if err != nil {
		r.expire(ctx)
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if out.Access == "" {
		r.expire(ctx)
		return "", fmt.Errorf("%s: empty access token in response", op)
	}

	// Пустой out.Refresh — сервер не ротировал refresh-токен, старый
	// остаётся в силе.
	if err := r.client.store.UpdateTokens(ctx, out.Access, out.Refresh); err != nil {
		r.expire(ctx)
		return "", fmt.Errorf("%s: persist tokens: %w", op, err)
	}

	r.client.log.Debug("access_token_refreshed",
		slog.Bool("refresh_rotated", out.Refresh != ""),
	)

	return out.Access, nil
}

// expire — терминальный отказ сессии: очистка хранилища и broadcast.
func (r *refresher) expire(ctx context.Context) {
	if err := r.client.store.Clear(ctx); err != nil {
		r.client.log.Warn("token_storage_clear_failed", slog.String("err", err.Error()))
	}

	r.client.bus.Raise()
	r.client.log.Info("session_expired")
}
