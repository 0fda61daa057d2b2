// client — единственная точка исходящих вызовов к REST API платформы.
//
// Каждый запрос получает заголовок Authorization с access-токеном,
// прочитанным из хранилища непосредственно в момент вызова (ротация
// токена другим вызовом подхватывается следующим запросом), и X-Request-Id.
//
// Ответ 401 на ещё не повторённый запрос запускает протокол обновления
// (см. refresh.go); при успехе исходный запрос прозрачно повторяется один
// раз с новым токеном, при неудаче хранилище уже очищено, сигнал истечения
// уже поднят, а вызывающая сторона получает исходную ошибку. Второй 401
// после повтора возвращается как есть: цикл retry ограничен структурно.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/learncamera/camera101-client/internal/config"
	"github.com/learncamera/camera101-client/internal/events"
	logctx "github.com/learncamera/camera101-client/internal/pkg/log"
	"github.com/learncamera/camera101-client/internal/storage"
)

// maxBodySize ограничивает читаемое тело ответа.
const maxBodySize = 1 << 20

// Client — HTTP-клиент платформы.
type Client struct {
	httpc   *http.Client
	baseURL string
	store   storage.TokenStorage
	bus     *events.Broadcaster
	log     *slog.Logger
	refresh *refresher
}

// New собирает клиент поверх конфигурации API.
func New(cfg config.APIConfig, store storage.TokenStorage, bus *events.Broadcaster, log *slog.Logger) (*Client, error) {
	const op = "client.New"

	if cfg.NormalizedBaseURL() == "" {
		return nil, fmt.Errorf("%s: empty base url", op)
	}
	if store == nil {
		return nil, fmt.Errorf("%s: nil token storage", op)
	}
	if bus == nil {
		return nil, fmt.Errorf("%s: nil events broadcaster", op)
	}
	if log == nil {
		log = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		httpc:   &http.Client{Timeout: timeout},
		baseURL: cfg.NormalizedBaseURL(),
		store:   store,
		bus:     bus,
		log:     log,
	}
	c.refresh = newRefresher(c)

	return c, nil
}

// callOpts управляет обработкой одного вызова.
type callOpts struct {
	// noAuth — не прикладывать bearer-токен (эндпойнты выпуска токенов).
	noAuth bool
	// noRetry — не запускать протокол обновления по 401.
	noRetry bool
}

// call выполняет запрос с политикой «один повтор после успешного refresh»
// и возвращает финальный HTTP-статус (0 — транспортная ошибка).
//
// in сериализуется в JSON-тело (nil — без тела), out заполняется из
// успешного ответа (nil или 204 — тело игнорируется).
func (c *Client) call(ctx context.Context, method, path string, in, out any, opts callOpts) (int, error) {
	const op = "client.call"

	var payload []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		payload = data
	}

	token := ""
	if !opts.noAuth {
		token = c.accessToken(ctx)
	}

	status, body, err := c.attempt(ctx, method, path, payload, token)
	if err != nil {
		return 0, fmt.Errorf("%s: %s %s: %w", op, method, path, err)
	}

	if status == http.StatusUnauthorized && !opts.noRetry {
		fresh, rerr := c.refresh.Token(ctx)
		if rerr != nil {
			// Хранилище уже очищено и сигнал поднят координатором;
			// вызывающему возвращаем исходную ошибку.
			logctx.From(ctx).Warn("request_unauthorized_terminal",
				slog.String("method", method),
				slog.String("path", path),
			)
			return status, newAPIError(status, body)
		}

		// Строго токен того refresh, которого дождались: не перечитываем
		// хранилище, чтобы не увидеть более позднее состояние.
		status, body, err = c.attempt(ctx, method, path, payload, fresh)
		if err != nil {
			return 0, fmt.Errorf("%s: retry %s %s: %w", op, method, path, err)
		}
	}

	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return status, newAPIError(status, body)
	}

	if out != nil && status != http.StatusNoContent && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return status, fmt.Errorf("%s: decode response: %w", op, err)
		}
	}

	return status, nil
}

// attempt — одна попытка запроса: построение, отправка, чтение тела.
func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		logctx.From(ctx).Warn("http_request_failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("err", err.Error()),
		)
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, err
	}

	logctx.From(ctx).Debug("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("dur", time.Since(start)),
	)

	return resp.StatusCode, body, nil
}

// accessToken читает текущий access-токен из хранилища; отсутствие
// сессии или сбой чтения означает неавторизованный запрос.
func (c *Client) accessToken(ctx context.Context) string {
	pair, _, err := c.store.Load(ctx)
	if err != nil {
		c.log.Warn("token_storage_read_failed", slog.String("err", err.Error()))
		return ""
	}
	if pair == nil {
		return ""
	}

	return pair.AccessToken
}
