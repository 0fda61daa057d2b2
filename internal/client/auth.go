package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/learncamera/camera101-client/internal/models"
)

// Эндпойнты выпуска токенов и регистрации. Все три обходят протокол
// повтора по 401: ответ 401 здесь — это отказ в выдаче, а не истечение.
const (
	tokenPath    = "/api/payments/token/"
	registerPath = "/api/payments/register/"
)

type obtainTokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ObtainToken выполняет вход по email+паролю и возвращает пару токенов.
// Состоянием сессии не управляет: запись в хранилище — забота вызывающего.
func (c *Client) ObtainToken(ctx context.Context, email, password string) (*models.TokenPair, error) {
	const op = "client.ObtainToken"

	var out refreshResponse
	_, err := c.call(ctx, http.MethodPost, tokenPath,
		obtainTokenRequest{Email: email, Password: password}, &out,
		callOpts{noAuth: true, noRetry: true},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if out.Access == "" {
		return nil, fmt.Errorf("%s: empty access token in response", op)
	}

	return &models.TokenPair{
		AccessToken:  out.Access,
		RefreshToken: out.Refresh,
	}, nil
}

// Register создаёт учётную запись. Сессию НЕ открывает: платформа на
// регистрацию токены не выдаёт, вход выполняется отдельным ObtainToken.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	const op = "client.Register"

	_, err := c.call(ctx, http.MethodPost, registerPath,
		registerRequest{Username: username, Email: email, Password: password}, nil,
		callOpts{noAuth: true, noRetry: true},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshToken принудительно обновляет access-токен через координатор.
// Обычный путь — автоматический повтор по 401; метод нужен инструментам
// (cmd doctor) и разделяет с автоматическим путём single-flight секцию.
func (c *Client) RefreshToken(ctx context.Context) (string, error) {
	return c.refresh.Token(ctx)
}
