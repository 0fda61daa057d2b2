package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/learncamera/camera101-client/internal/models"
)

// CreateCheckoutSession создаёт у платёжного провайдера сессию оплаты
// курса и возвращает её идентификатор; сам checkout происходит на стороне
// провайдера. Требует аутентификации.
func (c *Client) CreateCheckoutSession(ctx context.Context) (*models.CheckoutSession, error) {
	const op = "client.CreateCheckoutSession"

	var out models.CheckoutSession
	if _, err := c.call(ctx, http.MethodPost, "/api/payments/create-checkout-session/", nil, &out, callOpts{}); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if out.ID == "" {
		return nil, fmt.Errorf("%s: empty checkout session id", op)
	}

	return &out, nil
}

// healthResponse — ответ health-эндпойнта платформы.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Health проверяет доступность платформы (без аутентификации).
func (c *Client) Health(ctx context.Context) error {
	const op = "client.Health"

	var out healthResponse
	if _, err := c.call(ctx, http.MethodGet, "/health/", nil, &out, callOpts{noAuth: true, noRetry: true}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if out.Status != "healthy" {
		return fmt.Errorf("%s: unexpected status %q", op, out.Status)
	}

	return nil
}
