package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/learncamera/camera101-client/internal/models"
)

var (
	// ErrNoRefreshToken — refresh-токен отсутствует в хранилище:
	// обновить access-токен нечем, сессия терминально истекла.
	ErrNoRefreshToken = errors.New("no refresh token")
)

// APIError — ответ платформы со статусом вне 2xx.
//
// Fields заполняются из пофилдового тела ошибки ({field: [msg, ...]});
// для тел без такой структуры карта пуста, а вызывающая сторона
// подставляет общую ошибку сама.
type APIError struct {
	StatusCode int
	Fields     models.FieldErrors
}

func (e *APIError) Error() string {
	if msg := e.Fields.First("detail"); msg != "" {
		return fmt.Sprintf("api: %s: %s", http.StatusText(e.StatusCode), msg)
	}

	return fmt.Sprintf("api: %s", http.StatusText(e.StatusCode))
}

// IsStatus сообщает, является ли err ответом API с данным статусом.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// newAPIError разбирает тело ошибки, извлекая пофилдовые сообщения.
func newAPIError(status int, body []byte) *APIError {
	fields, _ := models.ParseFieldErrors(body)
	return &APIError{StatusCode: status, Fields: fields}
}
