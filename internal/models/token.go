package models

// TokenPair — пара токенов, выданная платформой при входе или регистрации.
//
// Описание:
//   - AccessToken — короткоживущий bearer-токен, отправляется с каждым
//     авторизованным запросом;
//   - RefreshToken — долгоживущий секрет, предъявляется только при обмене
//     на новую пару токенов.
//
// Клиент не разбирает содержимое токенов: обе строки непрозрачны, истечение
// access-токена обнаруживается реактивно по ответу 401.
type TokenPair struct {
	// AccessToken — bearer-токен для заголовка Authorization.
	AccessToken string `json:"access_token"`
	// RefreshToken — секрет для обновления пары; может ротироваться сервером.
	RefreshToken string `json:"refresh_token"`
}

// SessionUser — минимальная проекция аутентифицированного пользователя,
// сохраняемая рядом с токенами, чтобы после перезапуска показать
// "кто вошёл" без дополнительного запроса к API.
type SessionUser struct {
	// Identifier — email (или username), с которым выполнялся вход.
	Identifier string `json:"identifier"`
}
