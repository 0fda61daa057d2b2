package models

import (
	"encoding/json"
	"fmt"
	"sort"
)

// GeneralField — ключ для ошибок, не привязанных к конкретному полю формы
// (сетевые сбои, ответы без пофилдовой структуры).
const GeneralField = "general"

// FieldErrors — ошибки валидации, сгруппированные по имени поля формы.
//
// Жизненный цикл: карта целиком сбрасывается в начале каждой попытки
// входа/регистрации и целиком заменяется результатом разбора ответа —
// частичных слияний не бывает.
type FieldErrors map[string][]string

// General — карта с единственной общей ошибкой.
func General(msg string) FieldErrors {
	return FieldErrors{GeneralField: {msg}}
}

// Empty сообщает, что ошибок нет.
func (e FieldErrors) Empty() bool { return len(e) == 0 }

// First возвращает первое сообщение для поля (или пустую строку).
func (e FieldErrors) First(field string) string {
	if msgs := e[field]; len(msgs) > 0 {
		return msgs[0]
	}

	return ""
}

// Fields возвращает имена полей в стабильном порядке (для вывода/логов).
func (e FieldErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for k := range e {
		out = append(out, k)
	}
	sort.Strings(out)

	return out
}

// Clone — глубокая копия карты; nil остаётся nil.
func (e FieldErrors) Clone() FieldErrors {
	if e == nil {
		return nil
	}

	out := make(FieldErrors, len(e))
	for k, msgs := range e {
		out[k] = append([]string(nil), msgs...)
	}

	return out
}

// ParseFieldErrors разбирает пофилдовое тело ошибки платформы:
// JSON-объект вида {field: [msg, ...]}. Скалярные значения приводятся
// к спискам из одного сообщения ("detail": "..." у DRF). Возвращает
// ok=false, если тело — не объект или не JSON вовсе: вызывающая сторона
// подставляет общую ошибку.
func ParseFieldErrors(body []byte) (FieldErrors, bool) {
	if len(body) == 0 {
		return nil, false
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil || len(raw) == 0 {
		return nil, false
	}

	out := make(FieldErrors, len(raw))
	for field, msg := range raw {
		out[field] = coerceMessages(msg)
	}

	return out, true
}

// coerceMessages приводит значение поля к списку строк.
func coerceMessages(raw json.RawMessage) []string {
	var msgs []string
	if err := json.Unmarshal(raw, &msgs); err == nil {
		return msgs
	}

	var anyList []any
	if err := json.Unmarshal(raw, &anyList); err == nil {
		out := make([]string, 0, len(anyList))
		for _, v := range anyList {
			out = append(out, fmt.Sprint(v))
		}
		return out
	}

	var scalar any
	if err := json.Unmarshal(raw, &scalar); err == nil {
		return []string{fmt.Sprint(scalar)}
	}

	return []string{string(raw)}
}
