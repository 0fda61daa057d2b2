// events — процессный канал нотификаций с единственным событием
// «сессия истекла» (auth:token-expired у исходного веб-клиента).
//
// HTTP-слой поднимает сигнал при неустранимом отказе аутентификации;
// сервис сессии (и любой другой заинтересованный компонент) подписывается
// и сбрасывает своё состояние. Буферизации нет: подписчик, пришедший
// после Raise, прошлое событие не получает.
package events

import (
	"log/slog"
	"sync"
)

// subscriber — подписчик с порядковым идентификатором; порядок регистрации
// определяет порядок нотификации.
type subscriber struct {
	id uint64
	fn func()
}

// Broadcaster — синхронный fan-out сигнала истечения сессии.
// Потокобезопасен; нулевой указатель допустим для Raise (no-op).
type Broadcaster struct {
	mu   sync.Mutex
	log  *slog.Logger
	next uint64
	subs []subscriber
}

// New создаёт broadcaster; nil-логгер заменяется slog.Default().
func New(log *slog.Logger) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}

	return &Broadcaster{log: log}
}

// Subscribe регистрирует обработчик и возвращает функцию отписки.
// Отписка идемпотентна.
func (b *Broadcaster) Subscribe(handler func()) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs = append(b.subs, subscriber{id: id, fn: handler})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Raise синхронно оповещает текущих подписчиков в порядке регистрации.
// Паника в одном обработчике не мешает остальным: она гасится и логируется.
func (b *Broadcaster) Raise() {
	if b == nil {
		return
	}

	b.mu.Lock()
	snapshot := make([]subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	// Вызовы вне блокировки: обработчик может подписываться/отписываться.
	for _, sub := range snapshot {
		b.call(sub)
	}
}

func (b *Broadcaster) call(sub subscriber) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("session_expired_handler_panic",
				slog.Uint64("subscriber", sub.id),
				slog.Any("panic", r),
			)
		}
	}()

	sub.fn()
}
