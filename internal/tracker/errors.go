package tracker

import "errors"

// Ошибки tracker'а.
var (
	// ErrIncompletePath — COMPLETE получен до подтверждения всех инструкций.
	ErrIncompletePath = errors.New("complete received with unacked instructions")

	// ErrJobNotReady — событие пришло раньше, чем job готов его принять.
	// Сообщение возвращается в очередь и обрабатывается позже.
	ErrJobNotReady = errors.New("job is not ready for this event")
)
