package dispatch

import "errors"

// Ошибки диспетчера.
var (
	// ErrPublishExhausted — попытки публикации инструкции исчерпаны.
	ErrPublishExhausted = errors.New("publish attempts exhausted")

	// ErrNotDispatching — job не в статусе, допускающем отправку.
	ErrNotDispatching = errors.New("job is not in dispatching state")
)
