package jobmgr

import "errors"

// Ошибки менеджера jobs.
var (
	// ErrJobNotFound — job не найден.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotCancellable — job уже отправляется роботу или завершён.
	ErrJobNotCancellable = errors.New("job is not cancellable")

	// ErrConflict — ключ идемпотентности занят запросом с другим содержимым.
	ErrConflict = errors.New("idempotency key conflict")
)
