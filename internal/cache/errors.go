package cache

import "errors"

// Ошибки кэша препятствий.
var (
	// ErrNotFound — стена неизвестна: ни кэш, ни хранилище не содержат карту.
	ErrNotFound = errors.New("obstacle map not found")

	// ErrStale — хранилище не может выдать версию >= запрошенной.
	// Запрос планирования объявляет минимальную версию, поэтому устаревшее
	// чтение обнаруживается, а не принимается молча.
	ErrStale = errors.New("obstacle map is stale")
)
