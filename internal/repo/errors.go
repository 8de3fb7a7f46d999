package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrVersionConflict — строку успел изменить другой процесс.
	// Вызывающий перечитывает job и повторяет операцию (или убеждается,
	// что она больше не нужна).
	ErrVersionConflict = errors.New("concurrent job modification")
)
