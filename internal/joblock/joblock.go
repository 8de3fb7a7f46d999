// Package joblock сериализует переходы состояния одного job.
//
// Переходы для разных jobs идут полностью параллельно; для одного job
// cancel, dispatch и обработка ack не должны чередоваться. Registry
// выдаёт эксклюзивную секцию по ключу job и освобождает запись, когда
// её никто не держит и не ждёт.
package joblock

import (
	"sync"

	"github.com/google/uuid"
)

// Registry — реестр мьютексов по job ID.
type Registry struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New создаёт новый Registry.
func New() *Registry {
	return &Registry{
		locks: make(map[uuid.UUID]*entry),
	}
}

// Lock захватывает эксклюзивную секцию job и возвращает функцию
// освобождения. Запись удаляется из реестра, когда последний держатель
// её отпустил — реестр не растёт с историей jobs.
func (r *Registry) Lock(jobID uuid.UUID) (unlock func()) {
	r.mu.Lock()
	e, ok := r.locks[jobID]
	if !ok {
		e = &entry{}
		r.locks[jobID] = e
	}
	e.refs++
	r.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		r.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(r.locks, jobID)
		}
		r.mu.Unlock()
	}
}

// Len возвращает количество захваченных или ожидаемых записей.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
