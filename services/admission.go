package services

import "sync"

// admissionLocks сериализует прием регистраций в рамках одного турнира.
// Замки создаются по требованию и удаляются, когда их никто не держит.
type admissionLocks struct {
	mu    sync.Mutex
	locks map[int]*admissionLock
}

type admissionLock struct {
	mu   sync.Mutex
	refs int
}

func newAdmissionLocks() *admissionLocks {
	return &admissionLocks{locks: make(map[int]*admissionLock)}
}

// Lock блокирует турнир и возвращает функцию разблокировки.
func (a *admissionLocks) Lock(tournamentID int) func() {
	a.mu.Lock()
	l, ok := a.locks[tournamentID]
	if !ok {
		l = &admissionLock{}
		a.locks[tournamentID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, tournamentID)
		}
		a.mu.Unlock()
	}
}

func (a *admissionLocks) size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.locks)
}
