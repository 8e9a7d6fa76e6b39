package internal

import "time"

// Timer es un timer cancelable.
type Timer interface {
	// Stop cancela el timer. Retorna false si ya disparó o estaba detenido.
	Stop() bool
}

// Clock abstrae el tiempo para deadlines de requests y reconexión.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// SystemClock retorna el reloj del sistema.
func SystemClock() Clock {
	return realClock{}
}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
