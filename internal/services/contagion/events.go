package contagion

import (
	"fmt"

	"ContagionRadar/internal/domain/models"
	applogger "ContagionRadar/pkg/logger"
)

// Subscriber receives engine output synchronously, inside Record.
// Implementations must not call back into the engine.
type Subscriber interface {
	OnContagion(models.ContagionSignal)
	OnSectorRotation(models.SectorRotation)
}

// SubscriberFuncs adapts plain functions to Subscriber. Nil functions are no-ops.
type SubscriberFuncs struct {
	Contagion func(models.ContagionSignal)
	Rotation  func(models.SectorRotation)
}

func (f SubscriberFuncs) OnContagion(s models.ContagionSignal) {
	if f.Contagion != nil {
		f.Contagion(s)
	}
}

func (f SubscriberFuncs) OnSectorRotation(r models.SectorRotation) {
	if f.Rotation != nil {
		f.Rotation(r)
	}
}

type subscription struct {
	id  int
	sub Subscriber
}

// Subscribe registers s and returns a function that removes it.
func (e *Engine) Subscribe(s Subscriber) func() {
	e.nextSubID++
	id := e.nextSubID
	e.subs = append(e.subs, subscription{id: id, sub: s})
	return func() {
		for i, sub := range e.subs {
			if sub.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) emitContagion(sig models.ContagionSignal) {
	if e.muted {
		return
	}
	for _, s := range e.subs {
		e.deliver("contagion", func() { s.sub.OnContagion(sig) })
	}
}

func (e *Engine) emitRotation(r models.SectorRotation) {
	if e.muted {
		return
	}
	for _, s := range e.subs {
		e.deliver("sector_rotation", func() { s.sub.OnSectorRotation(r) })
	}
}

// deliver runs one subscriber callback; a panicking subscriber is logged and skipped.
func (e *Engine) deliver(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil && e.logger != nil {
			e.logger.Error("contagion subscriber panic",
				applogger.String("event", kind),
				applogger.Error(fmt.Errorf("%v", r)),
			)
		}
	}()
	fn()
}
