package sim

import (
	"maps"
	"sync"
)

// ModelPool recycles models built by one factory. Returned models are
// restored to the factory's default parameters and initial states.
type ModelPool struct {
	pool     sync.Pool
	factory  func() (Model, error)
	once     sync.Once
	defaults map[string]float64
}

func NewModelPool(factory func() (Model, error)) *ModelPool {
	return &ModelPool{factory: factory}
}

func (p *ModelPool) Get() (Model, error) {
	if m, ok := p.pool.Get().(Model); ok {
		return m, nil
	}
	m, err := p.factory()
	if err != nil {
		return nil, err
	}
	p.once.Do(func() { p.defaults = maps.Clone(m.GetParams()) })
	return m, nil
}

func (p *ModelPool) Put(m Model) {
	if m == nil {
		return
	}
	if err := m.SetParameters(p.defaults); err != nil {
		return
	}
	m.ResetStates()
	p.pool.Put(m)
}
