package nyx

// Idle fires its callback every iteration the loop is non-empty (phase 4
// of spec.md §4.1) -- useful for background work that should yield to any
// real I/O or timer.
type Idle struct {
	Handle
	cb func(*Idle)
}

// NewIdle creates an inactive idle handle bound to loop.
func NewIdle(loop *Loop) *Idle {
	h := &Idle{Handle: newHandle(loop, KindIdle)}
	h.Handle.Ref()
	h.detach = func() {}
	loop.idles = append(loop.idles, h)
	return h
}

// Start arms the idle handle with cb.
func (i *Idle) Start(cb func(*Idle)) {
	i.cb = cb
	i.activate()
}

// Stop disarms the idle handle.
func (i *Idle) Stop() { i.deactivate() }

// Prepare fires its callback just before the loop blocks in the backend
// poller (phase 5).
type Prepare struct {
	Handle
	cb func(*Prepare)
}

// NewPrepare creates an inactive prepare handle bound to loop.
func NewPrepare(loop *Loop) *Prepare {
	h := &Prepare{Handle: newHandle(loop, KindPrepare)}
	h.Handle.Ref()
	h.detach = func() {}
	loop.prepares = append(loop.prepares, h)
	return h
}

// Start arms the prepare handle with cb.
func (p *Prepare) Start(cb func(*Prepare)) {
	p.cb = cb
	p.activate()
}

// Stop disarms the prepare handle.
func (p *Prepare) Stop() { p.deactivate() }

// Check fires its callback right after the backend poller returns, after
// I/O callbacks have run (phase 9).
type Check struct {
	Handle
	cb func(*Check)
}

// NewCheck creates an inactive check handle bound to loop.
func NewCheck(loop *Loop) *Check {
	h := &Check{Handle: newHandle(loop, KindCheck)}
	h.Handle.Ref()
	h.detach = func() {}
	loop.checks = append(loop.checks, h)
	return h
}

// Start arms the check handle with cb.
func (c *Check) Start(cb func(*Check)) {
	c.cb = cb
	c.activate()
}

// Stop disarms the check handle.
func (c *Check) Stop() { c.deactivate() }
