package crypto

// Guard pins key material in RAM for its lifetime where the OS allows it.
type Guard struct {
	buf    []byte
	locked bool
}

func NewGuard(b []byte) *Guard {
	g := &Guard{buf: b}
	if err := lockMemory(b); err == nil {
		g.locked = true
	}
	return g
}

func (g *Guard) Bytes() []byte { return g.buf }

// Destroy zeroes and unpins the buffer. Safe to call more than once.
func (g *Guard) Destroy() {
	Zero(g.buf)
	if g.locked {
		_ = unlockMemory(g.buf)
		g.locked = false
	}
}
