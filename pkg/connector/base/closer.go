package base

import (
	"sync"

	"go.uber.org/zap"
)

type closeFunc struct {
	name string
	fn   func() error
}

// Closer is a stack of release functions. Handles are pushed in the order
// they are opened and released in reverse.
//
//	c := base.NewCloser()
//	conn, err := net.Dial("tcp", addr)
//	if err != nil {
//	    return err
//	}
//	c.Push("conn", conn.Close)
//	session, err := dialer.Dial(conn)
//	if err != nil {
//	    c.CloseAll(log)
//	    return err
//	}
type Closer struct {
	mu    sync.Mutex
	stack []closeFunc
}

// NewCloser creates an empty Closer.
func NewCloser() *Closer {
	return &Closer{}
}

// Push adds a release function on top of the stack.
func (c *Closer) Push(name string, fn func() error) {
	c.mu.Lock()
	c.stack = append(c.stack, closeFunc{name: name, fn: fn})
	c.mu.Unlock()
}

// Len returns the number of pending release functions.
func (c *Closer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack)
}

// CloseAll pops and runs every release function, innermost first. Every
// function runs even when an earlier one fails; failures are logged at warn
// level and swallowed. The first failure is returned for callers that want it.
func (c *Closer) CloseAll(log *zap.Logger) error {
	c.mu.Lock()
	stack := c.stack
	c.stack = nil
	c.mu.Unlock()

	var first error
	for i := len(stack) - 1; i >= 0; i-- {
		if err := stack[i].fn(); err != nil {
			if log != nil {
				log.Warn("failed to close resource",
					zap.String("resource", stack[i].name),
					zap.Error(err))
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}
