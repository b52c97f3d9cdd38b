// Package notify delivers user-facing lines to the console and optional
// mirrors such as IRC.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// DefaultPrefix marks every console line written by rcmesh.
const DefaultPrefix = "[rcmesh] "

// Sink receives one user-facing line.
type Sink interface {
	Notify(line string)
}

// Console writes lines to w, one prefixed line per input line.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	prefix string
}

// NewConsole returns a console sink using DefaultPrefix.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w, prefix: DefaultPrefix}
}

// WithPrefix replaces the line prefix.
func (c *Console) WithPrefix(prefix string) *Console {
	c.prefix = prefix
	return c
}

func (c *Console) Notify(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range strings.Split(line, "\n") {
		fmt.Fprintf(c.w, "%s%s\n", c.prefix, l)
	}
}

// Multi fans a line out to several sinks in order. Nil sinks are skipped.
type Multi []Sink

func (m Multi) Notify(line string) {
	for _, s := range m {
		if s != nil {
			s.Notify(line)
		}
	}
}

// Func adapts a function to a Sink.
type Func func(line string)

func (f Func) Notify(line string) { f(line) }
