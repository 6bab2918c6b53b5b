package testfixtures

import (
	"strconv"
	"sync/atomic"
)

// IDGenerator hands out predictable tokens in place of uuid.NewString so tests
// can address pods, goals, links and bookings by name.
type IDGenerator struct {
	prefix  string
	counter atomic.Uint64
}

// NewIDGenerator yields "<prefix>-1", "<prefix>-2", ... An empty prefix means "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

// Next returns the next token.
func (g *IDGenerator) Next() string {
	return g.prefix + "-" + strconv.FormatUint(g.counter.Add(1), 10)
}

// NextFunc exposes Next for injection. A nil generator yields empty tokens.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

// Issued reports how many tokens were handed out.
func (g *IDGenerator) Issued() uint64 {
	return g.counter.Load()
}
