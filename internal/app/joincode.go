package app

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// DefaultJoinCodeLength matches the short codes hosts read out in class.
const DefaultJoinCodeLength = 4

// joinCodeAlphabet avoids ambiguous glyphs (0/O, 1/I/L) so codes survive
// being dictated or scribbled on a whiteboard.
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// JoinCodeGenerator produces candidate join codes. Uniqueness among
// non-completed sessions is enforced by the session store, not here.
type JoinCodeGenerator struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	length int
}

func NewJoinCodeGenerator(length int) *JoinCodeGenerator {
	if length <= 0 {
		length = DefaultJoinCodeLength
	}
	return &JoinCodeGenerator{
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		length: length,
	}
}

// Next returns a fresh candidate code.
func (g *JoinCodeGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := make([]byte, g.length)
	for i := range b {
		b[i] = joinCodeAlphabet[g.rnd.Intn(len(joinCodeAlphabet))]
	}
	return string(b)
}

// NormalizeJoinCode canonicalizes user input; join codes are case-insensitive.
func NormalizeJoinCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}
