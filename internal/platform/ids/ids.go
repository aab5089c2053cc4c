// Package ids はサービス層に注入する時計と ID 採番器。
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

type IDGen interface {
	New() (string, error)
}

// ULIDGen: 同一ミリ秒内でも単調増加する ULID
type ULIDGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewULIDGen() *ULIDGen {
	return &ULIDGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ULIDGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), g.entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
