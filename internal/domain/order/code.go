package order

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
)

const (
	codeMin  = 100000
	codeSpan = 900000

	// DefaultCodeAttempts bounds random code attempts before the
	// timestamp fallback.
	DefaultCodeAttempts = 8
)

// CodeAllocator hands out human-readable order codes of the form #NNNNNN.
// Uniqueness is decided by storage; the allocator only remembers codes it
// has seen taken so it can skip them without a round trip.
type CodeAllocator struct {
	mu       sync.Mutex
	seen     *bloom.BloomFilter
	attempts int
	intn     func(n int) int
	now      func() time.Time
}

// NewCodeAllocator creates an allocator that tries attempts random codes.
func NewCodeAllocator(attempts int) *CodeAllocator {
	if attempts <= 0 {
		attempts = DefaultCodeAttempts
	}
	return &CodeAllocator{
		seen:     bloom.NewWithEstimates(codeSpan, 0.01),
		attempts: attempts,
		intn:     rand.IntN,
		now:      time.Now,
	}
}

// Allocate offers candidate codes to try until one is accepted. try
// reports taken=true when the code already exists. After the random
// attempts a single timestamp-derived code is offered; if that is taken
// as well ErrCodeExhausted is returned.
func (a *CodeAllocator) Allocate(ctx context.Context, try func(code string) (taken bool, err error)) (string, error) {
	for i := 0; i < a.attempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code := a.random()
		if a.mightBeTaken(code) {
			continue
		}
		ok, err := a.offer(code, try)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}

	code := "#" + strconv.FormatInt(a.now().UnixMilli(), 10)
	ok, err := a.offer(code, try)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrCodeExhausted
	}
	return code, nil
}

func (a *CodeAllocator) offer(code string, try func(string) (bool, error)) (bool, error) {
	taken, err := try(code)
	if err != nil {
		return false, err
	}
	a.remember(code)
	return !taken, nil
}

func (a *CodeAllocator) random() string {
	a.mu.Lock()
	n := codeMin + a.intn(codeSpan)
	a.mu.Unlock()
	return "#" + strconv.Itoa(n)
}

func (a *CodeAllocator) mightBeTaken(code string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.seen.TestString(code)
}

func (a *CodeAllocator) remember(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seen.AddString(code)
}
