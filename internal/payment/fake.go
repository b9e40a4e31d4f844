package payment

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/example/tablehold/internal/domain/reservation"
)

// Fake is an in-process gateway for development and tests. Methods starting
// with "fail" are declined; methods starting with "flaky" fail the first
// attempt for each idempotency key and succeed afterwards. Repeating a key
// that already succeeded returns the original receipt.
type Fake struct {
	mu       sync.Mutex
	attempts map[string]int
	receipts map[string]reservation.Receipt
	charged  int64
}

func NewFake() *Fake {
	return &Fake{
		attempts: make(map[string]int),
		receipts: make(map[string]reservation.Receipt),
	}
}

func (f *Fake) Charge(ctx context.Context, c reservation.Charge) (reservation.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return reservation.Receipt{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if r, ok := f.receipts[c.IdempotencyKey]; ok {
		return r, nil
	}
	f.attempts[c.IdempotencyKey]++
	switch {
	case c.Amount < 0:
		return reservation.Receipt{}, errors.New("negative amount")
	case strings.HasPrefix(c.Method, "fail"):
		return reservation.Receipt{}, ErrDeclined
	case strings.HasPrefix(c.Method, "flaky") && f.attempts[c.IdempotencyKey] == 1:
		return reservation.Receipt{}, errors.New("gateway timeout")
	}

	r := reservation.Receipt{Reference: "fake_" + c.IdempotencyKey}
	if c.IdempotencyKey == "" {
		r.Reference = "fake_anon"
	} else {
		f.receipts[c.IdempotencyKey] = r
	}
	f.charged += c.Amount
	return r, nil
}

// Charged returns the total amount successfully charged.
func (f *Fake) Charged() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charged
}
