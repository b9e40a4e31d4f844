// Package ids mints hold, reservation and user identifiers and confirmation codes.
package ids

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// codeAlphabet leaves out characters that read alike (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 6

type Generator struct {
	Prefix string
}

func New() Generator {
	return Generator{Prefix: "TH"}
}

func (Generator) NewID() string {
	return uuid.NewString()
}

// NewConfirmationCode returns a code such as "TH-7KQ2MX".
func (g Generator) NewConfirmationCode() string {
	b := make([]byte, codeLength)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			// crypto/rand does not fail on supported platforms; fall back to uuid entropy.
			n = big.NewInt(int64(uuid.New()[i] % byte(len(codeAlphabet))))
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	if g.Prefix == "" {
		return string(b)
	}
	return g.Prefix + "-" + string(b)
}
