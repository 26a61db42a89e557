package payments

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// RefGen produces external references of the form PFX-<unixnano>-<random>.
// They key pending ledger records and double as the bill reference a payer
// quotes on the payment rail, so they stay short and human-relayable.
// Uniqueness is ultimately enforced by the ledger's unique index.
type RefGen struct{}

func NewRefGen() *RefGen {
	return &RefGen{}
}

func (g *RefGen) NewRef(prefix string) string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; fall back to the
		// clock rather than panicking in a request path.
		binary.BigEndian.PutUint32(buf[:], uint32(time.Now().UnixNano()))
	}
	suffix := 1000 + binary.BigEndian.Uint32(buf[:])%9000
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), suffix)
}
