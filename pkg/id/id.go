package id

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"
)

// NowMs returns current time in milliseconds since Unix epoch. Overridable in tests.
var NowMs = func() int64 { return time.Now().UnixMilli() }

const suffixDigits = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewInstanceID returns an identifier unique to this process:
// "{pid}-{random base36 suffix}-{randomized ms component}".
func NewInstanceID() string {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	suffix := make([]byte, 8)
	for i := range suffix {
		suffix[i] = suffixDigits[rng.Intn(len(suffixDigits))]
	}
	// Random slice of the timestamp keeps two instances spawned in the same
	// millisecond from colliding even with an unlucky suffix.
	ts := NowMs() ^ rng.Int63()
	return fmt.Sprintf("%d-%s-%s", os.Getpid(), suffix, strconv.FormatInt(ts&0xffffffff, 36))
}
