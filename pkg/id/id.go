package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a random, time-sortable ULID string. It is used for run
// identifiers, which must differ between runs.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}

// Sequence generates ULIDs from a seeded entropy source and caller
// supplied timestamps. Two sequences with the same seed fed the same
// timestamps produce the same IDs, which keeps replays byte-identical.
type Sequence struct {
	mu      sync.Mutex
	entropy io.Reader
}

func NewSequence(seed int64) *Sequence {
	return &Sequence{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// Next returns the ULID for at. IDs for the same millisecond increase
// monotonically.
func (s *Sequence) Next(at time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(at.UTC()), s.entropy)
	if err != nil {
		// Only reachable on entropy overflow within one millisecond.
		panic(err)
	}
	return id.String()
}
