package recordid

import (
	"math/rand"
	mrand "math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const prefix = "up_"

var (
	entropyMu   sync.Mutex
	entropyOnce sync.Once
	entropy     *ulid.MonotonicEntropy
)

func newEntropy() *ulid.MonotonicEntropy {
	entropyOnce.Do(func() {
		source := rand.NewSource(time.Now().UnixNano())
		entropy = ulid.Monotonic(rand.New(source), 0)
	})
	return entropy
}

// New returns an up_* ULID string. Values sort by creation time.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), newEntropy())
	return prefix + strings.ToLower(id.String())
}

// IsValid reports whether the string is an up_* ULID.
func IsValid(value string) bool {
	if !strings.HasPrefix(value, prefix) {
		return false
	}
	_, err := Parse(value)
	return err == nil
}

// Parse strips the up_ prefix and returns the ULID.
func Parse(value string) (ulid.ULID, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, prefix)
	return ulid.ParseStrict(strings.ToUpper(value))
}

// NewLocalID returns a random four digit identifier in [1000, 9999].
// No uniqueness check is made; two records may share a value.
func NewLocalID() string {
	return strconv.Itoa(1000 + mrand.IntN(9000))
}

// IsLocalID reports whether value has the shape produced by NewLocalID.
func IsLocalID(value string) bool {
	if len(value) != 4 {
		return false
	}
	n, err := strconv.Atoi(value)
	return err == nil && n >= 1000
}
