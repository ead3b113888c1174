package pending

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	IDPrefix         = "pending:"
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ApprovalCodeSize = 8

	// Bytes at or above this are discarded so every symbol is equally likely.
	codeRejectFrom = 256 - 256%len(codeAlphabet)
)

// IDSource mints pending ids (time-ordered ULIDs) and approval codes.
type IDSource struct {
	mu        sync.Mutex
	entropy   io.Reader
	monotonic io.Reader
}

func NewIDSource(entropy io.Reader) *IDSource {
	if entropy == nil {
		entropy = rand.Reader
	}
	return &IDSource{entropy: entropy, monotonic: ulid.Monotonic(entropy, 0)}
}

func (s *IDSource) NewID(now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(now), s.monotonic)
	if err != nil {
		return "", err
	}
	return IDPrefix + id.String(), nil
}

// NewCode returns a short uppercase alphanumeric code. Codes are not checked for uniqueness.
func (s *IDSource) NewCode() (string, error) {
	code := make([]byte, 0, ApprovalCodeSize)
	buf := make([]byte, ApprovalCodeSize)
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(code) < ApprovalCodeSize {
		if _, err := io.ReadFull(s.entropy, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= codeRejectFrom {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == ApprovalCodeSize {
				break
			}
		}
	}
	return string(code), nil
}
