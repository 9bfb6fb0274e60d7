package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"
)

const (
	challengeTTL = 5 * time.Minute
	maxAttempts  = 3
)

var (
	// ErrIdentityNotLinked means the phone never completed the Telegram
	// contact-share step; the caller must link the identity first.
	ErrIdentityNotLinked = errors.New("phone not linked to a telegram identity")
	// ErrChallengeNotFound means no live code exists for the phone.
	ErrChallengeNotFound = errors.New("no verification code requested")
	// ErrChallengeExpired means the code's validity window has passed.
	ErrChallengeExpired = errors.New("verification code expired")
	// ErrTooManyAttempts means the code was guessed wrong three times.
	ErrTooManyAttempts = errors.New("too many verification attempts")
	// ErrDeliveryFailed means the code could not be sent to the user.
	ErrDeliveryFailed = errors.New("failed to deliver verification code")
)

// InvalidCodeError is a wrong guess against a live challenge.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts left", e.Remaining)
}

type challenge struct {
	code       string
	expiresAt  time.Time
	attempts   int
	telegramID int64
}

// ChallengeStore holds live one-time codes keyed by normalized phone. Codes
// are single-use, expire after five minutes and tolerate three wrong
// guesses. The store is memory-resident; losing it on restart only forces
// users to request a fresh code.
type ChallengeStore struct {
	mu      sync.Mutex
	byPhone map[string]*challenge
	now     func() time.Time
}

// NewChallengeStore creates an empty store.
func NewChallengeStore() *ChallengeStore {
	return &ChallengeStore{
		byPhone: make(map[string]*challenge),
		now:     time.Now,
	}
}

// Issue generates a fresh 6-digit code for phone, replacing any live
// challenge, and returns it for delivery.
func (s *ChallengeStore) Issue(phone string, telegramID int64) string {
	code := generateCode()
	s.mu.Lock()
	s.byPhone[phone] = &challenge{
		code:       code,
		expiresAt:  s.now().Add(challengeTTL),
		telegramID: telegramID,
	}
	s.mu.Unlock()
	return code
}

// Verify checks code against the live challenge for phone. On success the
// challenge is consumed and the linked Telegram id returned. Expired and
// attempt-exhausted challenges are purged on check, so a consumed code can
// never be verified twice.
func (s *ChallengeStore) Verify(phone, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.byPhone[phone]
	if !ok {
		return 0, ErrChallengeNotFound
	}
	if s.now().After(ch.expiresAt) {
		delete(s.byPhone, phone)
		return 0, ErrChallengeExpired
	}
	if ch.attempts >= maxAttempts {
		delete(s.byPhone, phone)
		return 0, ErrTooManyAttempts
	}
	if ch.code != code {
		ch.attempts++
		return 0, &InvalidCodeError{Remaining: maxAttempts - ch.attempts}
	}
	delete(s.byPhone, phone)
	return ch.telegramID, nil
}

func generateCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		panic(fmt.Sprintf("read random: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}
