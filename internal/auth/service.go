package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/virangk414141/vimesta2/internal/directory"
	"github.com/virangk414141/vimesta2/internal/model"
	"github.com/virangk414141/vimesta2/internal/repo"
	"github.com/virangk414141/vimesta2/internal/telegram"
)

const (
	maxUserAgentLen = 500
	sendTimeout     = 10 * time.Second
	devCode         = "123456"
)

// ErrUnauthorized is an invalid, expired or revoked token.
var ErrUnauthorized = errors.New("unauthorized")

// Messenger delivers verification codes over Telegram.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts telegram.SendOptions) (int64, error)
}

// Service orchestrates phone verification and session issuance.
type Service struct {
	challenges *ChallengeStore
	dir        *directory.Directory
	jwt        *JWTService
	users      repo.UserRepo
	sessions   repo.SessionRepo
	messenger  Messenger
	devMode    bool
}

// NewService creates a new auth service. devMode accepts the fixed code
// 123456 without Telegram delivery, for local development only.
func NewService(
	challenges *ChallengeStore,
	dir *directory.Directory,
	jwt *JWTService,
	users repo.UserRepo,
	sessions repo.SessionRepo,
	messenger Messenger,
	devMode bool,
) *Service {
	return &Service{
		challenges: challenges,
		dir:        dir,
		jwt:        jwt,
		users:      users,
		sessions:   sessions,
		messenger:  messenger,
		devMode:    devMode,
	}
}

// RequestCode issues a one-time code for the phone and delivers it as a
// Telegram direct message. Returns ErrIdentityNotLinked when the phone never
// completed the contact-share step, ErrDeliveryFailed when the message could
// not be sent.
func (s *Service) RequestCode(ctx context.Context, phone string) error {
	normalized := directory.NormalizePhone(phone)
	identity, ok := s.dir.Resolve(normalized)
	if !ok {
		return ErrIdentityNotLinked
	}

	code := s.challenges.Issue(normalized, identity.TelegramID)

	if s.devMode {
		log.Printf("auth: dev mode, skipping code delivery for %s", maskPhone(normalized))
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	text := fmt.Sprintf("🔐 <b>Verification Code</b>\n\n<code>%s</code>\n\nExpires in 5 minutes.", code)
	if _, err := s.messenger.SendMessage(sendCtx, identity.TelegramID, text, telegram.SendOptions{}); err != nil {
		log.Printf("auth: code delivery failed for %s: %v", maskPhone(normalized), err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

// VerifyCode validates the code, upserts the user, records a session and
// returns the user with a signed bearer token. Challenge failures come back
// as the typed errors from the ChallengeStore.
func (s *Service) VerifyCode(ctx context.Context, phone, code, ip, userAgent string) (model.User, string, error) {
	normalized := directory.NormalizePhone(phone)

	var telegramID int64
	if s.devMode && code == devCode {
		identity, ok := s.dir.Resolve(normalized)
		if !ok {
			return model.User{}, "", ErrIdentityNotLinked
		}
		telegramID = identity.TelegramID
	} else {
		var err error
		telegramID, err = s.challenges.Verify(normalized, code)
		if err != nil {
			return model.User{}, "", err
		}
	}

	firstName := ""
	if identity, ok := s.dir.Resolve(normalized); ok {
		firstName = identity.FirstName
	}

	user, err := s.users.UpsertByPhone(ctx, normalized, telegramID, firstName)
	if err != nil {
		return model.User{}, "", fmt.Errorf("upsert user: %w", err)
	}

	token, err := s.jwt.Sign(user.ID, telegramID)
	if err != nil {
		return model.User{}, "", fmt.Errorf("sign token: %w", err)
	}

	if len(userAgent) > maxUserAgentLen {
		userAgent = userAgent[:maxUserAgentLen]
	}
	var ipPtr, uaPtr *string
	if ip != "" {
		ipPtr = &ip
	}
	if userAgent != "" {
		uaPtr = &userAgent
	}
	expiresAt := time.Now().Add(s.jwt.TokenTTL())
	if _, err := s.sessions.Create(ctx, user.ID, token, ipPtr, uaPtr, expiresAt); err != nil {
		return model.User{}, "", fmt.Errorf("create session: %w", err)
	}
	return user, token, nil
}

// ValidateToken checks signature and expiry only; it never touches the
// session store.
func (s *Service) ValidateToken(token string) (uuid.UUID, error) {
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return uuid.Nil, ErrUnauthorized
	}
	return claims.UserID, nil
}

// Authenticate validates the token and additionally requires an active,
// unexpired session record, giving logout real effect.
func (s *Service) Authenticate(ctx context.Context, token string) (model.User, error) {
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return model.User{}, ErrUnauthorized
	}
	if _, err := s.sessions.GetActiveByToken(ctx, token); err != nil {
		return model.User{}, ErrUnauthorized
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return model.User{}, ErrUnauthorized
	}
	return user, nil
}

// Logout revokes the session for the token; a no-op for unknown or already
// revoked tokens.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// maskPhone keeps only the last two digits for logs.
func maskPhone(phone string) string {
	if len(phone) <= 2 {
		return "***"
	}
	return "***" + phone[len(phone)-2:]
}
