package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func TestJWT_signAndVerify(t *testing.T) {
	svc := NewJWTService("test-secret-at-least-32-characters-long")
	userID := uuid.New()

	token, err := svc.Sign(userID, 1001)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("user id = %s, want %s", claims.UserID, userID)
	}
	if claims.TelegramID != 1001 {
		t.Errorf("telegram id = %d, want 1001", claims.TelegramID)
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl < tokenExpiry-time.Minute || ttl > tokenExpiry {
		t.Errorf("token ttl = %v, want ~%v", ttl, tokenExpiry)
	}
}

func TestJWT_wrongSecretRejected(t *testing.T) {
	token, err := NewJWTService("secret-one").Sign(uuid.New(), 1001)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewJWTService("secret-two").Verify(token); err == nil {
		t.Error("token signed with a different secret should not verify")
	}
}

func TestJWT_garbageRejected(t *testing.T) {
	svc := NewJWTService("test-secret")
	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := svc.Verify(tok); err == nil {
			t.Errorf("Verify(%q) should fail", tok)
		}
	}
}

func TestJWT_expiredRejected(t *testing.T) {
	svc := NewJWTService("test-secret")
	claims := &Claims{
		UserID:     uuid.New(),
		TelegramID: 1001,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * tokenExpiry)),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(svc.secret)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify(token); err == nil {
		t.Error("expired token should not verify")
	}
}

func TestJWT_noneAlgorithmRejected(t *testing.T) {
	svc := NewJWTService("test-secret")
	claims := &Claims{
		UserID: uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify(token); err == nil {
		t.Error("alg=none token should not verify")
	}
}
