package testsupport

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessToken signs a throwaway JWT whose exp claim is set to expiresAt.
func AccessToken(t testing.TB, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "test-user",
		"exp": expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
