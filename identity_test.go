package microfeed

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := IssueToken([]byte("k"), "u1", "Alice", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	id, err := ParseToken([]byte("k"), tok)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if id.ID != "u1" || id.DisplayName != "Alice" {
		t.Errorf("identity = %+v", id)
	}
}

func TestParseTokenFallsBackToSubject(t *testing.T) {
	claims := jwt.RegisteredClaims{Subject: "u9", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	id, err := ParseToken([]byte("k"), tok)
	if err != nil {
		t.Fatalf("ParseToken failed: %v", err)
	}
	if id.ID != "u9" || id.DisplayName != "" {
		t.Errorf("identity = %+v", id)
	}
}

func TestParseTokenRejects(t *testing.T) {
	good, _ := IssueToken([]byte("k"), "u1", "", time.Hour, time.Now())
	expired, _ := IssueToken([]byte("k"), "u1", "", time.Minute, time.Now().Add(-time.Hour))
	noUID, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("k"))
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UID: "u1"}).SignedString([]byte("k"))

	tests := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", good},
		{"expired", "k", expired},
		{"missing uid", "k", noUID},
		{"other algorithm", "k", hs512},
		{"garbage", "k", "abc.def.ghi"},
		{"empty", "k", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken([]byte(tt.secret), tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}
