package auth

import "testing"

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	encoded, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword("correct horse battery staple", encoded) {
		t.Fatal("expected verification to succeed")
	}
	if VerifyPassword("wrong password", encoded) {
		t.Fatal("expected verification to fail for wrong password")
	}
}

func TestHashPasswordRejectsShortPassword(t *testing.T) {
	if _, err := HashPassword("short"); err == nil {
		t.Fatal("expected error for password under minimum length")
	}
}

func TestHashPasswordProducesUniqueSalts(t *testing.T) {
	a, err := HashPassword("same password here")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("same password here")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if a == b {
		t.Fatal("expected different encoded hashes due to random salt")
	}
}

func TestVerifyPasswordRejectsMalformedEncoding(t *testing.T) {
	cases := []string{
		"",
		"not-encoded-at-all",
		"$argon2id$v=19$m=65536,t=1,p=4$salt$hash$extra",
		"$bcrypt$v=19$m=65536,t=1,p=4$salt$hash",
	}
	for _, c := range cases {
		if VerifyPassword("anything", c) {
			t.Fatalf("expected rejection for malformed encoding %q", c)
		}
	}
}
