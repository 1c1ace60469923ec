package auth

import "testing"

func TestHashAndCheckToken(t *testing.T) {
	hash, err := HashToken("s3cret")
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}
	if !CheckToken("s3cret", hash) {
		t.Error("correct token rejected")
	}
	if CheckToken("wrong", hash) {
		t.Error("wrong token accepted")
	}
	if CheckToken("", hash) || CheckToken("s3cret", "") {
		t.Error("empty token or hash accepted")
	}
}

func TestGenerateToken(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateToken()
	if len(a) != 64 || a == b {
		t.Errorf("tokens %q %q", a, b)
	}
}
