package signing

import (
	"net/url"
	"testing"
	"time"
)

func newSigner() *Signer { return New("test-signing-secret-32-bytes-ok!") }

const testFileKey = "uploads/2026/calc-ii-cheatsheet.pdf"

func TestSign_Verify_HappyPath(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(time.Hour)

	signed := s.Sign(testFileKey, "user-1", exp)
	if !s.Verify(testFileKey, "user-1", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to return true for valid signature")
	}
}

func TestVerify_Expired(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(-time.Hour)

	signed := s.Sign(testFileKey, "user-1", exp)
	if s.Verify(testFileKey, "user-1", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to return false for expired signature")
	}
}

func TestVerify_TamperedFileKey(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(time.Hour)
	signed := s.Sign("uploads/a.pdf", "user-1", exp)

	if s.Verify("uploads/b.pdf", "user-1", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to fail for tampered file key")
	}
}

func TestVerify_TamperedUserID(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(time.Hour)
	signed := s.Sign("uploads/a.pdf", "user-1", exp)

	if s.Verify("uploads/a.pdf", "user-2", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to fail for different user")
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	s1 := newSigner()
	s2 := New("different-secret-32-bytes-padded!!")
	exp := time.Now().Add(time.Hour)

	signed := s1.Sign("uploads/a.pdf", "user-1", exp)
	if s2.Verify("uploads/a.pdf", "user-1", signed.Exp, signed.Sig) {
		t.Fatal("expected Verify to fail with different secret")
	}
}

func TestBuildDownloadURL_ExtractSigned_Roundtrip(t *testing.T) {
	s := newSigner()
	exp := time.Now().Add(time.Hour)
	signed := s.Sign(testFileKey, "user-42", exp)

	downloadURL, err := BuildDownloadURL("https://files.example.com/download", signed)
	if err != nil {
		t.Fatalf("BuildDownloadURL: %v", err)
	}

	u, _ := url.Parse(downloadURL)
	extractedKey, extractedUID, extractedExp, extractedSig, err := ExtractSigned(u.Query())
	if err != nil {
		t.Fatalf("ExtractSigned: %v", err)
	}

	if extractedKey != testFileKey {
		t.Fatalf("expected key %q, got %q", testFileKey, extractedKey)
	}
	if extractedUID != "user-42" {
		t.Fatalf("expected uid 'user-42', got %q", extractedUID)
	}
	if extractedExp != signed.Exp {
		t.Fatalf("expected exp %d, got %d", signed.Exp, extractedExp)
	}
	if !s.Verify(extractedKey, extractedUID, extractedExp, extractedSig) {
		t.Fatal("extracted signature should verify successfully")
	}
}

func TestExtractSigned_MissingParams(t *testing.T) {
	tests := []struct {
		name   string
		values url.Values
	}{
		{"missing key", url.Values{"uid": {"u"}, "exp": {"1"}, "sig": {"s"}}},
		{"missing uid", url.Values{"key": {"k"}, "exp": {"1"}, "sig": {"s"}}},
		{"missing exp", url.Values{"key": {"k"}, "uid": {"u"}, "sig": {"s"}}},
		{"missing sig", url.Values{"key": {"k"}, "uid": {"u"}, "exp": {"1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, _, err := ExtractSigned(tt.values)
			if err == nil {
				t.Fatal("expected error for missing param")
			}
		})
	}
}
