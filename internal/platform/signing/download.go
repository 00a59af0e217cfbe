// Package signing issues and verifies HMAC-signed, expiring download URLs
// for stored resource files.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Signer struct {
	Secret []byte
}

// Signed carries the parameters of a signed download grant.
type Signed struct {
	FileKey string
	Exp     int64
	UID     string
	Sig     string
}

func New(secret string) *Signer {
	return &Signer{Secret: []byte(secret)}
}

func (s *Signer) Sign(fileKey, userID string, exp time.Time) Signed {
	sig := s.signValue(fileKey, userID, exp.Unix())
	return Signed{FileKey: fileKey, Exp: exp.Unix(), UID: userID, Sig: sig}
}

func (s *Signer) Verify(fileKey, userID string, exp int64, sig string) bool {
	if time.Now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(s.signValue(fileKey, userID, exp)))
}

func (s *Signer) signValue(fileKey, userID string, exp int64) string {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(fileKey))
	mac.Write([]byte("|"))
	mac.Write([]byte(userID))
	mac.Write([]byte("|"))
	mac.Write([]byte(strconv.FormatInt(exp, 10)))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// BuildDownloadURL appends the signed grant to the file gateway base URL.
func BuildDownloadURL(base string, signed Signed) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("key", signed.FileKey)
	q.Set("exp", strconv.FormatInt(signed.Exp, 10))
	q.Set("uid", signed.UID)
	q.Set("sig", signed.Sig)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ExtractSigned pulls the signed grant back out of gateway query params.
func ExtractSigned(query url.Values) (string, string, int64, string, error) {
	fileKey := strings.TrimSpace(query.Get("key"))
	uid := strings.TrimSpace(query.Get("uid"))
	expStr := strings.TrimSpace(query.Get("exp"))
	sig := strings.TrimSpace(query.Get("sig"))
	if fileKey == "" || uid == "" || expStr == "" || sig == "" {
		return "", "", 0, "", fmt.Errorf("missing signed params")
	}
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", "", 0, "", err
	}
	return fileKey, uid, exp, sig, nil
}
