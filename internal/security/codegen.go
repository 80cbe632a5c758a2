package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
)

const (
	base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// MinUniqueIDLength is the shortest unique ID GenerateUniqueID will build
	MinUniqueIDLength = 8
	// minRandomSuffix is the number of random characters always kept at the end of a unique ID
	minRandomSuffix = 4
)

var nowFunc = time.Now

// GenerateNumericCode returns length uniformly distributed decimal digits
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", domain.Invalidf("code length must be positive")
	}
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to read random digit: %w", err)
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}

// GenerateUniqueID returns prefix + base62 millisecond timestamp + random base62 suffix,
// exactly totalLength characters long. The timestamp is cut from the left when it does
// not fit so that at least four random characters remain.
func GenerateUniqueID(prefix string, totalLength int) (string, error) {
	if totalLength < MinUniqueIDLength {
		return "", domain.Invalidf("unique id length must be at least %d", MinUniqueIDLength)
	}
	if len(prefix) != 2 || !isBase62(prefix) {
		return "", domain.Invalidf("unique id prefix must be two alphanumeric characters")
	}

	body := totalLength - len(prefix)
	ts := encodeBase62(uint64(nowFunc().UnixMilli()))
	if maxTs := body - minRandomSuffix; len(ts) > maxTs {
		ts = ts[len(ts)-maxTs:]
	}

	suffix, err := randomBase62(body - len(ts))
	if err != nil {
		return "", err
	}
	return prefix + ts + suffix, nil
}

// ExpiryTimestamp returns the UTC instant minutes from now
func ExpiryTimestamp(minutes int) time.Time {
	return nowFunc().UTC().Add(time.Duration(minutes) * time.Minute)
}

func encodeBase62(n uint64) string {
	if n == 0 {
		return "0"
	}
	var out []byte
	for n > 0 {
		out = append(out, base62Alphabet[n%62])
		n /= 62
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

func randomBase62(n int) (string, error) {
	buf := make([]byte, n)
	limit := big.NewInt(int64(len(base62Alphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to read random character: %w", err)
		}
		buf[i] = base62Alphabet[idx.Int64()]
	}
	return string(buf), nil
}

func isBase62(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
