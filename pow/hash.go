package pow

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HashLength is the length in characters of a hex digest returned by Sum.
const HashLength = 64

// Sum returns the lowercase hex SHA3-256 digest of data.
func Sum(data []byte) string {
	digest := sha3.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Target returns the prefix a digest must start with to satisfy difficulty.
func Target(difficulty uint) string {
	return strings.Repeat("0", int(difficulty))
}

// MeetsDifficulty reports whether the first difficulty characters of hash are
// all '0'. A difficulty longer than the hash can never be met.
func MeetsDifficulty(hash string, difficulty uint) bool {
	if difficulty > uint(len(hash)) {
		return false
	}
	for i := uint(0); i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}
