package utils

import (
	"crypto/rand"
	"math/big"
)

const TokenCodeLength = 8
const letterBytes = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateTokenCode returns a random upper case code without look-alike characters (0/O, 1/I).
func GenerateTokenCode() (string, error) {
	b := make([]byte, TokenCodeLength)
	max := big.NewInt(int64(len(letterBytes)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = letterBytes[n.Int64()]
	}
	return string(b), nil
}
