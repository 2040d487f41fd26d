package common

import (
	"crypto/rand"
	"math/big"
)

// RandomDigits returns a string of n decimal digits drawn from crypto/rand.
// Leading zeros are kept, so the result always has length n.
func RandomDigits(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}

	b := make([]byte, n)
	ten := big.NewInt(10)
	for i := range b {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b[i] = byte('0' + d.Int64())
	}

	return string(b), nil
}

// WipeByteArray overwrites b with zeros. It is used to drop decoded key
// material once a decryption is done. A nil slice is a no-op.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
