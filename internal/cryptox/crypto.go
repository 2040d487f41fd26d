// Package cryptox decrypts payloads that the identity provider encrypts
// with the per-login session key (for example the bound phone number).
package cryptox

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/zhangleigang/knowledge-api/internal/common"
)

// KeySize is the AES-128 key length expected from the provider.
const KeySize = 16

// DecryptCBC decrypts base64-encoded ciphertext with AES-128-CBC and strips
// PKCS#7 padding. key and iv are base64 as well, exactly as the provider
// hands them out.
//
// Every failure (bad base64, wrong key or iv length, ciphertext that is not
// a whole number of blocks, bad padding) wraps common.ErrDecryption.
func DecryptCBC(ciphertextB64, keyB64, ivB64 string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: session key: %v", common.ErrDecryption, err)
	}
	defer common.WipeByteArray(key)

	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: session key must be %d bytes, got %d", common.ErrDecryption, KeySize, len(key))
	}

	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, fmt.Errorf("%w: iv: %v", common.ErrDecryption, err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", common.ErrDecryption, aes.BlockSize, len(iv))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", common.ErrDecryption, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", common.ErrDecryption)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return unpadPKCS7(plaintext, aes.BlockSize)
}

// DecryptJSON decrypts like DecryptCBC and unmarshals the plaintext into v.
func DecryptJSON(ciphertextB64, keyB64, ivB64 string, v any) error {
	plaintext, err := DecryptCBC(ciphertextB64, keyB64, ivB64)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: payload is not valid JSON: %v", common.ErrDecryption, err)
	}

	return nil
}

func unpadPKCS7(b []byte, blockSize int) ([]byte, error) {
	n := len(b)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", common.ErrDecryption)
	}

	pad := int(b[n-1])
	if pad == 0 || pad > blockSize || pad > n {
		return nil, fmt.Errorf("%w: bad padding", common.ErrDecryption)
	}
	if !bytes.Equal(b[n-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, fmt.Errorf("%w: bad padding", common.ErrDecryption)
	}

	return b[:n-pad], nil
}
