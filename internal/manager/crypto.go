package manager

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"fmt"
)

// deriveKeyIV reproduces the key/IV derivation the manager's Rust side uses
// via the magic-crypt crate (OpenSSL's EVP_BytesToKey with MD5, no salt):
// repeatedly hash the previous digest concatenated with the passphrase
// until there are enough bytes for a 32-byte key and a 16-byte IV. No
// package in the example pack exposes this derivation directly, so it is
// built here on crypto/md5 and documented as a standard-library exception
// in DESIGN.md.
func deriveKeyIV(passphrase string) (key [32]byte, iv [16]byte) {
	var generated []byte
	var previous []byte
	for len(generated) < len(key)+len(iv) {
		h := md5.New()
		h.Write(previous)
		h.Write([]byte(passphrase))
		previous = h.Sum(nil)
		generated = append(generated, previous...)
	}
	copy(key[:], generated[:32])
	copy(iv[:], generated[32:48])
	return key, iv
}

// decrypt reverses the manager's response encoding: base64 decode, then
// AES-256-CBC decrypt with PKCS#7 unpadding.
func decrypt(value, metaKey string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	key, iv := deriveKeyIV(metaKey)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", fmt.Errorf("building aes cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(plaintext, ciphertext)

	plaintext, err = unpadPKCS7(plaintext)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unpad empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > aes.BlockSize || padLen > len(data) {
		return nil, fmt.Errorf("invalid pkcs7 padding")
	}
	if !bytes.Equal(data[len(data)-padLen:], bytes.Repeat([]byte{byte(padLen)}, padLen)) {
		return nil, fmt.Errorf("invalid pkcs7 padding")
	}
	return data[:len(data)-padLen], nil
}
