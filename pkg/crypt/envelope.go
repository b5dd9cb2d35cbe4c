// Copyright 2026 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package crypt envelope-encrypts sensitive job fields (clone URLs, commit
// SHAs) before they travel through the job queue, per the Event Dispatcher
// contract: ciphertext, nonce, and salt travel with the job; the executor
// decrypts before use.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ErrDecrypt is returned when decryption fails, either due to a bad key or
// tampered ciphertext. Per the error taxonomy this is non-retryable.
var ErrDecrypt = errors.New("decrypt-error")

const (
	keyLen   = 32 // AES-256
	saltLen  = 16
	scryptN  = 1 << 15
	scryptR  = 8
	scryptP  = 1
)

// Field is a sensitive string after envelope encryption. It marshals to
// JSON cleanly so it can ride inside a job payload.
type Field struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Salt       string `json:"salt"`
}

// Encrypt seals plaintext under a key derived from secret via scrypt with
// a random per-record salt (preferred per the design over a fixed salt).
func Encrypt(secret, plaintext string) (*Field, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	return &Field{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	}, nil
}

// Decrypt opens a [Field] sealed by Encrypt using the same secret.
// Tampered ciphertext, or a mismatched key, yields [ErrDecrypt].
func Decrypt(secret string, f *Field) (string, error) {
	salt, err := base64.StdEncoding.DecodeString(f.Salt)
	if err != nil {
		return "", fmt.Errorf("%w: malformed salt: %v", ErrDecrypt, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(f.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: malformed nonce: %v", ErrDecrypt, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(f.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext: %v", ErrDecrypt, err)
	}

	gcm, err := newGCM(secret, salt)
	if err != nil {
		return "", err
	}

	if len(nonce) != gcm.NonceSize() {
		return "", fmt.Errorf("%w: invalid nonce length", ErrDecrypt)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plaintext), nil
}

func newGCM(secret string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm: %w", err)
	}
	return gcm, nil
}
