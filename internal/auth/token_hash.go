// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// OneTimeTokenBytes is the entropy of reset and verification tokens
// (32 bytes = 64 hex chars).
const OneTimeTokenBytes = 32

// HashToken returns the hex SHA-256 digest of a token. Only digests are
// persisted, never raw tokens.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyTokenHash checks a plaintext token against a stored digest in
// constant time.
func VerifyTokenHash(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}

// GenerateOneTimeToken creates a random token and its digest.
// The plaintext goes to the user; the digest goes to the store.
func GenerateOneTimeToken() (token, hash string, err error) {
	buf := make([]byte, OneTimeTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("TOKEN_GENERATE_FAILED").Wrap(err)
	}
	token = hex.EncodeToString(buf)
	return token, HashToken(token), nil
}
