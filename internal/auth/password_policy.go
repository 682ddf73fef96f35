// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tasklane Contributors

package auth

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samber/oops"
)

// PasswordPolicy is the password strength policy. It is configuration, loaded
// by internal/config.
type PasswordPolicy struct {
	MinLength     int
	MaxLength     int
	RequireLetter bool
	RequireDigit  bool
	DenyList      []string
}

// DefaultPasswordPolicy is used when no policy is configured.
var DefaultPasswordPolicy = PasswordPolicy{
	MinLength:     8,
	MaxLength:     128,
	RequireLetter: true,
	RequireDigit:  true,
	DenyList:      []string{"password", "123456", "qwerty", "letmein", "iloveyou", "admin"},
}

func (p PasswordPolicy) withDefaults() PasswordPolicy {
	if p.MinLength <= 0 {
		p.MinLength = DefaultPasswordPolicy.MinLength
	}
	if p.MaxLength <= 0 {
		p.MaxLength = DefaultPasswordPolicy.MaxLength
	}
	if p.DenyList == nil {
		p.DenyList = DefaultPasswordPolicy.DenyList
	}
	return p
}

// Validate returns an AUTH_WEAK_PASSWORD error describing the first rule the
// password breaks.
func (p PasswordPolicy) Validate(password string) error {
	p = p.withDefaults()
	n := utf8.RuneCountInString(password)

	if n < p.MinLength {
		return weakPassword("too_short", "password must be at least %d characters", p.MinLength)
	}
	if n > p.MaxLength {
		return weakPassword("too_long", "password must be at most %d characters", p.MaxLength)
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if p.RequireLetter && !hasLetter {
		return weakPassword("no_letter", "password must contain a letter")
	}
	if p.RequireDigit && !hasDigit {
		return weakPassword("no_digit", "password must contain a digit")
	}

	if singleRune(password) {
		return weakPassword("repeated", "password must not be a single repeated character")
	}

	lower := strings.ToLower(password)
	for _, weak := range p.DenyList {
		if weak != "" && strings.Contains(lower, strings.ToLower(weak)) {
			return weakPassword("deny_list", "password is too common")
		}
	}
	return nil
}

func weakPassword(rule, format string, args ...any) error {
	return oops.Code("AUTH_WEAK_PASSWORD").With("rule", rule).Errorf(format, args...)
}

func singleRune(s string) bool {
	first, size := utf8.DecodeRuneInString(s)
	for _, r := range s[size:] {
		if r != first {
			return false
		}
	}
	return true
}
