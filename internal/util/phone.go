package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Phone numbers are exactly 11 digits in the 09XXXXXXXXX mobile format.
var phonePattern = regexp.MustCompile(`^09[0-9]{9}$`)

// Codes are 4 numeric digits.
var codePattern = regexp.MustCompile(`^[0-9]{4}$`)

// ValidPhone reports whether the input is a well-formed mobile number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

// ValidOtpCode reports whether the input is a well-formed 4-digit code.
func ValidOtpCode(code string) bool {
	return codePattern.MatchString(code)
}

// NormalizePhone strips surrounding whitespace and common separators before
// validation.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	phone = strings.ReplaceAll(phone, " ", "")
	phone = strings.ReplaceAll(phone, "-", "")
	return phone
}

// PhoneHash generates a SHA256 hex digest of a normalized phone number, used
// wherever the raw number must not be stored (audit rows, log correlation).
func PhoneHash(phone string) string {
	hash := sha256.Sum256([]byte(NormalizePhone(phone)))
	return hex.EncodeToString(hash[:])
}

// RandomOtpCode draws a 4-digit code uniformly from [1000, 9999].
func RandomOtpCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9000))
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP code: %w", err)
	}
	return fmt.Sprintf("%d", 1000+n.Int64()), nil
}
