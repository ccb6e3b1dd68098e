package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const AccountNumberPrefix = "BTF"

var (
	accountNumberPattern = regexp.MustCompile(`^BTF\d{8}$`)
	sortCodePattern      = regexp.MustCompile(`^\d{2}-\d{2}-\d{2}$`)
)

// GenerateID returns a new random UUID string.
func GenerateID() string {
	return uuid.NewString()
}

// GenerateAccountNumber returns "BTF" followed by 8 random digits.
// Uniqueness is enforced by the store, not here.
func GenerateAccountNumber() (string, error) {
	num, err := rand.Int(rand.Reader, big.NewInt(100_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate account number: %w", err)
	}
	return fmt.Sprintf("%s%08d", AccountNumberPrefix, num.Int64()), nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword checks if a password matches a hash
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NormalizeEmail lower-cases and trims an email so uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidateAccountNumber(accountNumber string) bool {
	return accountNumberPattern.MatchString(accountNumber)
}

func ValidateSortCode(sortCode string) bool {
	return sortCodePattern.MatchString(sortCode)
}
