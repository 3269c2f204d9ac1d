package internal

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sensiblebit/certbatch"
)

// LoadPasswordsFromFile loads passwords from a file, one password per line.
// Blank lines are skipped.
func LoadPasswordsFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var passwords []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			passwords = append(passwords, pwd)
		}
	}
	return passwords, scanner.Err()
}

// ProcessPasswords merges the built-in defaults, passwordList and the
// contents of passwordFile (if set), dropping duplicates in first-seen order.
// The result is what extraction and report jobs try against encrypted keys
// and PKCS#12/JKS containers.
func ProcessPasswords(passwordList []string, passwordFile string) ([]string, error) {
	passwords := append([]string{}, certbatch.DefaultPasswords()...)
	passwords = append(passwords, passwordList...)

	if passwordFile != "" {
		filePasswords, err := LoadPasswordsFromFile(passwordFile)
		if err != nil {
			return nil, fmt.Errorf("loading passwords from file: %w", err)
		}
		passwords = append(passwords, filePasswords...)
	}

	seen := make(map[string]bool, len(passwords))
	unique := passwords[:0]
	for _, pwd := range passwords {
		if !seen[pwd] {
			seen[pwd] = true
			unique = append(unique, pwd)
		}
	}
	return unique, nil
}
