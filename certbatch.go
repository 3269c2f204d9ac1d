// Package certbatch provides the single-file certificate and key primitives
// used by the batch engine: parsing, PEM/DER conversion, public key
// extraction, PKCS#7/PKCS#12 decoding, and JKS truststore updates.
package certbatch

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Format is an on-disk encoding for certificates and keys.
type Format string

const (
	FormatPEM Format = "PEM"
	FormatDER Format = "DER"
)

// ParseFormat converts a case-insensitive format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PEM":
		return FormatPEM, nil
	case "DER":
		return FormatDER, nil
	default:
		return "", fmt.Errorf("unsupported format %q (use PEM or DER)", s)
	}
}

// Extension returns the file extension (with leading dot) used when writing
// data in this format.
func (f Format) Extension() string {
	return "." + strings.ToLower(string(f))
}

// ParsePEMCertificates parses all certificates from a PEM bundle.
func ParsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates found in PEM data")
	}
	return certs, nil
}

// ParseCertificatesAny attempts to parse certificates from raw bytes, trying
// DER first (one or more concatenated certificates), then PEM, then PKCS#7.
func ParseCertificatesAny(data []byte) ([]*x509.Certificate, error) {
	certs, derErr := x509.ParseCertificates(data)
	if derErr == nil && len(certs) > 0 {
		return certs, nil
	}
	certs, pemErr := ParsePEMCertificates(data)
	if pemErr == nil {
		return certs, nil
	}
	certs, p7Err := DecodePKCS7(data)
	if p7Err == nil {
		return certs, nil
	}
	return nil, fmt.Errorf("not DER (%v) or PEM (%v) or PKCS#7 (%v)", derErr, pemErr, p7Err)
}

// normalizeKey dereferences *ed25519.PrivateKey (returned by
// ssh.ParseRawPrivateKey) to the value type so type switches need one case.
func normalizeKey(key crypto.PrivateKey) crypto.PrivateKey {
	if ptr, ok := key.(*ed25519.PrivateKey); ok {
		return *ptr
	}
	return key
}

// ParsePEMPrivateKey parses a PEM-encoded private key (PKCS#1, PKCS#8, EC or
// OpenSSH). For "PRIVATE KEY" blocks it tries PKCS#8 first, then falls back
// to PKCS#1 and EC parsers to handle mislabeled keys.
func ParsePEMPrivateKey(pemData []byte) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found in private key data")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			return normalizeKey(key), nil
		}
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		return nil, errors.New("parsing PRIVATE KEY block with any known format")
	case "OPENSSH PRIVATE KEY":
		key, err := ssh.ParseRawPrivateKey(pemData)
		if err != nil {
			return nil, fmt.Errorf("parsing OpenSSH private key: %w", err)
		}
		return normalizeKey(key), nil
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// DefaultPasswords returns the passwords tried by default when decrypting
// password-protected PEM blocks or PKCS#12 files. Returns a fresh copy each call.
func DefaultPasswords() []string {
	return []string{"", "password", "changeit", "keypassword"}
}

// ParsePEMPrivateKeyWithPasswords tries unencrypted parsing first and then,
// for legacy RFC 1423 encrypted blocks or encrypted OpenSSH keys, each
// password in order.
func ParsePEMPrivateKeyWithPasswords(pemData []byte, passwords []string) (crypto.PrivateKey, error) {
	if key, err := ParsePEMPrivateKey(pemData); err == nil {
		return key, nil
	}

	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found in private key data")
	}

	if block.Type == "OPENSSH PRIVATE KEY" {
		for _, password := range passwords {
			if password == "" {
				continue
			}
			key, err := ssh.ParseRawPrivateKeyWithPassphrase(pemData, []byte(password))
			if err == nil {
				return normalizeKey(key), nil
			}
		}
		return nil, errors.New("parsing OpenSSH private key with any provided password")
	}

	//nolint:staticcheck // legacy encrypted PEM support
	if !x509.IsEncryptedPEMBlock(block) {
		_, err := ParsePEMPrivateKey(pemData)
		return nil, err
	}

	for _, password := range passwords {
		//nolint:staticcheck // legacy encrypted PEM support
		decrypted, err := x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			continue
		}
		clearPEM := pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: decrypted})
		if key, err := ParsePEMPrivateKey(clearPEM); err == nil {
			return key, nil
		}
	}

	return nil, errors.New("decrypting private key with any provided password")
}

// GetPublicKey extracts the public key from a private key via crypto.Signer.
func GetPublicKey(priv crypto.PrivateKey) (crypto.PublicKey, error) {
	if signer, ok := priv.(crypto.Signer); ok {
		return signer.Public(), nil
	}
	return nil, fmt.Errorf("unsupported private key type: %T", priv)
}

// IsPEM returns true if the data appears to contain PEM-encoded content.
func IsPEM(data []byte) bool {
	return bytes.Contains(data, []byte("-----BEGIN"))
}

// ColonHex formats a byte slice as colon-separated lowercase hex.
func ColonHex(b []byte) string {
	h := hex.EncodeToString(b)
	parts := make([]string, 0, len(h)/2)
	for i := 0; i < len(h); i += 2 {
		end := min(i+2, len(h))
		parts = append(parts, h[i:end])
	}
	return strings.Join(parts, ":")
}
