package certbatch

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // needed for legacy DSA certificate keys
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrEncryptedKey is returned when an encrypted private key would have to be
// re-encoded without being decrypted.
var ErrEncryptedKey = errors.New("encrypted private key cannot be converted without decryption")

// ConvertFormat re-encodes certificate or key material into the target
// format. The source format is detected from the data. PEM to DER requires
// exactly one PEM block; DER to PEM labels the block by what the DER parses
// as. Converting to the same format validates and normalizes the data.
func ConvertFormat(data []byte, to Format) ([]byte, error) {
	var blocks []*pem.Block
	var err error
	if IsPEM(data) {
		blocks, err = decodePEMBlocks(data)
	} else {
		blocks, err = classifyDER(data)
	}
	if err != nil {
		return nil, err
	}

	switch to {
	case FormatPEM:
		var out []byte
		for _, b := range blocks {
			out = append(out, pem.EncodeToMemory(b)...)
		}
		return out, nil
	case FormatDER:
		if len(blocks) != 1 {
			return nil, fmt.Errorf("DER holds exactly one object, found %d PEM blocks", len(blocks))
		}
		if len(blocks[0].Headers) > 0 {
			return nil, ErrEncryptedKey
		}
		return blocks[0].Bytes, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", to)
	}
}

// decodePEMBlocks decodes and validates every PEM block in data. Blocks whose
// contents do not parse as their declared type are rejected so a corrupted
// file never converts silently.
func decodePEMBlocks(data []byte) ([]*pem.Block, error) {
	var blocks []*pem.Block
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if err := validatePEMBlock(block); err != nil {
			return nil, fmt.Errorf("validating %s block: %w", block.Type, err)
		}
		blocks = append(blocks, block)
	}
	if len(blocks) == 0 {
		return nil, errors.New("no PEM blocks found")
	}
	return blocks, nil
}

func validatePEMBlock(block *pem.Block) error {
	//nolint:staticcheck // legacy encrypted PEM support
	if x509.IsEncryptedPEMBlock(block) {
		return nil
	}
	var err error
	switch block.Type {
	case "CERTIFICATE":
		_, err = x509.ParseCertificate(block.Bytes)
	case "CERTIFICATE REQUEST", "NEW CERTIFICATE REQUEST":
		_, err = x509.ParseCertificateRequest(block.Bytes)
	case "PUBLIC KEY":
		_, err = x509.ParsePKIXPublicKey(block.Bytes)
	case "RSA PUBLIC KEY":
		_, err = x509.ParsePKCS1PublicKey(block.Bytes)
	case "PRIVATE KEY":
		_, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		_, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		_, err = x509.ParseECPrivateKey(block.Bytes)
	case "X509 CRL":
		_, err = x509.ParseRevocationList(block.Bytes)
	case "PKCS7":
		_, err = DecodePKCS7(block.Bytes)
	}
	return err
}

// classifyDER identifies what a DER blob contains and wraps it in PEM blocks
// with the matching label. Concatenated certificates yield one block each.
func classifyDER(data []byte) ([]*pem.Block, error) {
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	if certs, err := x509.ParseCertificates(data); err == nil && len(certs) > 0 {
		blocks := make([]*pem.Block, 0, len(certs))
		for _, c := range certs {
			blocks = append(blocks, &pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})
		}
		return blocks, nil
	}

	label := ""
	switch {
	case parses(x509.ParseCertificateRequest, data):
		label = "CERTIFICATE REQUEST"
	case parses(x509.ParsePKCS8PrivateKey, data):
		label = "PRIVATE KEY"
	case parses(x509.ParsePKCS1PrivateKey, data):
		label = "RSA PRIVATE KEY"
	case parses(x509.ParseECPrivateKey, data):
		label = "EC PRIVATE KEY"
	case parses(x509.ParsePKIXPublicKey, data):
		label = "PUBLIC KEY"
	case parses(x509.ParseRevocationList, data):
		label = "X509 CRL"
	case parses(DecodePKCS7, data):
		label = "PKCS7"
	default:
		return nil, errors.New("data is not a DER certificate, CSR, key, CRL or PKCS#7 structure")
	}
	return []*pem.Block{{Type: label, Bytes: data}}, nil
}

func parses[T any](parse func([]byte) (T, error), data []byte) bool {
	_, err := parse(data)
	return err == nil
}

// ContainsPrivateKey reports whether PEM or DER data holds private key
// material. Output files carrying keys are written with restricted permissions.
func ContainsPrivateKey(data []byte) bool {
	if IsPEM(data) {
		rest := data
		for {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				return false
			}
			if strings.Contains(block.Type, "PRIVATE KEY") {
				return true
			}
		}
	}
	return parses(x509.ParsePKCS8PrivateKey, data) ||
		parses(x509.ParsePKCS1PrivateKey, data) ||
		parses(x509.ParseECPrivateKey, data)
}

// ExtractPublicKey derives the public key from a certificate, CSR, public
// key, private key (PEM, encrypted PEM, OpenSSH or DER), PKCS#7 or PKCS#12
// input and encodes it as PKIX SubjectPublicKeyInfo in the target format.
// Passwords are tried for encrypted keys and PKCS#12 files.
func ExtractPublicKey(data []byte, to Format, passwords []string) ([]byte, error) {
	pub, err := findPublicKey(data, passwords)
	if err != nil {
		return nil, err
	}
	der, err := marshalPublicKeyDER(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	switch to {
	case FormatDER:
		return der, nil
	case FormatPEM:
		return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", to)
	}
}

func findPublicKey(data []byte, passwords []string) (crypto.PublicKey, error) {
	if IsPEM(data) {
		return findPEMPublicKey(data, passwords)
	}

	if cert, err := x509.ParseCertificate(data); err == nil {
		return cert.PublicKey, nil
	}
	if csr, err := x509.ParseCertificateRequest(data); err == nil {
		return csr.PublicKey, nil
	}
	if pub, err := x509.ParsePKIXPublicKey(data); err == nil {
		return pub, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(data); err == nil {
		return GetPublicKey(normalizeKey(key))
	}
	if key, err := x509.ParsePKCS1PrivateKey(data); err == nil {
		return key.Public(), nil
	}
	if key, err := x509.ParseECPrivateKey(data); err == nil {
		return key.Public(), nil
	}
	if certs, err := DecodePKCS7(data); err == nil {
		return certs[0].PublicKey, nil
	}
	for _, pw := range passwords {
		key, leaf, _, err := DecodePKCS12(data, pw)
		if err != nil {
			continue
		}
		if leaf != nil {
			return leaf.PublicKey, nil
		}
		return GetPublicKey(key)
	}
	return nil, errors.New("no certificate, CSR or key found in DER data")
}

// findPEMPublicKey walks PEM blocks and returns the public key of the first
// block that carries one.
func findPEMPublicKey(data []byte, passwords []string) (crypto.PublicKey, error) {
	var lastErr error
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				lastErr = fmt.Errorf("parsing certificate: %w", err)
				continue
			}
			return cert.PublicKey, nil
		case strings.HasSuffix(block.Type, "CERTIFICATE REQUEST"):
			csr, err := x509.ParseCertificateRequest(block.Bytes)
			if err != nil {
				lastErr = fmt.Errorf("parsing certificate request: %w", err)
				continue
			}
			return csr.PublicKey, nil
		case block.Type == "PUBLIC KEY":
			pub, err := x509.ParsePKIXPublicKey(block.Bytes)
			if err != nil {
				lastErr = fmt.Errorf("parsing public key: %w", err)
				continue
			}
			return pub, nil
		case strings.Contains(block.Type, "PRIVATE KEY"):
			key, err := ParsePEMPrivateKeyWithPasswords(pem.EncodeToMemory(block), passwords)
			if err != nil {
				lastErr = err
				continue
			}
			return GetPublicKey(key)
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("no certificate, CSR or key found in PEM data")
}

// marshalPublicKeyDER marshals a public key to PKIX SubjectPublicKeyInfo DER.
// Wraps x509.MarshalPKIXPublicKey with additional DSA support (RFC 3279).
func marshalPublicKeyDER(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err == nil {
		return der, nil
	}
	if dsaKey, ok := pub.(*dsa.PublicKey); ok {
		return marshalDSAPublicKeyDER(dsaKey)
	}
	return nil, err
}

// marshalDSAPublicKeyDER encodes a DSA public key as PKIX SubjectPublicKeyInfo
// per RFC 3279 Section 2.3.2.
func marshalDSAPublicKeyDER(pub *dsa.PublicKey) ([]byte, error) {
	dsaOID := asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1}

	type dsaParams struct {
		P, Q, G *big.Int
	}
	paramBytes, err := asn1.Marshal(dsaParams{P: pub.P, Q: pub.Q, G: pub.G})
	if err != nil {
		return nil, fmt.Errorf("marshaling DSA parameters: %w", err)
	}
	pubKeyBytes, err := asn1.Marshal(pub.Y)
	if err != nil {
		return nil, fmt.Errorf("marshaling DSA public key: %w", err)
	}

	type algorithmIdentifier struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.RawValue
	}
	type subjectPublicKeyInfo struct {
		Algorithm algorithmIdentifier
		PublicKey asn1.BitString
	}
	return asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{
			Algorithm:  dsaOID,
			Parameters: asn1.RawValue{FullBytes: paramBytes},
		},
		PublicKey: asn1.BitString{Bytes: pubKeyBytes, BitLength: len(pubKeyBytes) * 8},
	})
}
