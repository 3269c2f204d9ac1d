package certbatch

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/breml/rootcerts/embedded"
	ctx509 "github.com/google/certificate-transparency-go/x509"
)

// CertificateInfo holds the fields of a parsed certificate that the batch
// engine reports on or imports.
type CertificateInfo struct {
	Subject       string
	Issuer        string
	NotBefore     time.Time
	NotAfter      time.Time
	SerialNumber  string // colon-separated hex
	Raw           []byte // DER encoding of the certificate
	PublicKeyInfo []byte // DER SubjectPublicKeyInfo

	// Cert is nil when the certificate was only readable by the lenient parser.
	Cert *x509.Certificate
	// Extra holds any further certificates found in the same input.
	Extra []*x509.Certificate
}

// Lenient reports whether the certificate could only be decoded by the
// lenient parser and is therefore unusable for chain verification.
func (ci *CertificateInfo) Lenient() bool {
	return ci.Cert == nil
}

// ParseCertificate decodes the first certificate in DER, PEM or PKCS#7 data.
// Certificates the standard library rejects (negative serials, malformed
// extensions) are retried with the certificate-transparency parser, which
// only fails on fatal encoding errors.
func ParseCertificate(data []byte) (*CertificateInfo, error) {
	certs, err := ParseCertificatesAny(data)
	if err == nil {
		return infoFromCert(certs[0], certs[1:]), nil
	}
	if info, lenientErr := parseLenient(data); lenientErr == nil {
		return info, nil
	}
	return nil, err
}

// ParseCertificateWithPasswords behaves like ParseCertificate and additionally
// opens PKCS#12 and JKS containers with each password in turn.
func ParseCertificateWithPasswords(data []byte, passwords []string) (*CertificateInfo, error) {
	info, err := ParseCertificate(data)
	if err == nil {
		return info, nil
	}
	for _, pw := range passwords {
		if _, leaf, caCerts, p12Err := DecodePKCS12(data, pw); p12Err == nil && leaf != nil {
			return infoFromCert(leaf, caCerts), nil
		}
	}
	if isJKS(data) {
		for _, pw := range passwords {
			if certs, _, jksErr := DecodeJKS(data, pw); jksErr == nil && len(certs) > 0 {
				return infoFromCert(certs[0], certs[1:]), nil
			}
		}
	}
	return nil, err
}

// ParseAllCertificates returns every certificate in data: each block of a PEM
// bundle, each certificate of a PKCS#7 bundle, the leaf and CA chain of a
// PKCS#12 file and every entry of a JKS store, in file order. Each entry's
// Extra holds the other certificates from the same input. A certificate only
// the lenient parser accepts is returned on its own.
func ParseAllCertificates(data []byte, passwords []string) ([]*CertificateInfo, error) {
	if certs, err := ParseCertificatesAny(data); err == nil {
		return infosFromSet(certs), nil
	}
	first, err := ParseCertificateWithPasswords(data, passwords)
	if err != nil {
		return nil, err
	}
	if first.Lenient() {
		return []*CertificateInfo{first}, nil
	}
	return infosFromSet(append([]*x509.Certificate{first.Cert}, first.Extra...)), nil
}

func infosFromSet(certs []*x509.Certificate) []*CertificateInfo {
	infos := make([]*CertificateInfo, len(certs))
	for i, c := range certs {
		others := make([]*x509.Certificate, 0, len(certs)-1)
		others = append(others, certs[:i]...)
		others = append(others, certs[i+1:]...)
		infos[i] = infoFromCert(c, others)
	}
	return infos
}

// isJKS checks for the JKS magic bytes 0xFEEDFEED.
func isJKS(data []byte) bool {
	return len(data) >= 4 && data[0] == 0xFE && data[1] == 0xED && data[2] == 0xFE && data[3] == 0xED
}

func infoFromCert(cert *x509.Certificate, extra []*x509.Certificate) *CertificateInfo {
	return &CertificateInfo{
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		SerialNumber:  formatSerial(cert.SerialNumber),
		Raw:           cert.Raw,
		PublicKeyInfo: cert.RawSubjectPublicKeyInfo,
		Cert:          cert,
		Extra:         extra,
	}
}

func parseLenient(data []byte) (*CertificateInfo, error) {
	der := data
	if IsPEM(data) {
		der = nil
		rest := data
		for {
			var block *pem.Block
			block, rest = pem.Decode(rest)
			if block == nil {
				break
			}
			if block.Type == "CERTIFICATE" {
				der = block.Bytes
				break
			}
		}
		if der == nil {
			return nil, errors.New("no CERTIFICATE block found")
		}
	}

	cert, err := ctx509.ParseCertificate(der)
	if cert == nil || ctx509.IsFatal(err) {
		return nil, fmt.Errorf("lenient parse: %w", err)
	}
	return &CertificateInfo{
		Subject:       cert.Subject.String(),
		Issuer:        cert.Issuer.String(),
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		SerialNumber:  formatSerial(cert.SerialNumber),
		Raw:           cert.Raw,
		PublicKeyInfo: cert.RawSubjectPublicKeyInfo,
	}, nil
}

func formatSerial(n *big.Int) string {
	if n == nil {
		return ""
	}
	b := n.Bytes()
	if len(b) == 0 {
		b = []byte{0}
	}
	s := ColonHex(b)
	if n.Sign() < 0 {
		return "-" + s
	}
	return s
}

// TrustPool returns the root pool for a named trust store: "system" or
// "mozilla" (the embedded Mozilla root program bundle).
func TrustPool(name string) (*x509.CertPool, error) {
	switch name {
	case "system":
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("loading system cert pool: %w", err)
		}
		return pool, nil
	case "mozilla":
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(embedded.MozillaCACertificatesPEM())) {
			return nil, errors.New("parsing embedded Mozilla root certificates")
		}
		return pool, nil
	default:
		return nil, fmt.Errorf("unknown trust store %q (use system or mozilla)", name)
	}
}

// ChainsToPool reports whether the certificate verifies against roots, using
// the extra certificates from the same file as intermediates. Expiry is
// ignored: an expired or not yet valid certificate is verified at the nearest
// edge of its validity window so trust and expiry are reported independently.
func ChainsToPool(info *CertificateInfo, roots *x509.CertPool) bool {
	if info.Lenient() || roots == nil {
		return false
	}
	intermediates := x509.NewCertPool()
	for _, c := range info.Extra {
		intermediates.AddCert(c)
	}
	_, err := info.Cert.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   verifyTime(info, time.Now()),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err == nil
}

func verifyTime(info *CertificateInfo, now time.Time) time.Time {
	switch {
	case now.After(info.NotAfter):
		return info.NotAfter.Add(-time.Second)
	case now.Before(info.NotBefore):
		return info.NotBefore.Add(time.Second)
	default:
		return now
	}
}
