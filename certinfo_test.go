package certbatch

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
	"github.com/smallstep/pkcs7"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

func TestParseCertificate_Encodings(t *testing.T) {
	// WHY: Inputs arrive as DER, PEM or P7B; every encoding must produce the
	// same subject, serial and expiry for the report.
	t.Parallel()

	ca := newTestCA(t, "Encoding CA")
	notAfter := time.Now().Add(45 * 24 * time.Hour).Truncate(time.Second)
	leaf := newTestLeaf(t, ca, "enc.example.com", notAfter)
	p7, err := pkcs7.DegenerateCertificate(append(append([]byte{}, leaf.certDER...), ca.certDER...))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		data      []byte
		wantExtra int
	}{
		{name: "der", data: leaf.certDER},
		{name: "pem", data: leaf.certPEM},
		{name: "pem_bundle", data: append(append([]byte{}, leaf.certPEM...), ca.certPEM...), wantExtra: 1},
		{name: "pkcs7", data: p7, wantExtra: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info, err := ParseCertificate(tt.data)
			if err != nil {
				t.Fatalf("ParseCertificate: %v", err)
			}
			if info.Subject != "CN=enc.example.com,O=TestOrg" {
				t.Errorf("Subject = %q", info.Subject)
			}
			if info.Issuer != "CN=Encoding CA,O=TestOrg" {
				t.Errorf("Issuer = %q", info.Issuer)
			}
			if info.SerialNumber != "01:02:03:04:05" {
				t.Errorf("SerialNumber = %q", info.SerialNumber)
			}
			if !info.NotAfter.Equal(notAfter) {
				t.Errorf("NotAfter = %v, want %v", info.NotAfter, notAfter)
			}
			if info.Lenient() || !bytes.Equal(info.Raw, leaf.certDER) {
				t.Error("expected strictly parsed leaf certificate")
			}
			if len(info.Extra) != tt.wantExtra {
				t.Errorf("Extra = %d, want %d", len(info.Extra), tt.wantExtra)
			}
		})
	}
}

func TestParseCertificate_Errors(t *testing.T) {
	// WHY: Non-certificate inputs become item errors, never zero-value rows.
	t.Parallel()

	c := newTestCA(t, "Not Input")
	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("hello world"),
		"key_pem": c.keyPEM,
	} {
		if _, err := ParseCertificate(data); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseCertificateWithPasswords_Containers(t *testing.T) {
	// WHY: Password-protected PKCS#12 and JKS files must be readable once a
	// matching password is supplied, and must fail without one.
	t.Parallel()

	ca := newTestCA(t, "Container CA")
	leaf := newTestLeaf(t, ca, "container.example.com", time.Now().Add(60*24*time.Hour))
	pfx, err := gopkcs12.Modern.Encode(leaf.key, leaf.cert, []*x509.Certificate{ca.cert}, "p12secret")
	if err != nil {
		t.Fatal(err)
	}

	ks := keystore.New()
	if err := ks.SetTrustedCertificateEntry("leaf", keystore.TrustedCertificateEntry{
		CreationTime: time.Now(),
		Certificate:  keystore.Certificate{Type: "X.509", Content: leaf.certDER},
	}); err != nil {
		t.Fatal(err)
	}
	var jks bytes.Buffer
	if err := ks.Store(&jks, []byte("jkssecret")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "pkcs12", data: pfx},
		{name: "jks", data: jks.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseCertificateWithPasswords(tt.data, []string{"wrong-one"}); err == nil {
				t.Error("expected error without the right password")
			}
			info, err := ParseCertificateWithPasswords(tt.data, []string{"wrong-one", "p12secret", "jkssecret"})
			if err != nil {
				t.Fatalf("ParseCertificateWithPasswords: %v", err)
			}
			if info.Cert == nil || info.Cert.Subject.CommonName != "container.example.com" {
				t.Errorf("unexpected certificate %q", info.Subject)
			}
		})
	}
}

func TestChainsToPool(t *testing.T) {
	// WHY: Trust is reported separately from expiry, so an expired leaf issued
	// by a trusted root still counts as trusted.
	t.Parallel()

	root := newTestCA(t, "Trusted Root")
	stranger := newTestCA(t, "Unrelated Root")
	leaf := newTestLeaf(t, root, "trusted.example.com", time.Now().Add(30*24*time.Hour))

	oldRoot := issue(t, &x509.Certificate{
		SerialNumber:          big.NewInt(7),
		Subject:               pkix.Name{CommonName: "Old Root"},
		NotBefore:             time.Now().Add(-5 * 365 * 24 * time.Hour),
		NotAfter:              time.Now().Add(5 * 365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}, nil)
	expired := newTestLeaf(t, oldRoot, "expired.example.com", time.Now().Add(-10*24*time.Hour))

	rootPool := x509.NewCertPool()
	rootPool.AddCert(root.cert)
	strangerPool := x509.NewCertPool()
	strangerPool.AddCert(stranger.cert)
	oldPool := x509.NewCertPool()
	oldPool.AddCert(oldRoot.cert)

	tests := []struct {
		name string
		cert testCert
		pool *x509.CertPool
		want bool
	}{
		{name: "issued_by_root", cert: leaf, pool: rootPool, want: true},
		{name: "other_root", cert: leaf, pool: strangerPool, want: false},
		{name: "nil_pool", cert: leaf, pool: nil, want: false},
		{name: "expired_but_trusted", cert: expired, pool: oldPool, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			info, err := ParseCertificate(tt.cert.certDER)
			if err != nil {
				t.Fatal(err)
			}
			if got := ChainsToPool(info, tt.pool); got != tt.want {
				t.Errorf("ChainsToPool = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrustPool(t *testing.T) {
	// WHY: the embedded Mozilla bundle must always load; an unknown name is a
	// configuration error caught before any item runs.
	t.Parallel()

	pool, err := TrustPool("mozilla")
	if err != nil || pool == nil {
		t.Fatalf("TrustPool(mozilla) = %v, %v", pool, err)
	}
	if _, err := TrustPool("corporate"); err == nil {
		t.Error("expected error for unknown trust store")
	}
}
