package certbatch

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// ErrAliasExists is returned by KeystoreAppend when the alias is already
// present. Entries are never overwritten.
var ErrAliasExists = errors.New("alias already exists in keystore")

// DecodeJKS decodes a Java KeyStore (JKS) and returns the certificates and
// private keys it contains. The same password is used for both the store and
// individual entries (standard Java convention). Individual entry errors are
// skipped; an error is returned only if the store cannot be loaded or no
// usable entries are found. Entries are returned in alias order.
func DecodeJKS(data []byte, password string) ([]*x509.Certificate, []crypto.PrivateKey, error) {
	ks := keystore.New(keystore.WithOrderedAliases())
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return nil, nil, fmt.Errorf("loading JKS: %w", err)
	}

	var certs []*x509.Certificate
	var keys []crypto.PrivateKey

	for _, alias := range ks.Aliases() {
		if ks.IsTrustedCertificateEntry(alias) {
			entry, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				continue
			}
			cert, err := x509.ParseCertificate(entry.Certificate.Content)
			if err != nil {
				continue
			}
			certs = append(certs, cert)
		}

		if ks.IsPrivateKeyEntry(alias) {
			entry, err := ks.GetPrivateKeyEntry(alias, []byte(password))
			if err != nil {
				continue
			}
			key, err := x509.ParsePKCS8PrivateKey(entry.PrivateKey)
			if err != nil {
				continue
			}
			keys = append(keys, key)
			for _, certEntry := range entry.CertificateChain {
				cert, err := x509.ParseCertificate(certEntry.Content)
				if err != nil {
					continue
				}
				certs = append(certs, cert)
			}
		}
	}

	if len(certs) == 0 && len(keys) == 0 {
		return nil, nil, errors.New("JKS contains no usable certificates or keys")
	}
	return certs, keys, nil
}

// loadKeystore reads the keystore at path. A missing or empty file yields a
// new, empty keystore so the first append creates the store.
func loadKeystore(path, password string) (keystore.KeyStore, error) {
	ks := keystore.New(keystore.WithOrderedAliases())
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return ks, nil
	}
	if err != nil {
		return ks, fmt.Errorf("reading keystore %s: %w", path, err)
	}
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return ks, fmt.Errorf("loading keystore %s: %w", path, err)
	}
	return ks, nil
}

// KeystoreAliases returns the aliases stored in the JKS keystore at path, in
// sorted order. A missing keystore has no aliases.
func KeystoreAliases(path, password string) ([]string, error) {
	ks, err := loadKeystore(path, password)
	if err != nil {
		return nil, err
	}
	return ks.Aliases(), nil
}

// KeystoreAppend adds certDER as a trusted certificate entry under alias to
// the JKS keystore at path, creating the store if needed. The open, append
// and persist cycle holds an advisory lock on a sidecar ".lock" file and the
// store is replaced atomically via rename. Aliases are lowercased by the JKS
// format; an existing alias yields ErrAliasExists.
func KeystoreAppend(path, password, alias string, certDER []byte) error {
	if alias == "" {
		return errors.New("alias must not be empty")
	}
	if _, err := x509.ParseCertificate(certDER); err != nil {
		return fmt.Errorf("parsing certificate for keystore: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating keystore directory: %w", err)
	}
	unlock, err := lockFile(path + ".lock")
	if err != nil {
		return fmt.Errorf("locking keystore %s: %w", path, err)
	}
	defer unlock()

	ks, err := loadKeystore(path, password)
	if err != nil {
		return err
	}
	if ks.IsTrustedCertificateEntry(alias) || ks.IsPrivateKeyEntry(alias) {
		return fmt.Errorf("%w: %q", ErrAliasExists, alias)
	}

	if err := ks.SetTrustedCertificateEntry(alias, keystore.TrustedCertificateEntry{
		CreationTime: time.Now(),
		Certificate: keystore.Certificate{
			Type:    "X.509",
			Content: certDER,
		},
	}); err != nil {
		return fmt.Errorf("setting trusted certificate entry %q: %w", alias, err)
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return fmt.Errorf("storing keystore: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes(), 0600)
}

// writeFileAtomic writes data to a temporary file in the same directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("setting permissions on %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
