package batch

import (
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/sensiblebit/certbatch"
)

// outcome is what one item execution produced. Err is nil on success.
type outcome struct {
	OutputPath string
	Certs      []checkedCert // expiration jobs only, in file order
	Err        error
}

// checkedCert is one certificate read by an expiration job. Trusted is nil
// when no trust store was requested or the certificate parsed only leniently.
type checkedCert struct {
	Info    *certbatch.CertificateInfo
	Trusted *bool
}

// executor performs a job type's operation on a single input file. It must
// not retry, and every failure is returned in outcome.Err.
type executor interface {
	execute(index int, path string) outcome
}

// newExecutor selects the strategy for a job once at submission.
func newExecutor(opts Options) (executor, error) {
	switch o := opts.(type) {
	case ConvertOptions:
		return &convertExecutor{opts: o}, nil
	case ExtractPublicOptions:
		return &extractExecutor{opts: o}, nil
	case ExpirationReportOptions:
		e := &expirationExecutor{opts: o}
		if o.TrustStore != "" {
			pool, err := certbatch.TrustPool(o.TrustStore)
			if err != nil {
				return nil, err
			}
			e.roots = pool
			e.checkTrust = true
		}
		return e, nil
	case ImportTruststoreOptions:
		return &importExecutor{opts: o, lock: keystoreLock(o.KeystorePath)}, nil
	default:
		return nil, invalid("unsupported options type %T", opts)
	}
}

// safeExecute runs the executor and converts a panic in the strategy into an
// item error so one bad file can never abort the batch.
func safeExecute(e executor, index int, path string) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in item executor", "path", path, "panic", r)
			out = outcome{Err: fmt.Errorf("internal error processing %s: %v", path, r)}
		}
	}()
	return e.execute(index, path)
}

// outputPath mirrors path's location relative to inputDir under outputDir and
// replaces the extension.
func outputPath(inputDir, outputDir, path, newExt string) (string, error) {
	rel, err := filepath.Rel(inputDir, path)
	if err != nil {
		return "", fmt.Errorf("computing relative path: %w", err)
	}
	rel = strings.TrimSuffix(rel, filepath.Ext(rel)) + newExt
	return filepath.Join(outputDir, rel), nil
}

// writeOutput creates parent directories and writes data. Existing files are
// only replaced when overwrite is set.
func writeOutput(path string, data []byte, overwrite, sensitive bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	mode := os.FileMode(0644)
	if sensitive {
		mode = 0600
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, mode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("output %s already exists", path)
		}
		return fmt.Errorf("opening output: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}

type convertExecutor struct {
	opts ConvertOptions
}

func (e *convertExecutor) execute(_ int, path string) outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return outcome{Err: &ConversionError{Path: path, Err: err}}
	}
	converted, err := certbatch.ConvertFormat(data, e.opts.OutputFormat)
	if err != nil {
		return outcome{Err: &ConversionError{Path: path, Err: err}}
	}
	out, err := outputPath(e.opts.InputDir, e.opts.OutputDir, path, e.opts.OutputFormat.Extension())
	if err != nil {
		return outcome{Err: &ConversionError{Path: path, Err: err}}
	}
	if err := writeOutput(out, converted, e.opts.Overwrite, certbatch.ContainsPrivateKey(converted)); err != nil {
		return outcome{Err: &ConversionError{Path: path, Err: err}}
	}
	return outcome{OutputPath: out}
}

type extractExecutor struct {
	opts ExtractPublicOptions
}

func (e *extractExecutor) execute(_ int, path string) outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return outcome{Err: &ExtractionError{Path: path, Err: err}}
	}
	format := e.opts.format()
	pub, err := certbatch.ExtractPublicKey(data, format, e.opts.Passwords)
	if err != nil {
		return outcome{Err: &ExtractionError{Path: path, Err: err}}
	}
	out, err := outputPath(e.opts.InputDir, e.opts.OutputDir, path, ".pub"+format.Extension())
	if err != nil {
		return outcome{Err: &ExtractionError{Path: path, Err: err}}
	}
	if err := writeOutput(out, pub, e.opts.Overwrite, false); err != nil {
		return outcome{Err: &ExtractionError{Path: path, Err: err}}
	}
	return outcome{OutputPath: out}
}

type expirationExecutor struct {
	opts       ExpirationReportOptions
	checkTrust bool
	roots      *x509.CertPool
}

func (e *expirationExecutor) execute(_ int, path string) outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return outcome{Err: &ParseError{Path: path, Err: err}}
	}
	infos, err := certbatch.ParseAllCertificates(data, e.opts.Passwords)
	if err != nil {
		return outcome{Err: &ParseError{Path: path, Err: err}}
	}
	out := outcome{Certs: make([]checkedCert, len(infos))}
	for i, info := range infos {
		out.Certs[i].Info = info
		if e.checkTrust && !info.Lenient() {
			trusted := certbatch.ChainsToPool(info, e.roots)
			out.Certs[i].Trusted = &trusted
		}
	}
	return out
}

// keystoreLocks serializes appends per keystore path within the process.
var keystoreLocks sync.Map

func keystoreLock(path string) *sync.Mutex {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	mu, _ := keystoreLocks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

var aliasUnsafe = regexp.MustCompile(`[^a-z0-9._-]+`)

// importAlias derives a deterministic alias unique within a job:
// prefix, 1-based zero-padded index, and the sanitized file stem.
func importAlias(prefix string, index int, path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.Trim(aliasUnsafe.ReplaceAllString(strings.ToLower(stem), "_"), "_")
	alias := fmt.Sprintf("%s-%04d", strings.ToLower(prefix), index+1)
	if stem != "" {
		alias += "-" + stem
	}
	return alias
}

type importExecutor struct {
	opts ImportTruststoreOptions
	lock *sync.Mutex
}

func (e *importExecutor) execute(index int, path string) outcome {
	data, err := os.ReadFile(path)
	if err != nil {
		return outcome{Err: &ParseError{Path: path, Err: err}}
	}
	info, err := certbatch.ParseCertificateWithPasswords(data, e.opts.Passwords)
	if err != nil {
		return outcome{Err: &ParseError{Path: path, Err: err}}
	}

	alias := importAlias(e.opts.aliasPrefix(), index, path)
	e.lock.Lock()
	err = certbatch.KeystoreAppend(e.opts.KeystorePath, e.opts.KeystorePassword, alias, info.Raw)
	e.lock.Unlock()
	if err != nil {
		return outcome{Err: &KeystoreError{Path: path, Alias: alias, Err: err}}
	}
	slog.Debug("imported certificate", "path", path, "alias", alias, "subject", info.Subject)
	return outcome{OutputPath: e.opts.KeystorePath + "#" + alias}
}
