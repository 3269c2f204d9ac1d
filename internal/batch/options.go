package batch

import (
	"errors"
	"fmt"

	"github.com/sensiblebit/certbatch"
)

// DefaultWarningDays is the expiring-soon threshold used when
// ExpirationReportOptions.WarningDays is nil.
const DefaultWarningDays = 30

// WarningWindow returns a WarningDays value of days. Zero limits expiring
// soon to certificates that expire within the current day.
func WarningWindow(days int) *int {
	return &days
}

// ErrInvalidOptions is wrapped by every option validation failure.
var ErrInvalidOptions = errors.New("invalid job options")

// Validate checks opts the same way Submit does, without touching the
// filesystem. Callers holding several jobs use it to reject a bad entry
// before any job runs.
func Validate(opts Options) error {
	if opts == nil {
		return invalid("options are required")
	}
	return opts.validate()
}

// Options is the immutable configuration of one job. Each job type has its
// own options struct; the concrete type selects the item executor.
type Options interface {
	JobType() JobType
	discovery() discoverySpec
	validate() error
}

type discoverySpec struct {
	root       string
	extensions []string
	recursive  bool
}

var (
	certExtensions    = []string{"pem", "crt", "cer", "cert", "der"}
	convertExtensions = append(append([]string{}, certExtensions...), "key", "csr", "pub")
	extractExtensions = append(append([]string{}, convertExtensions...), "p12", "pfx", "p7b", "p7c")
	reportExtensions  = append(append([]string{}, certExtensions...), "p7b", "p7c", "p12", "pfx", "jks")
	importExtensions  = append(append([]string{}, certExtensions...), "p7b", "p7c")
)

func extensionsOr(exts, fallback []string) []string {
	if len(exts) > 0 {
		return exts
	}
	return fallback
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
}

// ConvertOptions configures a PEM/DER conversion job.
type ConvertOptions struct {
	InputDir     string
	OutputDir    string
	OutputFormat certbatch.Format
	Recursive    bool
	Extensions   []string // defaults to certificate, key and CSR extensions
	Overwrite    bool     // replace existing output files
}

func (o ConvertOptions) JobType() JobType { return JobConvert }

func (o ConvertOptions) discovery() discoverySpec {
	return discoverySpec{root: o.InputDir, extensions: extensionsOr(o.Extensions, convertExtensions), recursive: o.Recursive}
}

func (o ConvertOptions) validate() error {
	if o.InputDir == "" {
		return invalid("input directory is required")
	}
	if o.OutputDir == "" {
		return invalid("output directory is required")
	}
	if o.OutputFormat != certbatch.FormatPEM && o.OutputFormat != certbatch.FormatDER {
		return invalid("output format must be PEM or DER, got %q", o.OutputFormat)
	}
	return nil
}

// ExtractPublicOptions configures a public key extraction job.
type ExtractPublicOptions struct {
	InputDir     string
	OutputDir    string
	OutputFormat certbatch.Format // defaults to PEM
	Recursive    bool
	Extensions   []string
	Passwords    []string // tried for encrypted keys and PKCS#12 files
	Overwrite    bool
}

func (o ExtractPublicOptions) JobType() JobType { return JobExtractPublic }

func (o ExtractPublicOptions) discovery() discoverySpec {
	return discoverySpec{root: o.InputDir, extensions: extensionsOr(o.Extensions, extractExtensions), recursive: o.Recursive}
}

func (o ExtractPublicOptions) validate() error {
	if o.InputDir == "" {
		return invalid("input directory is required")
	}
	if o.OutputDir == "" {
		return invalid("output directory is required")
	}
	switch o.OutputFormat {
	case "", certbatch.FormatPEM, certbatch.FormatDER:
	default:
		return invalid("output format must be PEM or DER, got %q", o.OutputFormat)
	}
	return nil
}

func (o ExtractPublicOptions) format() certbatch.Format {
	if o.OutputFormat == "" {
		return certbatch.FormatPEM
	}
	return o.OutputFormat
}

// ImportTruststoreOptions configures a bulk import into a JKS truststore.
type ImportTruststoreOptions struct {
	InputDir         string
	KeystorePath     string
	KeystorePassword string
	AliasPrefix      string // defaults to "cert"
	Recursive        bool
	Extensions       []string
	Passwords        []string // tried for PKCS#12 inputs
}

func (o ImportTruststoreOptions) JobType() JobType { return JobImportTruststore }

func (o ImportTruststoreOptions) discovery() discoverySpec {
	return discoverySpec{root: o.InputDir, extensions: extensionsOr(o.Extensions, importExtensions), recursive: o.Recursive}
}

func (o ImportTruststoreOptions) validate() error {
	if o.InputDir == "" {
		return invalid("input directory is required")
	}
	if o.KeystorePath == "" {
		return invalid("keystore path is required")
	}
	if len(o.KeystorePassword) < 6 {
		// keytool refuses to open stores with shorter passwords
		return invalid("keystore password must be at least 6 characters")
	}
	return nil
}

func (o ImportTruststoreOptions) aliasPrefix() string {
	if o.AliasPrefix == "" {
		return "cert"
	}
	return o.AliasPrefix
}

// ExpirationReportOptions configures an expiry audit.
type ExpirationReportOptions struct {
	InputDir    string
	Recursive   bool
	Extensions  []string
	WarningDays *int     // nil means DefaultWarningDays
	TrustStore  string   // "", "system" or "mozilla"; empty skips trust checks
	Passwords   []string // tried for PKCS#12 and JKS inputs
}

func (o ExpirationReportOptions) JobType() JobType { return JobExpirationReport }

func (o ExpirationReportOptions) discovery() discoverySpec {
	return discoverySpec{root: o.InputDir, extensions: extensionsOr(o.Extensions, reportExtensions), recursive: o.Recursive}
}

func (o ExpirationReportOptions) validate() error {
	if o.InputDir == "" {
		return invalid("input directory is required")
	}
	if o.WarningDays != nil && *o.WarningDays < 0 {
		return invalid("warning days must not be negative, got %d", *o.WarningDays)
	}
	switch o.TrustStore {
	case "", "system", "mozilla":
	default:
		return invalid("trust store must be system or mozilla, got %q", o.TrustStore)
	}
	return nil
}

func (o ExpirationReportOptions) warningDays() int {
	if o.WarningDays == nil {
		return DefaultWarningDays
	}
	return *o.WarningDays
}
