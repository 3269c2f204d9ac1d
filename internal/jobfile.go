package internal

import (
	"errors"
	"fmt"
	"os"

	"github.com/sensiblebit/certbatch"
	"github.com/sensiblebit/certbatch/internal/batch"
	"gopkg.in/yaml.v3"
)

// JobConfig is one job entry of a YAML job file. Fields that do not apply to
// the job type are ignored.
type JobConfig struct {
	Name                string   `yaml:"name,omitempty"`
	Type                string   `yaml:"type"`
	InputDir            string   `yaml:"inputDir"`
	Recursive           *bool    `yaml:"recursive,omitempty"`
	Extensions          []string `yaml:"extensions,omitempty"`
	OutputDir           string   `yaml:"outputDir,omitempty"`
	OutputFormat        string   `yaml:"outputFormat,omitempty"`
	Overwrite           *bool    `yaml:"overwrite,omitempty"`
	KeystorePath        string   `yaml:"keystorePath,omitempty"`
	KeystorePassword    string   `yaml:"keystorePassword,omitempty"`
	KeystorePasswordEnv string   `yaml:"keystorePasswordEnv,omitempty"` // environment variable holding the keystore password
	AliasPrefix         string   `yaml:"aliasPrefix,omitempty"`
	WarningDays         *int     `yaml:"warningDays,omitempty"`
	TrustStore          string   `yaml:"trustStore,omitempty"`
}

// JobsYAML is the full job file: shared defaults plus a list of jobs.
type JobsYAML struct {
	Defaults *JobConfig  `yaml:"defaults,omitempty"`
	Jobs     []JobConfig `yaml:"jobs"`
}

// LoadJobConfigs loads job definitions from a YAML file. The file is either a
// JobsYAML document or a single JobConfig mapping. Defaults fill fields a job
// leaves unset.
func LoadJobConfigs(path string) ([]JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc JobsYAML
	if err := yaml.Unmarshal(data, &doc); err == nil && len(doc.Jobs) > 0 {
		if doc.Defaults != nil {
			for i := range doc.Jobs {
				doc.Jobs[i].applyDefaults(*doc.Defaults)
			}
		}
		return doc.Jobs, nil
	}

	var single JobConfig
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("parsing job file %s: %w", path, err)
	}
	if single.Type == "" {
		return nil, fmt.Errorf("job file %s defines no jobs", path)
	}
	return []JobConfig{single}, nil
}

func (c *JobConfig) applyDefaults(d JobConfig) {
	setString := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	setString(&c.Type, d.Type)
	setString(&c.InputDir, d.InputDir)
	setString(&c.OutputDir, d.OutputDir)
	setString(&c.OutputFormat, d.OutputFormat)
	setString(&c.KeystorePath, d.KeystorePath)
	setString(&c.KeystorePassword, d.KeystorePassword)
	setString(&c.KeystorePasswordEnv, d.KeystorePasswordEnv)
	setString(&c.AliasPrefix, d.AliasPrefix)
	setString(&c.TrustStore, d.TrustStore)
	if c.Recursive == nil {
		c.Recursive = d.Recursive
	}
	if c.Overwrite == nil {
		c.Overwrite = d.Overwrite
	}
	if c.Extensions == nil {
		c.Extensions = d.Extensions
	}
	if c.WarningDays == nil {
		c.WarningDays = d.WarningDays
	}
}

// Label names the job in logs and output.
func (c JobConfig) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Type + " " + c.InputDir
}

// Options converts the entry into validated batch options. passwords are
// attached to job types that decrypt inputs. Validation does not touch the
// input directory; a missing one still fails at submission.
func (c JobConfig) Options(passwords []string) (batch.Options, error) {
	opts, err := c.options(passwords)
	if err != nil {
		return nil, err
	}
	if err := batch.Validate(opts); err != nil {
		return nil, err
	}
	return opts, nil
}

func (c JobConfig) options(passwords []string) (batch.Options, error) {
	jobType, err := batch.ParseJobType(c.Type)
	if err != nil {
		return nil, err
	}
	recursive := c.Recursive != nil && *c.Recursive
	overwrite := c.Overwrite != nil && *c.Overwrite

	switch jobType {
	case batch.JobConvert:
		format, err := certbatch.ParseFormat(c.OutputFormat)
		if err != nil {
			return nil, err
		}
		return batch.ConvertOptions{
			InputDir:     c.InputDir,
			OutputDir:    c.OutputDir,
			OutputFormat: format,
			Recursive:    recursive,
			Extensions:   c.Extensions,
			Overwrite:    overwrite,
		}, nil
	case batch.JobExtractPublic:
		format := certbatch.FormatPEM
		if c.OutputFormat != "" {
			if format, err = certbatch.ParseFormat(c.OutputFormat); err != nil {
				return nil, err
			}
		}
		return batch.ExtractPublicOptions{
			InputDir:     c.InputDir,
			OutputDir:    c.OutputDir,
			OutputFormat: format,
			Recursive:    recursive,
			Extensions:   c.Extensions,
			Passwords:    passwords,
			Overwrite:    overwrite,
		}, nil
	case batch.JobExpirationReport:
		return batch.ExpirationReportOptions{
			InputDir:    c.InputDir,
			Recursive:   recursive,
			Extensions:  c.Extensions,
			WarningDays: c.WarningDays,
			TrustStore:  c.TrustStore,
			Passwords:   passwords,
		}, nil
	case batch.JobImportTruststore:
		password := c.KeystorePassword
		if c.KeystorePasswordEnv != "" {
			v, ok := os.LookupEnv(c.KeystorePasswordEnv)
			if !ok {
				return nil, fmt.Errorf("environment variable %s is not set", c.KeystorePasswordEnv)
			}
			password = v
		}
		if password == "" {
			return nil, errors.New("keystorePassword or keystorePasswordEnv is required")
		}
		return batch.ImportTruststoreOptions{
			InputDir:         c.InputDir,
			KeystorePath:     c.KeystorePath,
			KeystorePassword: password,
			AliasPrefix:      c.AliasPrefix,
			Recursive:        recursive,
			Extensions:       c.Extensions,
			Passwords:        passwords,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported job type %q", jobType)
	}
}
