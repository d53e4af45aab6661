package librpki

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type ValidationOptions struct {
	// Grace period after the next update time of a CRL.
	CRLMaxStalePeriod time.Duration `yaml:"crl_max_stale_period"`
	// Grace period after the next update time of a manifest.
	ManifestMaxStalePeriod time.Duration `yaml:"manifest_max_stale_period"`
	// Warn instead of reject when a child claims resources its parent does not hold.
	AllowOverclaimParentChild bool `yaml:"allow_overclaim_parent_child"`
	// Reject manifests and CRLs past their next update time instead of warning.
	StrictManifestCRLValidityChecks bool `yaml:"strict_manifest_crl_validity_checks"`
}

func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{}
}

func ParseValidationOptions(data []byte) (ValidationOptions, error) {
	options := DefaultValidationOptions()
	if err := yaml.Unmarshal(data, &options); err != nil {
		return options, errors.Wrap(err, "parsing validation options")
	}
	if options.CRLMaxStalePeriod < 0 || options.ManifestMaxStalePeriod < 0 {
		return options, errors.New("stale periods must not be negative")
	}
	return options, nil
}

func LoadValidationOptions(path string) (ValidationOptions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultValidationOptions(), errors.Wrapf(err, "reading validation options %s", path)
	}
	return ParseValidationOptions(data)
}
