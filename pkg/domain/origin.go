package domain

import (
	"strings"

	dErrors "github.com/keithrawlingsbrown/stet/pkg/domain-errors"
)

// Origin attests which service wrote a record. It is persisted verbatim as
// provenance on every correction and heartbeat; enforcement reporters may
// supply their own, everything else carries the server's identity.
type Origin struct {
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment,omitempty"`
}

// Validate requires the attestation to name a service and version. An
// environment is optional.
func (o Origin) Validate() error {
	if strings.TrimSpace(o.Service) == "" || strings.TrimSpace(o.Version) == "" {
		return dErrors.New(dErrors.CodeValidation, "origin attestation required: service and version must be set")
	}
	return nil
}

// IsZero reports whether no attestation was supplied at all.
func (o Origin) IsZero() bool {
	return o.Service == "" && o.Version == "" && o.Environment == ""
}

// WithFallback fills unset fields from fallback, typically the server's own
// identity when a reporter attests only part of its origin.
func (o Origin) WithFallback(fallback Origin) Origin {
	if strings.TrimSpace(o.Service) == "" {
		o.Service = fallback.Service
	}
	if strings.TrimSpace(o.Version) == "" {
		o.Version = fallback.Version
	}
	if strings.TrimSpace(o.Environment) == "" {
		o.Environment = fallback.Environment
	}
	return o
}
