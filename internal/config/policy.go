package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/freelance-market/internal/server/ratelimit"
	"github.com/jonathan/freelance-market/internal/types"
)

// knownNotificationTypes is the closed set a policy file may template.
var knownNotificationTypes = map[types.NotificationType]bool{
	types.NotifyJobAssigned:         true,
	types.NotifyJobCompleted:        true,
	types.NotifyJobCancelled:        true,
	types.NotifyProposalReceived:    true,
	types.NotifyProposalShortlisted: true,
	types.NotifyProposalRejected:    true,
	types.NotifyPaymentReceived:     true,
	types.NotifyPaymentReleased:     true,
	types.NotifyPaymentRefunded:     true,
	types.NotifyPaymentDisputed:     true,
}

// Policy is the optional YAML file passed with --config. It overrides
// per-endpoint rate limits and notification templates.
type Policy struct {
	RateLimits []ratelimit.EndpointConfig                              `yaml:"rate_limits"`
	Templates  map[types.NotificationType]types.NotificationTemplate `yaml:"templates"`
}

// LoadPolicy loads a policy file. An empty path yields an empty policy.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return &Policy{}, nil
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var p Policy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse policy YAML: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks every override in the policy.
func (p *Policy) Validate() error {
	for _, rl := range p.RateLimits {
		if err := rl.Validate(); err != nil {
			return fmt.Errorf("policy error: %w", err)
		}
	}
	for typ, tmpl := range p.Templates {
		if !knownNotificationTypes[typ] {
			return fmt.Errorf("policy error: unknown notification type %q", typ)
		}
		if tmpl.Title == "" || tmpl.Message == "" {
			return fmt.Errorf("policy error: template %q needs a title and a message", typ)
		}
	}
	return nil
}
