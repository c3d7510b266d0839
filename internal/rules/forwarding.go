package rules

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Log levels accepted in the logLevel option.
const (
	LogLevelSilent = "silent"
	LogLevelError  = "error"
	LogLevelWarn   = "warn"
	LogLevelInfo   = "info"
	LogLevelDebug  = "debug"
)

var validLogLevels = map[string]bool{
	LogLevelSilent: true,
	LogLevelError:  true,
	LogLevelWarn:   true,
	LogLevelInfo:   true,
	LogLevelDebug:  true,
}

// ProxyOptions is the typed view of a rule's option bag.
type ProxyOptions struct {
	Target       string            `mapstructure:"target"`
	ChangeOrigin bool              `mapstructure:"changeOrigin"`
	PathRewrite  map[string]string `mapstructure:"pathRewrite"`
	WS           bool              `mapstructure:"ws"`
	LogLevel     string            `mapstructure:"logLevel"`
	Headers      map[string]string `mapstructure:"headers"`
	Secure       *bool             `mapstructure:"secure"`
	Timeout      int               `mapstructure:"timeout"` // milliseconds
	Extra        map[string]any    `mapstructure:",remain"`
}

// defaultOptions are merged under every rule's own options.
func defaultOptions() map[string]any {
	return map[string]any{
		"logLevel": LogLevelSilent,
	}
}

// DecodeOptions merges the defaults under the rule's option bag and decodes
// the result into ProxyOptions.
func DecodeOptions(rule RouteRule) (*ProxyOptions, error) {
	merged := defaultOptions()
	for k, v := range rule.Options {
		merged[k] = v
	}

	var opts ProxyOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(merged); err != nil {
		return nil, fmt.Errorf("decode options for %s: %w", rule.Context, err)
	}
	return &opts, nil
}

// SecureTLS reports whether upstream TLS certificates are verified.
func (o *ProxyOptions) SecureTLS() bool {
	return o.Secure == nil || *o.Secure
}

// Validate checks a rule the way a request to create a forwarding rule is checked.
func (r RouteRule) Validate() error {
	if !strings.HasPrefix(r.Context, "/") {
		return fmt.Errorf("context %q: path must start with /", r.Context)
	}

	opts, err := DecodeOptions(r)
	if err != nil {
		return err
	}

	if opts.Target == "" {
		return fmt.Errorf("context %q: target is required", r.Context)
	}
	targetURL, err := url.Parse(opts.Target)
	if err != nil {
		return fmt.Errorf("context %q: invalid target URL: %w", r.Context, err)
	}
	if !targetURL.IsAbs() || targetURL.Host == "" {
		return fmt.Errorf("context %q: target must be an absolute URL", r.Context)
	}

	if !validLogLevels[strings.ToLower(opts.LogLevel)] {
		return fmt.Errorf("context %q: invalid logLevel: %s", r.Context, opts.LogLevel)
	}

	for pattern := range opts.PathRewrite {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("context %q: invalid pathRewrite pattern %q: %w", r.Context, pattern, err)
		}
	}

	if opts.Timeout < 0 {
		return fmt.Errorf("context %q: timeout must be non-negative", r.Context)
	}

	return nil
}
