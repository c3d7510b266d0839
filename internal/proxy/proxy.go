package proxy

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/winchesHe/devproxy/internal/rules"
	"github.com/winchesHe/devproxy/pkg/metrics"
)

type rewrite struct {
	pattern     *regexp.Regexp
	replacement string
}

// Forwarder forwards requests matching one rule's context to its target.
type Forwarder struct {
	rule     rules.RouteRule
	opts     *rules.ProxyOptions
	target   *url.URL
	rewrites []rewrite
	proxy    *httputil.ReverseProxy
	logger   *logrus.Logger
}

// NewForwarder builds the forwarder for rule. logger supplies the output and
// format; the level comes from the rule's logLevel option.
func NewForwarder(rule rules.RouteRule, logger *logrus.Logger) (*Forwarder, error) {
	opts, err := rules.DecodeOptions(rule)
	if err != nil {
		return nil, err
	}

	targetURL, err := url.Parse(opts.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if !targetURL.IsAbs() || targetURL.Host == "" {
		return nil, fmt.Errorf("target must be an absolute URL: %s", opts.Target)
	}

	patterns := make([]string, 0, len(opts.PathRewrite))
	for pattern := range opts.PathRewrite {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	rewrites := make([]rewrite, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pathRewrite pattern %q: %w", pattern, err)
		}
		rewrites = append(rewrites, rewrite{pattern: re, replacement: opts.PathRewrite[pattern]})
	}

	f := &Forwarder{
		rule:     rule,
		opts:     opts,
		target:   targetURL,
		rewrites: rewrites,
		logger:   ruleLogger(logger, opts.LogLevel),
	}
	f.proxy = &httputil.ReverseProxy{
		Rewrite:      f.rewriteRequest,
		Transport:    f.transport(),
		ErrorHandler: f.handleError,
	}
	return f, nil
}

// Handle is the chain entry for the rule. Requests outside the rule's context
// fall through untouched.
func (f *Forwarder) Handle(c *gin.Context) {
	if !rules.Matches(f.rule.Context, c.Request.URL.Path) {
		return
	}
	if isUpgrade(c.Request) && !f.opts.WS {
		return
	}

	start := time.Now()
	f.proxy.ServeHTTP(c.Writer, c.Request)
	c.Abort()

	duration := float64(time.Since(start).Milliseconds())
	status := c.Writer.Status()
	metrics.UpstreamLatency.WithLabelValues(f.rule.Context).Observe(duration)
	metrics.ProxyRequestTotal.WithLabelValues(
		f.rule.Context,
		c.Request.Method,
		metrics.GetStatusClass(status),
	).Inc()

	f.logger.WithFields(logrus.Fields{
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
		"context":     f.rule.Context,
		"target":      f.target.String(),
		"status_code": status,
		"duration_ms": duration,
	}).Info("Proxied request")
}

func (f *Forwarder) rewriteRequest(pr *httputil.ProxyRequest) {
	if p, ok := f.rewritePath(pr.Out.URL.Path); ok {
		pr.Out.URL.Path = p
		pr.Out.URL.RawPath = ""
	}

	pr.SetURL(f.target)
	if !f.opts.ChangeOrigin {
		pr.Out.Host = pr.In.Host
	}
	pr.SetXForwarded()

	for k, v := range f.opts.Headers {
		pr.Out.Header.Set(k, v)
	}

	f.logger.WithFields(logrus.Fields{
		"method":     pr.Out.Method,
		"target_url": pr.Out.URL.String(),
		"host":       pr.Out.Host,
	}).Debug("Forwarding request")
}

// rewritePath applies the first pathRewrite pattern that matches.
func (f *Forwarder) rewritePath(p string) (string, bool) {
	for _, rw := range f.rewrites {
		if rw.pattern.MatchString(p) {
			return rw.pattern.ReplaceAllString(p, rw.replacement), true
		}
	}
	return p, false
}

func (f *Forwarder) transport() http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !f.opts.SecureTLS() {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	if f.opts.Timeout > 0 {
		timeout := time.Duration(f.opts.Timeout) * time.Millisecond
		transport.ResponseHeaderTimeout = timeout
		transport.DialContext = (&net.Dialer{Timeout: timeout}).DialContext
	}
	return transport
}

func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	f.logger.WithError(err).WithFields(logrus.Fields{
		"method":  r.Method,
		"path":    r.URL.Path,
		"context": f.rule.Context,
		"target":  f.target.String(),
	}).Error("Failed to forward request")

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = io.WriteString(w, `{"error":"Failed to forward request"}`)
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}

// ruleLogger derives a logger sharing base's output and formatter at the
// rule's own level. "silent" discards everything.
func ruleLogger(base *logrus.Logger, level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(base.Formatter)
	l.SetOutput(base.Out)

	switch strings.ToLower(level) {
	case rules.LogLevelSilent, "":
		l.SetOutput(io.Discard)
	case rules.LogLevelError:
		l.SetLevel(logrus.ErrorLevel)
	case rules.LogLevelWarn:
		l.SetLevel(logrus.WarnLevel)
	case rules.LogLevelInfo:
		l.SetLevel(logrus.InfoLevel)
	case rules.LogLevelDebug:
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}
