package proxy

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/winchesHe/devproxy/internal/rules"
)

// ProbeResult is the outcome of probing one upstream target.
type ProbeResult struct {
	Target     string
	StatusCode int
	Err        error
}

// Prober checks that rule targets accept connections. It only reports; a
// failed probe never blocks a reload.
type Prober struct {
	client  *fasthttp.Client
	timeout time.Duration
	logger  *logrus.Logger
}

func NewProber(logger *logrus.Logger, timeout time.Duration) *Prober {
	return &Prober{
		client: &fasthttp.Client{
			MaxConnsPerHost: 4,
			ReadTimeout:     timeout,
			WriteTimeout:    timeout,
		},
		timeout: timeout,
		logger:  logger,
	}
}

// Probe sends a HEAD request to every distinct target in cfg and logs the
// ones that cannot be reached.
func (p *Prober) Probe(cfg *rules.RouteConfig) []ProbeResult {
	seen := make(map[string]bool)
	var results []ProbeResult

	for _, rule := range cfg.Rules() {
		opts, err := rules.DecodeOptions(rule)
		if err != nil || seen[opts.Target] {
			continue
		}
		seen[opts.Target] = true

		result := p.probe(opts.Target)
		results = append(results, result)

		fields := logrus.Fields{
			"context": rule.Context,
			"target":  opts.Target,
		}
		if result.Err != nil {
			p.logger.WithError(result.Err).WithFields(fields).Warn("Proxy target is not reachable")
			continue
		}
		fields["status_code"] = result.StatusCode
		p.logger.WithFields(fields).Debug("Proxy target reachable")
	}
	return results
}

func (p *Prober) probe(target string) ProbeResult {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodHead)

	if err := p.client.DoTimeout(req, resp, p.timeout); err != nil {
		return ProbeResult{Target: target, Err: err}
	}
	return ProbeResult{Target: target, StatusCode: resp.StatusCode()}
}
