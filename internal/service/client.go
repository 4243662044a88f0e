package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"ipintel/internal/metrics"
	"ipintel/internal/model"
	"ipintel/internal/utils"
)

// reasonError carries a pre-classified failure reason out of the
// request path.
type reasonError struct {
	reason string
	msg    string
}

func (e *reasonError) Error() string { return e.msg }

// QuerySingle runs one IP query and blocks until it completes or times
// out. It returns ErrEngineClosed after Shutdown; every other failure
// terminates in an error-status QueryResult, never in an error return.
func (e *Engine) QuerySingle(ctx context.Context, ip, proxyOverride, method string) (model.QueryResult, error) {
	if err := e.track(); err != nil {
		return model.QueryResult{}, err
	}
	defer e.untrack()
	return e.querySingle(ctx, ip, proxyOverride, method), nil
}

// querySingle is the untracked query path shared by single, batch and
// worker execution. No fault is allowed to escape it.
func (e *Engine) querySingle(ctx context.Context, ip, proxyOverride, method string) (res model.QueryResult) {
	defer func() {
		if r := recover(); r != nil {
			utils.Log.Error("query panic", utils.Field("ip", ip), utils.Field("panic", r))
			res = model.ErrorResult(ip, model.ReasonUnknown)
		}
		metrics.QueriesTotal.Inc()
		if res.Status == model.StatusError {
			metrics.QueryErrorsTotal.WithLabelValues(res.Error).Inc()
		}
	}()

	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	if !utils.IsPlausibleIP(ip) {
		return model.ErrorResult(ip, model.ReasonInvalidInput)
	}
	switch method {
	case "", http.MethodGet:
		method = http.MethodGet
	case http.MethodPost:
	default:
		return model.ErrorResult(ip, model.ReasonInvalidInput)
	}

	client, cleanup := e.clientFor(proxyOverride)
	defer cleanup()

	rawOverall, errOverall := e.fetch(ctx, client, e.endpoints.Overall, ip, method)
	rawBase, errBase := e.fetch(ctx, client, e.endpoints.IPBase, ip, method)

	// Policy: one section succeeding is enough for a success result;
	// the failed section is left at its typed defaults. Both failing
	// fails the item with the overall call's classification.
	if errOverall != nil && errBase != nil {
		reason := classify(errOverall)
		utils.Log.Debug("query failed",
			utils.Field("ip", ip),
			utils.Field("reason", reason),
			utils.Field("overall_error", errOverall.Error()),
			utils.Field("base_error", errBase.Error()))
		return model.ErrorResult(ip, reason)
	}

	return model.SuccessResult(ip, Normalize(rawOverall, rawBase))
}

// clientFor returns the HTTP client for one query. The default proxy
// shares the engine's long-lived transport; a per-call override gets a
// throwaway transport torn down with the returned cleanup.
func (e *Engine) clientFor(proxyOverride string) (*http.Client, func()) {
	resolved := ResolveProxy(proxyOverride, e.cfg.DefaultProxy)
	if resolved == e.defaultProxy {
		return &http.Client{Transport: e.transport, Timeout: e.cfg.Timeout}, func() {}
	}
	tr := newTransport(resolved)
	return &http.Client{Transport: tr, Timeout: e.cfg.Timeout}, tr.CloseIdleConnections
}

// fetch performs one upstream call and decodes its JSON body, peeling
// the provider envelope. Non-2xx statuses and undecodable bodies come
// back as upstream_error.
func (e *Engine) fetch(ctx context.Context, client *http.Client, endpoint, ip, method string) (map[string]interface{}, error) {
	var req *http.Request
	var err error

	if method == http.MethodPost {
		body, _ := json.Marshal(map[string]string{"ip": ip})
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?ip="+url.QueryEscape(ip), nil)
	}
	if err != nil {
		return nil, err
	}

	req.Header = buildHeaders()
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := client.Do(req)
	metrics.UpstreamDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &reasonError{model.ReasonUpstream, fmt.Sprintf("upstream status %d", resp.StatusCode)}
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &reasonError{model.ReasonUpstream, "undecodable upstream body: " + err.Error()}
	}

	return unwrapEnvelope(payload), nil
}

// classify maps a transport or protocol failure to the stable reason
// taxonomy. Nothing is left unclassified.
func classify(err error) string {
	var re *reasonError
	if errors.As(err, &re) {
		return re.reason
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return model.ReasonTimeout
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return model.ReasonConnection
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return model.ReasonConnection
	}
	return model.ReasonUnknown
}
