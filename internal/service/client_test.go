package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"ipintel/internal/model"
	"ipintel/internal/utils"
)

func init() {
	utils.TestInitLogger()
}

// mockUpstream serves the two provider resources under the paths the
// engine derives from its base URL.
func mockUpstream(t *testing.T, overall, base http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/overall", overall)
	mux.HandleFunc("/base", base)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeOverall(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ret_data": map[string]interface{}{
			"data": map[string]interface{}{
				"score":        82.5,
				"risk_level":   "high",
				"threat_types": []string{"botnet", "scanner"},
				"tags":         []string{"idc"},
			},
		},
	})
}

func writeBase(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ret_data": map[string]interface{}{
			"data": map[string]interface{}{
				"isp":      "ExampleNet",
				"location": "Berlin, DE",
				"asn":      "AS64500",
				"is_proxy": true,
				"is_tor":   false,
			},
		},
	})
}

func serveError(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, "boom", http.StatusInternalServerError)
}

func newTestEngine(t *testing.T, baseURL string) *Engine {
	t.Helper()
	e := NewEngine(Config{BaseURL: baseURL, Timeout: 2 * time.Second, MaxWorkers: 4})
	t.Cleanup(e.Shutdown)
	return e
}

// checkExactlyOne asserts the per-result invariant: exactly one of
// data and error is populated.
func checkExactlyOne(t *testing.T, res model.QueryResult) {
	t.Helper()
	switch res.Status {
	case model.StatusSuccess:
		if res.Data == nil || res.Error != "" {
			t.Errorf("success result must carry data and no error: %+v", res)
		}
	case model.StatusError:
		if res.Data != nil || res.Error == "" {
			t.Errorf("error result must carry an error and no data: %+v", res)
		}
	default:
		t.Errorf("unexpected status %q", res.Status)
	}
}

func TestQuerySingle_Success(t *testing.T) {
	srv := mockUpstream(t, writeOverall, writeBase)
	e := newTestEngine(t, srv.URL)

	res, err := e.QuerySingle(context.Background(), "8.8.8.8", "", "")
	if err != nil {
		t.Fatalf("QuerySingle returned engine error: %v", err)
	}
	checkExactlyOne(t, res)

	if res.IP != "8.8.8.8" || res.Status != model.StatusSuccess {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Data.Overall.Score != 82.5 || res.Data.Overall.RiskLevel != "high" {
		t.Errorf("overall section not populated: %+v", res.Data.Overall)
	}
	if len(res.Data.Overall.ThreatTypes) != 2 || res.Data.Overall.ThreatTypes[0] != "botnet" {
		t.Errorf("threat types not populated: %+v", res.Data.Overall.ThreatTypes)
	}
	if res.Data.IPBase.ISP != "ExampleNet" || !res.Data.IPBase.IsProxy || res.Data.IPBase.IsTor {
		t.Errorf("ip_base section not populated: %+v", res.Data.IPBase)
	}
}

func TestQuerySingle_InvalidInput(t *testing.T) {
	srv := mockUpstream(t, writeOverall, writeBase)
	e := newTestEngine(t, srv.URL)

	for _, ip := range []string{"", "not-an-ip", "999.999.1.1"} {
		res, err := e.QuerySingle(context.Background(), ip, "", "")
		if err != nil {
			t.Fatalf("QuerySingle returned engine error: %v", err)
		}
		checkExactlyOne(t, res)
		if res.Error != model.ReasonInvalidInput {
			t.Errorf("ip %q: expected %s, got %q", ip, model.ReasonInvalidInput, res.Error)
		}
	}
}

func TestQuerySingle_BothEndpointsFail(t *testing.T) {
	srv := mockUpstream(t, serveError, serveError)
	e := newTestEngine(t, srv.URL)

	res, _ := e.QuerySingle(context.Background(), "1.1.1.1", "", "")
	checkExactlyOne(t, res)
	if res.Error != model.ReasonUpstream {
		t.Errorf("expected %s, got %q", model.ReasonUpstream, res.Error)
	}
}

func TestQuerySingle_PartialSectionFailure(t *testing.T) {
	t.Run("base fails", func(t *testing.T) {
		srv := mockUpstream(t, writeOverall, serveError)
		e := newTestEngine(t, srv.URL)

		res, _ := e.QuerySingle(context.Background(), "1.1.1.1", "", "")
		checkExactlyOne(t, res)
		if res.Status != model.StatusSuccess {
			t.Fatalf("one surviving section should still succeed: %+v", res)
		}
		if res.Data.Overall.RiskLevel != "high" {
			t.Errorf("overall section missing: %+v", res.Data.Overall)
		}
		if res.Data.IPBase.ISP != "" || res.Data.IPBase.IsProxy {
			t.Errorf("failed section must stay at defaults: %+v", res.Data.IPBase)
		}
	})

	t.Run("overall fails", func(t *testing.T) {
		srv := mockUpstream(t, serveError, writeBase)
		e := newTestEngine(t, srv.URL)

		res, _ := e.QuerySingle(context.Background(), "1.1.1.1", "", "")
		checkExactlyOne(t, res)
		if res.Status != model.StatusSuccess {
			t.Fatalf("one surviving section should still succeed: %+v", res)
		}
		if res.Data.Overall.Score != 0 || len(res.Data.Overall.ThreatTypes) != 0 {
			t.Errorf("failed section must stay at defaults: %+v", res.Data.Overall)
		}
		if res.Data.IPBase.ASN != "AS64500" {
			t.Errorf("ip_base section missing: %+v", res.Data.IPBase)
		}
	})
}

func TestQuerySingle_Timeout(t *testing.T) {
	slow := func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		writeOverall(w, r)
	}
	srv := mockUpstream(t, slow, slow)

	e := NewEngine(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond, MaxWorkers: 2})
	t.Cleanup(e.Shutdown)

	res, _ := e.QuerySingle(context.Background(), "1.1.1.1", "", "")
	checkExactlyOne(t, res)
	if res.Error != model.ReasonTimeout {
		t.Errorf("expected %s, got %q", model.ReasonTimeout, res.Error)
	}
}

func TestQuerySingle_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := newTestEngine(t, url)
	res, _ := e.QuerySingle(context.Background(), "1.1.1.1", "", "")
	checkExactlyOne(t, res)
	if res.Error != model.ReasonConnection {
		t.Errorf("expected %s, got %q", model.ReasonConnection, res.Error)
	}
}

func TestQuerySingle_UndecodableBody(t *testing.T) {
	garbage := func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}
	srv := mockUpstream(t, garbage, garbage)
	e := newTestEngine(t, srv.URL)

	res, _ := e.QuerySingle(context.Background(), "1.1.1.1", "", "")
	checkExactlyOne(t, res)
	if res.Error != model.ReasonUpstream {
		t.Errorf("expected %s, got %q", model.ReasonUpstream, res.Error)
	}
}

func TestQuerySingle_POST(t *testing.T) {
	var sawPost atomic.Bool
	handler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var body struct {
				IP string `json:"ip"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.IP != "9.9.9.9" {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			sawPost.Store(true)
		}
		writeOverall(w, r)
	}
	srv := mockUpstream(t, handler, handler)
	e := newTestEngine(t, srv.URL)

	res, _ := e.QuerySingle(context.Background(), "9.9.9.9", "", http.MethodPost)
	checkExactlyOne(t, res)
	if res.Status != model.StatusSuccess {
		t.Fatalf("POST query failed: %+v", res)
	}
	if !sawPost.Load() {
		t.Error("upstream never saw a POST body with the IP")
	}
}

func TestQuerySingle_GETCarriesIPParam(t *testing.T) {
	var gotIP atomic.Value
	handler := func(w http.ResponseWriter, r *http.Request) {
		gotIP.Store(r.URL.Query().Get("ip"))
		writeOverall(w, r)
	}
	srv := mockUpstream(t, handler, handler)
	e := newTestEngine(t, srv.URL)

	_, _ = e.QuerySingle(context.Background(), "2001:db8::1", "", "")
	if got, _ := gotIP.Load().(string); got != "2001:db8::1" {
		t.Errorf("expected ip query parameter, got %q", got)
	}
}

func TestQuerySingle_Idempotent(t *testing.T) {
	srv := mockUpstream(t, writeOverall, writeBase)
	e := newTestEngine(t, srv.URL)

	a, _ := e.QuerySingle(context.Background(), "8.8.8.8", "", "")
	b, _ := e.QuerySingle(context.Background(), "8.8.8.8", "", "")

	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	if string(aj) != string(bj) {
		t.Errorf("identical queries against a fixed upstream must match:\n%s\n%s", aj, bj)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"reason error", &reasonError{model.ReasonUpstream, "status 500"}, model.ReasonUpstream},
		{"deadline", context.DeadlineExceeded, model.ReasonTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); got != tt.reason {
				t.Errorf("classify() = %q, want %q", got, tt.reason)
			}
		})
	}
}
