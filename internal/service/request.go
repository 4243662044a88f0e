package service

import (
	"math/rand"
	"net/http"
	"strings"
)

// Pool of plausible desktop browser identities. Selection is uniform;
// per-call uniqueness is not a requirement.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36 Edg/125.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
}

func randomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// Endpoints are the two upstream resources a single query talks to.
type Endpoints struct {
	Overall string
	IPBase  string
}

// buildEndpoints joins the configured base URL with the fixed upstream
// resource suffixes.
func buildEndpoints(baseURL string) Endpoints {
	base := strings.TrimRight(baseURL, "/")
	return Endpoints{
		Overall: base + "/overall",
		IPBase:  base + "/base",
	}
}

// buildHeaders assembles the outbound header set for one upstream call.
func buildHeaders() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", randomUserAgent())
	h.Set("Accept", "application/json, text/plain, */*")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Connection", "keep-alive")
	return h
}
