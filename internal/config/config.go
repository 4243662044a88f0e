package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://cloud.baidu.com/api/afd-ip-threat/act/v1/ipage"

type Config struct {
	Port            string
	UpstreamBaseURL string
	ProxyURL        string
	MaxWorkers      int
	QueryTimeout    time.Duration
	DNSResolver     string
	GeoIPDBPath     string
	EnableGeo       bool
	EnableRDNS      bool
	EnableWhois     bool

	// TrustedMetricsIPs restricts /metrics to a comma-separated list of
	// addresses or CIDR ranges. Empty means unrestricted.
	TrustedMetricsIPs string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:            getEnv("PORT", "5000"),
		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", defaultBaseURL),
		ProxyURL:        os.Getenv("PROXY_URL"),
		MaxWorkers:      getEnvInt("MAX_WORKERS", 0),
		QueryTimeout:    time.Duration(getEnvInt("QUERY_TIMEOUT_SECONDS", 20)) * time.Second,
		DNSResolver:     getEnv("DNS_RESOLVER", "8.8.8.8:53"),
		GeoIPDBPath:     getEnv("GEOIP_DB_PATH", "data/GeoLite2-City.mmdb"),
		EnableGeo:       getEnvBool("ENABLE_GEO", true),
		EnableRDNS:      getEnvBool("ENABLE_RDNS", true),
		EnableWhois:     getEnvBool("ENABLE_WHOIS", true),

		TrustedMetricsIPs: os.Getenv("TRUSTED_METRICS_IPS"),
	}

	u, err := url.Parse(cfg.UpstreamBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("UPSTREAM_BASE_URL %q is not an absolute URL", cfg.UpstreamBaseURL)
	}

	if cfg.QueryTimeout <= 0 {
		return nil, fmt.Errorf("QUERY_TIMEOUT_SECONDS must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
