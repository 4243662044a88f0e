package model

// Status of a single IP query.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Machine-stable error reasons surfaced in QueryResult.Error.
const (
	ReasonInvalidInput = "invalid_input"
	ReasonTimeout      = "timeout"
	ReasonConnection   = "connection_error"
	ReasonUpstream     = "upstream_error"
	ReasonUnknown      = "unknown"
)

// Batch concurrency modes.
const (
	ModeThread  = "thread"
	ModeProcess = "process"
)

// Overall is the threat-score section of a normalized result.
type Overall struct {
	Score       float64  `json:"score"`
	RiskLevel   string   `json:"risk_level"`
	ThreatTypes []string `json:"threat_types"`
	Tags        []string `json:"tags"`
}

// IPBase is the ISP/geolocation/ASN section of a normalized result.
type IPBase struct {
	ISP      string `json:"isp"`
	Location string `json:"location"`
	ASN      string `json:"asn"`
	IsProxy  bool   `json:"is_proxy"`
	IsTor    bool   `json:"is_tor"`
}

// ResultData is the stable two-section envelope extracted from the
// upstream payloads.
type ResultData struct {
	Overall Overall `json:"overall"`
	IPBase  IPBase  `json:"ip_base"`
}

// QueryResult is the outcome of one IP query. Exactly one of Data and
// Error is set, matching Status.
type QueryResult struct {
	IP     string      `json:"ip"`
	Status string      `json:"status"`
	Data   *ResultData `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// BatchRequest is the body of a batch-query call.
type BatchRequest struct {
	IPs   []string `json:"ips"`
	Proxy string   `json:"proxy,omitempty"`
	Mode  string   `json:"mode,omitempty"`
}

// BatchResponse wraps an ordered result list. Results always has the
// same length and order as the requested IPs.
type BatchResponse struct {
	Status  string        `json:"status"`
	Total   int           `json:"total"`
	Mode    string        `json:"mode"`
	Results []QueryResult `json:"results"`
}

// ErrorResult builds an error-status result for ip.
func ErrorResult(ip, reason string) QueryResult {
	return QueryResult{IP: ip, Status: StatusError, Error: reason}
}

// SuccessResult builds a success-status result for ip.
func SuccessResult(ip string, data *ResultData) QueryResult {
	return QueryResult{IP: ip, Status: StatusSuccess, Data: data}
}
