package service

import (
	"strconv"

	"ipintel/internal/model"
)

// unwrapEnvelope peels the provider's response wrappers. The deployed
// endpoint nests the useful payload under ret_data.data; other
// deployments return a bare data object or the payload itself.
func unwrapEnvelope(payload map[string]interface{}) map[string]interface{} {
	if payload == nil {
		return nil
	}
	if rd, ok := payload["ret_data"].(map[string]interface{}); ok {
		if d, ok := rd["data"].(map[string]interface{}); ok {
			return d
		}
		return rd
	}
	if d, ok := payload["data"].(map[string]interface{}); ok {
		return d
	}
	return payload
}

// Normalize reshapes the two raw upstream payloads into the stable
// {overall, ip_base} envelope. Unknown keys are dropped and recognized
// keys default per type when absent. It never fails; a nil section
// yields a fully defaulted sub-object.
func Normalize(rawOverall, rawBase map[string]interface{}) *model.ResultData {
	data := &model.ResultData{
		Overall: model.Overall{
			ThreatTypes: []string{},
			Tags:        []string{},
		},
	}

	if rawOverall != nil {
		data.Overall.Score = asFloat(rawOverall["score"])
		data.Overall.RiskLevel = asString(rawOverall["risk_level"])
		data.Overall.ThreatTypes = asStrings(rawOverall["threat_types"])
		data.Overall.Tags = asStrings(rawOverall["tags"])
	}

	if rawBase != nil {
		data.IPBase.ISP = asString(rawBase["isp"])
		data.IPBase.Location = asString(rawBase["location"])
		data.IPBase.ASN = asString(rawBase["asn"])
		data.IPBase.IsProxy = asBool(rawBase["is_proxy"])
		data.IPBase.IsTor = asBool(rawBase["is_tor"])
	}

	return data
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return 0
}

func asBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t == "true" || t == "1"
	}
	return false
}

func asStrings(v interface{}) []string {
	out := []string{}
	list, ok := v.([]interface{})
	if !ok {
		return out
	}
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
