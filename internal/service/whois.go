package service

import (
	"strings"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
)

// WhoisInfo is the registration data for an IP allocation. Registry
// output for address space rarely parses into structured fields, so
// Raw is always populated and the rest is best effort.
type WhoisInfo struct {
	Raw     string `json:"raw"`
	Org     string `json:"org,omitempty"`
	Created string `json:"created,omitempty"`
	Updated string `json:"updated,omitempty"`
}

// WhoisIP looks up the registration record for an IP address.
func WhoisIP(ip string) (*WhoisInfo, error) {
	raw, err := whois.Whois(ip)
	if err != nil {
		return nil, err
	}

	info := &WhoisInfo{Raw: filterComments(raw)}

	result, err := whoisparser.Parse(raw)
	if err != nil {
		return info, nil
	}
	if result.Registrar != nil {
		info.Org = result.Registrar.Name
	}
	if result.Domain != nil {
		info.Created = result.Domain.CreatedDate
		info.Updated = result.Domain.UpdatedDate
	}
	return info, nil
}

// filterComments drops registry comment lines and collapses repeated
// blank lines.
func filterComments(raw string) string {
	var filtered []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "%") || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if trimmed == "" && (len(filtered) == 0 || filtered[len(filtered)-1] == "") {
			continue
		}
		filtered = append(filtered, line)
	}
	return strings.Join(filtered, "\n")
}
