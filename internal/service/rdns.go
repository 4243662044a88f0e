package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"
)

type RDNSService struct {
	Resolver string
}

func NewRDNSService(resolver string) *RDNSService {
	if resolver == "" {
		resolver = "8.8.8.8:53"
	}
	return &RDNSService{Resolver: resolver}
}

// Lookup resolves the PTR records for ip. No records is not an error;
// it yields an empty slice.
func (s *RDNSService) Lookup(ip string) ([]string, error) {
	queryName, err := dns.ReverseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("not a reversible address: %w", err)
	}

	m := new(dns.Msg)
	m.SetQuestion(queryName, dns.TypePTR)

	c := new(dns.Client)
	c.Timeout = 5 * time.Second
	in, _, err := c.Exchange(m, s.Resolver)
	if err != nil {
		return nil, err
	}

	names := []string{}
	for _, ans := range in.Answer {
		if ptr, ok := ans.(*dns.PTR); ok {
			names = append(names, strings.TrimSuffix(ptr.Ptr, "."))
		}
	}
	return names, nil
}
