package service

import (
	"net"
	"testing"

	"github.com/miekg/dns"
)

// localDNS runs a throwaway resolver answering every PTR question with
// a fixed name.
func localDNS(t *testing.T, ptr string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to bind test resolver: %v", err)
	}

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if len(r.Question) == 1 && r.Question[0].Qtype == dns.TypePTR && ptr != "" {
			m.Answer = append(m.Answer, &dns.PTR{
				Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
				Ptr: ptr,
			})
		}
		_ = w.WriteMsg(m)
	})

	srv := &dns.Server{PacketConn: pc, Handler: mux}
	go func() {
		_ = srv.ActivateAndServe()
	}()
	t.Cleanup(func() {
		_ = srv.Shutdown()
	})

	return pc.LocalAddr().String()
}

func TestRDNSService_Lookup(t *testing.T) {
	s := NewRDNSService(localDNS(t, "dns.example.net."))

	names, err := s.Lookup("8.8.8.8")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(names) != 1 || names[0] != "dns.example.net" {
		t.Errorf("unexpected PTR names: %v", names)
	}
}

func TestRDNSService_NoRecords(t *testing.T) {
	s := NewRDNSService(localDNS(t, ""))

	names, err := s.Lookup("192.0.2.1")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no PTR names, got %v", names)
	}
}

func TestRDNSService_InvalidAddress(t *testing.T) {
	s := NewRDNSService("127.0.0.1:53")
	if _, err := s.Lookup("not-an-ip"); err == nil {
		t.Error("expected error for a non-reversible address")
	}
}

func TestNewRDNSService_DefaultResolver(t *testing.T) {
	s := NewRDNSService("")
	if s.Resolver == "" {
		t.Error("empty resolver must fall back to a default")
	}
}
