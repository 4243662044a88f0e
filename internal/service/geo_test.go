package service

import "testing"

func TestGeoService_Unavailable(t *testing.T) {
	s := NewGeoService("testdata/absent.mmdb")
	defer s.Close()

	if s.Available() {
		t.Fatal("service must be unavailable without a database file")
	}
	if _, err := s.Lookup("8.8.8.8"); err == nil {
		t.Error("Lookup must fail when no database is loaded")
	}

	// Reload with the file still missing keeps the degraded state.
	s.Reload()
	if s.Available() {
		t.Error("Reload must not fabricate a reader")
	}
}

func TestGeoService_CloseIdempotent(t *testing.T) {
	s := NewGeoService("testdata/absent.mmdb")
	s.Close()
	s.Close()
}
