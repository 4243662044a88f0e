package service

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"ipintel/internal/utils"
)

// GeoService serves offline city lookups from a local GeoLite2
// database. It degrades to an unavailable state when the database file
// is missing; lookups then fail without affecting the query engine.
type GeoService struct {
	path string

	mu     sync.RWMutex
	reader *geoip2.Reader
}

type GeoInfo struct {
	Query       string  `json:"query"`
	Country     string  `json:"country"`
	CountryCode string  `json:"country_code"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
}

func NewGeoService(path string) *GeoService {
	s := &GeoService{path: path}
	s.Reload()
	return s
}

// Reload reopens the database file, keeping the previous reader when
// the file is absent or unreadable.
func (s *GeoService) Reload() {
	reader, err := geoip2.Open(s.path)
	if err != nil {
		utils.Log.Warn("geoip database not loaded", utils.Field("path", s.path), utils.Field("error", err.Error()))
		return
	}

	s.mu.Lock()
	if s.reader != nil {
		_ = s.reader.Close()
	}
	s.reader = reader
	s.mu.Unlock()
	utils.Log.Info("geoip database loaded", utils.Field("path", s.path))
}

// Available reports whether a database is loaded.
func (s *GeoService) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reader != nil
}

func (s *GeoService) Lookup(target string) (*GeoInfo, error) {
	s.mu.RLock()
	reader := s.reader
	s.mu.RUnlock()

	if reader == nil {
		return nil, fmt.Errorf("geoip database not loaded")
	}

	ip := net.ParseIP(target)
	if ip == nil {
		return nil, fmt.Errorf("not an IP address: %s", target)
	}

	record, err := reader.City(ip)
	if err != nil {
		return nil, err
	}

	return &GeoInfo{
		Query:       target,
		Country:     record.Country.Names["en"],
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
		Lat:         record.Location.Latitude,
		Lon:         record.Location.Longitude,
		Timezone:    record.Location.TimeZone,
	}, nil
}

func (s *GeoService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reader != nil {
		_ = s.reader.Close()
		s.reader = nil
	}
}
