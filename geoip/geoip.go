// Package geoip annotates node listings with country codes from a local
// MaxMind database. Lookups are display-only.
package geoip

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	RegisteredCountry struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"registered_country"`
}

// Annotator resolves server addresses to ISO country codes.
type Annotator struct {
	reader *maxminddb.Reader
}

// Open loads an mmdb file. The caller owns the returned Annotator and must
// Close it.
func Open(dbPath string) (*Annotator, error) {
	reader, err := maxminddb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", dbPath, err)
	}
	return &Annotator{reader: reader}, nil
}

func (a *Annotator) Close() error {
	if a == nil || a.reader == nil {
		return nil
	}
	return a.reader.Close()
}

// Country returns the ISO country code for a node's server address, or ""
// when the address is a hostname or the database has no record for it.
// Hostnames are never resolved; a DNS round trip per listed node is not
// worth a display hint.
func (a *Annotator) Country(host string) string {
	if a == nil || a.reader == nil {
		return ""
	}
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return ""
	}
	var record countryRecord
	if err := a.reader.Lookup(ip, &record); err != nil {
		return ""
	}
	code := strings.TrimSpace(record.Country.ISOCode)
	if code == "" {
		code = strings.TrimSpace(record.RegisteredCountry.ISOCode)
	}
	return strings.ToUpper(code)
}
