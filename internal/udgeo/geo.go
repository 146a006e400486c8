// Package udgeo localise les adresses IP avec une base GeoLite2-City.
package udgeo

import (
	"fmt"
	"net/netip"
	"strings"

	"udsmanalytics/internal/udmatomo"

	"github.com/oschwald/geoip2-golang/v2"
	"github.com/rs/zerolog/log"
)

type Location struct {
	CountryCode string  `json:"country_code"`
	Country     string  `json:"country"`
	City        string  `json:"city,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type Locator interface {
	Locate(ip string) (Location, bool)
}

// Reader: sans base configurée, Locate ne trouve jamais rien
type Reader struct {
	db *geoip2.Reader
}

func Open(path string) (*Reader, error) {
	if path == "" {
		return &Reader{}, nil
	}
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geoip %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("GeoIP database loaded")
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Reader) Locate(ip string) (Location, bool) {
	if r == nil || r.db == nil {
		return Location{}, false
	}
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil || !addr.IsGlobalUnicast() || addr.IsPrivate() {
		return Location{}, false
	}

	record, err := r.db.City(addr)
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("GeoIP lookup failed")
		return Location{}, false
	}
	if !record.HasData() || !record.Location.HasCoordinates() {
		return Location{}, false
	}

	return Location{
		CountryCode: strings.ToUpper(record.Country.ISOCode),
		Country:     record.Country.Names.English,
		City:        record.City.Names.English,
		Latitude:    *record.Location.Latitude,
		Longitude:   *record.Location.Longitude,
	}, true
}

// Enrich complète les visites sans coordonnées (Matomo anonymisé) et
// retourne le nombre de visites localisées
func Enrich(l Locator, visits []udmatomo.Visit) int {
	if l == nil {
		return 0
	}
	n := 0
	for i := range visits {
		v := &visits[i]
		if v.HasLocation() || v.IP == "" {
			continue
		}
		loc, ok := l.Locate(v.IP)
		if !ok {
			continue
		}
		v.Latitude, v.Longitude = loc.Latitude, loc.Longitude
		if v.CountryCode == "" {
			v.CountryCode, v.Country = loc.CountryCode, loc.Country
		}
		if v.City == "" {
			v.City = loc.City
		}
		n++
	}
	return n
}
