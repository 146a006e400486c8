package udmetrics

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// Plus ancienne date acceptée par les APIs de statistiques OJS
var epoch = time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)

// DateRange est une période nommée ("30d", "12m"...) résolue en dates
type DateRange struct {
	Key   string    `json:"key"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

var RangeKeys = []string{"7d", "30d", "90d", "12m", "ytd", "all"}

const DefaultRange = "30d"

// ParseRange résout une clé de période relativement à now (fin incluse = hier
// pour que les statistiques journalières soient complètes)
func ParseRange(key string, now time.Time) (DateRange, error) {
	if key == "" {
		key = DefaultRange
	}
	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

	var start time.Time
	switch key {
	case "7d":
		start = end.AddDate(0, 0, -6)
	case "30d":
		start = end.AddDate(0, 0, -29)
	case "90d":
		start = end.AddDate(0, 0, -89)
	case "12m":
		start = time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -11, 0)
	case "ytd":
		start = time.Date(end.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case "all":
		start = epoch
	default:
		return DateRange{}, fmt.Errorf("période inconnue %q", key)
	}
	if start.After(end) {
		start = end
	}

	return DateRange{Key: key, Start: start, End: end}, nil
}

func (r DateRange) StartString() string {
	return r.Start.Format(DateLayout)
}

func (r DateRange) EndString() string {
	return r.End.Format(DateLayout)
}

// MatomoDate au format "YYYY-MM-DD,YYYY-MM-DD" attendu avec period=range
func (r DateRange) MatomoDate() string {
	return r.StartString() + "," + r.EndString()
}

// CacheKey identifie la période dans les clés de cache
func (r DateRange) CacheKey() string {
	return r.Key + ":" + r.EndString()
}

// Days retourne le nombre de jours couverts, bornes incluses
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}
