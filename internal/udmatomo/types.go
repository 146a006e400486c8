package udmatomo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// FlexInt accepte 12, "12", "12.0", null ou ""
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	v, err := parseFlexNumber(data)
	if err != nil {
		return err
	}
	*f = FlexInt(v)
	return nil
}

// FlexFloat accepte aussi les pourcentages ("45%")
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	v, err := parseFlexNumber(data)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

func parseFlexNumber(data []byte) (float64, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" || string(data) == "false" {
		return 0, nil
	}

	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" || s == "-" {
		return 0, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("nombre invalide %q", s)
	}
	return v, nil
}

// APIError: Matomo répond HTTP 200 avec {"result":"error","message":"..."}
type APIError struct {
	Method  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("matomo %s: %s", e.Method, e.Message)
}

type errorEnvelope struct {
	Result  string `json:"result"`
	Message string `json:"message"`
}

// checkError détecte l'enveloppe d'erreur avant tout décodage typé
func checkError(method string, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil
	}
	if env.Result == "error" {
		return &APIError{Method: method, Message: env.Message}
	}
	return nil
}

type apiVisitsSummary struct {
	Visits          FlexInt   `json:"nb_visits"`
	UniqueVisitors  FlexInt   `json:"nb_uniq_visitors"`
	Users           FlexInt   `json:"nb_users"`
	Actions         FlexInt   `json:"nb_actions"`
	BounceRate      FlexFloat `json:"bounce_rate"`
	AvgTimeOnSite   FlexFloat `json:"avg_time_on_site"`
	ActionsPerVisit FlexFloat `json:"nb_actions_per_visit"`
}

type VisitsSummary struct {
	Visits          int64   `json:"visits"`
	UniqueVisitors  int64   `json:"unique_visitors"`
	Actions         int64   `json:"actions"`
	BounceRate      float64 `json:"bounce_rate"`
	AvgTimeOnSite   float64 `json:"avg_time_on_site"`
	ActionsPerVisit float64 `json:"actions_per_visit"`
}

func (s apiVisitsSummary) toSummary() VisitsSummary {
	return VisitsSummary{
		Visits:          int64(s.Visits),
		UniqueVisitors:  int64(s.UniqueVisitors),
		Actions:         int64(s.Actions),
		BounceRate:      float64(s.BounceRate),
		AvgTimeOnSite:   float64(s.AvgTimeOnSite),
		ActionsPerVisit: float64(s.ActionsPerVisit),
	}
}

// Add cumule deux résumés, les moyennes sont pondérées par les visites
func (s VisitsSummary) Add(o VisitsSummary) VisitsSummary {
	total := s.Visits + o.Visits
	out := VisitsSummary{
		Visits:         total,
		UniqueVisitors: s.UniqueVisitors + o.UniqueVisitors,
		Actions:        s.Actions + o.Actions,
	}
	if total > 0 {
		w1, w2 := float64(s.Visits), float64(o.Visits)
		out.BounceRate = (s.BounceRate*w1 + o.BounceRate*w2) / float64(total)
		out.AvgTimeOnSite = (s.AvgTimeOnSite*w1 + o.AvgTimeOnSite*w2) / float64(total)
		out.ActionsPerVisit = float64(out.Actions) / float64(total)
	}
	return out
}

type apiCountry struct {
	Label  string  `json:"label"`
	Code   string  `json:"code"`
	Visits FlexInt `json:"nb_visits"`
}

type CountryVisits struct {
	Code   string `json:"code"`
	Label  string `json:"label"`
	Visits int64  `json:"visits"`
}

type apiAction struct {
	Type      string  `json:"type"`
	URL       string  `json:"url"`
	PageTitle string  `json:"pageTitle"`
	Timestamp FlexInt `json:"timestamp"`
}

type apiVisit struct {
	IDVisit         FlexInt     `json:"idVisit"`
	VisitIP         string      `json:"visitIp"`
	ServerTimestamp FlexInt     `json:"serverTimestamp"`
	Country         string      `json:"country"`
	CountryCode     string      `json:"countryCode"`
	City            string      `json:"city"`
	Latitude        FlexFloat   `json:"latitude"`
	Longitude       FlexFloat   `json:"longitude"`
	ReferrerName    string      `json:"referrerName"`
	ReferrerType    string      `json:"referrerType"`
	DeviceType      string      `json:"deviceType"`
	ActionDetails   []apiAction `json:"actionDetails"`
}

type Action struct {
	Type      string `json:"type"`
	URL       string `json:"url"`
	PageTitle string `json:"page_title,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type Visit struct {
	ID          int64    `json:"id"`
	IP          string   `json:"-"`
	Timestamp   int64    `json:"timestamp"`
	CountryCode string   `json:"country_code"`
	Country     string   `json:"country"`
	City        string   `json:"city,omitempty"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Referrer    string   `json:"referrer,omitempty"`
	Device      string   `json:"device,omitempty"`
	Actions     []Action `json:"actions"`
}

// HasLocation: Matomo anonymisé renvoie des coordonnées vides
func (v Visit) HasLocation() bool {
	return v.Latitude != 0 || v.Longitude != 0
}

type apiCounters struct {
	Visits   FlexInt `json:"visits"`
	Actions  FlexInt `json:"actions"`
	Visitors FlexInt `json:"visitors"`
}

type Counters struct {
	Visits   int64 `json:"visits"`
	Actions  int64 `json:"actions"`
	Visitors int64 `json:"visitors"`
}
