package udojs

import (
	"encoding/json"
	"slices"
	"strings"
)

// LocalizedString accepte une chaîne simple ou un objet {"en_US": "..."}
type LocalizedString map[string]string

var preferredLocales = []string{"en_US", "en", "sw_TZ", "sw"}

func (l *LocalizedString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}

	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*l = LocalizedString{"": plain}
		return nil
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		// OJS renvoie [] pour un champ localisé vide
		var empty []any
		if json.Unmarshal(data, &empty) == nil && len(empty) == 0 {
			*l = nil
			return nil
		}
		return err
	}
	*l = m
	return nil
}

// String retourne la valeur de la locale préférée, sinon la première non vide
func (l LocalizedString) String() string {
	for _, loc := range preferredLocales {
		if v := strings.TrimSpace(l[loc]); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(l[""]); v != "" {
		return v
	}

	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(l[k]); v != "" {
			return v
		}
	}
	return ""
}

// envelope est la forme paginée des listes OJS
type envelope[T any] struct {
	Items    []T `json:"items"`
	ItemsMax int `json:"itemsMax"`
}

type thumbnail struct {
	UploadName string `json:"uploadName"`
	AltText    string `json:"altText"`
}

type thumbnails map[string]thumbnail

func (t *thumbnails) UnmarshalJSON(data []byte) error {
	var m map[string]*thumbnail
	if err := json.Unmarshal(data, &m); err != nil {
		// [] ou null quand aucune vignette
		*t = nil
		return nil
	}
	out := make(thumbnails, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = *v
		}
	}
	*t = out
	return nil
}

func (t thumbnails) uploadName() string {
	for _, loc := range preferredLocales {
		if v, ok := t[loc]; ok && v.UploadName != "" {
			return v.UploadName
		}
	}
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if t[k].UploadName != "" {
			return t[k].UploadName
		}
	}
	return ""
}

type apiContext struct {
	ID               int             `json:"id"`
	URLPath          string          `json:"urlPath"`
	Name             LocalizedString `json:"name"`
	Acronym          LocalizedString `json:"acronym"`
	Description      LocalizedString `json:"description"`
	OnlineISSN       string          `json:"onlineIssn"`
	PrintISSN        string          `json:"printIssn"`
	Enabled          bool            `json:"enabled"`
	JournalThumbnail thumbnails      `json:"journalThumbnail"`
}

// Context est un journal tel que décrit par OJS
type Context struct {
	ID           int    `json:"id"`
	URLPath      string `json:"url_path"`
	Name         string `json:"name"`
	Acronym      string `json:"acronym"`
	Description  string `json:"description"`
	OnlineISSN   string `json:"online_issn"`
	PrintISSN    string `json:"print_issn"`
	ThumbnailURL string `json:"thumbnail_url"`
}

type statItem struct {
	Key   string  `json:"key"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// EditorialStats regroupe les compteurs de l'activité éditoriale
type EditorialStats struct {
	Received       int64   `json:"received"`
	Accepted       int64   `json:"accepted"`
	Declined       int64   `json:"declined"`
	DeclinedDesk   int64   `json:"declined_desk"`
	DeclinedReview int64   `json:"declined_review"`
	Published      int64   `json:"published"`
	DaysToDecision float64 `json:"days_to_decision"`
	DaysToAccept   float64 `json:"days_to_accept"`
	DaysToReject   float64 `json:"days_to_reject"`
}

type apiPublication struct {
	ID                 int             `json:"id"`
	FullTitle          LocalizedString `json:"fullTitle"`
	Title              LocalizedString `json:"title"`
	AuthorsStringShort string          `json:"authorsStringShort"`
	URLPublished       string          `json:"urlPublished"`
	PubIDDOI           string          `json:"pub-id::doi"`
	DOIObject          *struct {
		DOI string `json:"doi"`
	} `json:"doiObject"`
}

func (p apiPublication) doi() string {
	if p.DOIObject != nil && p.DOIObject.DOI != "" {
		return p.DOIObject.DOI
	}
	return p.PubIDDOI
}

type apiPublicationStat struct {
	AbstractViews int64          `json:"abstractViews"`
	GalleyViews   int64          `json:"galleyViews"`
	PDFViews      int64          `json:"pdfViews"`
	HTMLViews     int64          `json:"htmlViews"`
	OtherViews    int64          `json:"otherViews"`
	Publication   apiPublication `json:"publication"`
}

// PublicationStat : vues d'un article publié
type PublicationStat struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	Authors       string `json:"authors"`
	DOI           string `json:"doi,omitempty"`
	URL           string `json:"url,omitempty"`
	AbstractViews int64  `json:"abstract_views"`
	GalleyViews   int64  `json:"galley_views"`
	PDFViews      int64  `json:"pdf_views"`
	HTMLViews     int64  `json:"html_views"`
	OtherViews    int64  `json:"other_views"`
}

// TotalViews additionne résumés et fichiers
func (p PublicationStat) TotalViews() int64 {
	return p.AbstractViews + p.GalleyViews
}

type apiSubmission struct {
	ID            int    `json:"id"`
	DateSubmitted string `json:"dateSubmitted"`
}
