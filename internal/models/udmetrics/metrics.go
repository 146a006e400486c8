package udmetrics

import (
	"cmp"
	"math"
	"slices"
	"strings"
)

// TimelinePoint est un point de série temporelle commun aux trois sources
type TimelinePoint struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

// RateSummary : taux calculés sur les soumissions ayant reçu une décision
type RateSummary struct {
	Decided        int64   `json:"decided"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	RejectionRate  float64 `json:"rejection_rate"`
}

// DecisionSample est le délai moyen de décision d'un journal et son poids
type DecisionSample struct {
	Decisions int64
	Days      float64
}

type CitedWork struct {
	DOI       string `json:"doi"`
	Title     string `json:"title"`
	Year      int    `json:"year,omitempty"`
	Journal   string `json:"journal,omitempty"`
	Citations int    `json:"citations"`
}

type CitationSummary struct {
	TotalCitations int64       `json:"total_citations"`
	Works          int         `json:"works"`
	CitedWorks     int         `json:"cited_works"`
	Uncited        int         `json:"uncited"`
	Average        float64     `json:"average"`
	Max            int         `json:"max"`
	HIndex         int         `json:"h_index"`
	I10Index       int         `json:"i10_index"`
	TopCited       []CitedWork `json:"top_cited"`
}

func Round1(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*10) / 10
}

// Percent retourne part/total en pourcentage, 0 si total est nul
func Percent(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return Round1(float64(part) * 100 / float64(total))
}

func Rates(accepted, declined int64) RateSummary {
	if accepted < 0 {
		accepted = 0
	}
	if declined < 0 {
		declined = 0
	}
	decided := accepted + declined
	return RateSummary{
		Decided:        decided,
		AcceptanceRate: Percent(accepted, decided),
		RejectionRate:  Percent(declined, decided),
	}
}

// WeightedDaysToDecision pondère chaque moyenne par le nombre de décisions
func WeightedDaysToDecision(samples []DecisionSample) float64 {
	var weight int64
	var sum float64
	for _, s := range samples {
		if s.Decisions <= 0 || s.Days < 0 {
			continue
		}
		weight += s.Decisions
		sum += s.Days * float64(s.Decisions)
	}
	if weight == 0 {
		return 0
	}
	return Round1(sum / float64(weight))
}

// HIndex: plus grand h tel que h travaux ont au moins h citations
func HIndex(citations []int) int {
	sorted := slices.Clone(citations)
	slices.SortFunc(sorted, func(a, b int) int { return cmp.Compare(b, a) })

	h := 0
	for i, c := range sorted {
		if c >= i+1 {
			h = i + 1
		} else {
			break
		}
	}
	return h
}

// I10Index: nombre de travaux cités au moins 10 fois
func I10Index(citations []int) int {
	n := 0
	for _, c := range citations {
		if c >= 10 {
			n++
		}
	}
	return n
}

// NormalizeDOI met un DOI sous sa forme canonique "10.xxx/yyy" en minuscules
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(strings.ToLower(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		doi = strings.TrimPrefix(doi, prefix)
	}
	return doi
}

// DedupeWorks garde une entrée par DOI, avec le plus grand nombre de citations.
// Les travaux sans DOI sont conservés tels quels.
func DedupeWorks(works []CitedWork) []CitedWork {
	index := make(map[string]int, len(works))
	out := make([]CitedWork, 0, len(works))
	for _, w := range works {
		key := NormalizeDOI(w.DOI)
		if key == "" {
			out = append(out, w)
			continue
		}
		if i, ok := index[key]; ok {
			if w.Citations > out[i].Citations {
				out[i].Citations = w.Citations
			}
			continue
		}
		w.DOI = key
		index[key] = len(out)
		out = append(out, w)
	}
	return out
}

func SummarizeCitations(works []CitedWork, top int) CitationSummary {
	works = DedupeWorks(works)

	summary := CitationSummary{Works: len(works), TopCited: []CitedWork{}}
	counts := make([]int, 0, len(works))
	for _, w := range works {
		c := max(w.Citations, 0)
		counts = append(counts, c)
		summary.TotalCitations += int64(c)
		if c > 0 {
			summary.CitedWorks++
		}
		summary.Max = max(summary.Max, c)
	}
	summary.Uncited = summary.Works - summary.CitedWorks
	if summary.Works > 0 {
		summary.Average = Round1(float64(summary.TotalCitations) / float64(summary.Works))
	}
	summary.HIndex = HIndex(counts)
	summary.I10Index = I10Index(counts)

	summary.TopCited = TopN(works, top, func(a, b CitedWork) int {
		if c := cmp.Compare(b.Citations, a.Citations); c != 0 {
			return c
		}
		return cmp.Compare(a.DOI, b.DOI)
	})
	return summary
}

// MergeTimelines additionne les points de même date, triés par date
func MergeTimelines(series ...[]TimelinePoint) []TimelinePoint {
	byDate := make(map[string]*TimelinePoint)
	for _, s := range series {
		for _, p := range s {
			if p.Date == "" {
				continue
			}
			if existing, ok := byDate[p.Date]; ok {
				existing.Value += p.Value
				if existing.Label == "" {
					existing.Label = p.Label
				}
				continue
			}
			cp := p
			byDate[p.Date] = &cp
		}
	}

	out := make([]TimelinePoint, 0, len(byDate))
	for _, p := range byDate {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b TimelinePoint) int { return strings.Compare(a.Date, b.Date) })
	return out
}

// SumTimeline retourne le total des valeurs d'une série
func SumTimeline(points []TimelinePoint) int64 {
	var total int64
	for _, p := range points {
		total += p.Value
	}
	return total
}

// TopN retourne les n premiers éléments selon compare, sans modifier items
func TopN[T any](items []T, n int, compare func(a, b T) int) []T {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, compare)
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	if sorted == nil {
		sorted = []T{}
	}
	return sorted
}

// Leader retourne la clé ayant la meilleure valeur, "" si values est vide.
// Les égalités sont départagées par ordre alphabétique des clés.
func Leader(values map[string]float64, lowerIsBetter bool) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	best := ""
	for _, k := range keys {
		if best == "" {
			best = k
			continue
		}
		v, b := values[k], values[best]
		if (lowerIsBetter && v < b) || (!lowerIsBetter && v > b) {
			best = k
		}
	}
	return best
}
