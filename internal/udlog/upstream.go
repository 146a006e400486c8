package udlog

import (
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// au-delà, une requête réussie est journalisée en warn
const SlowRequest = 5 * time.Second

// paramètres de query masqués dans les logs
var secretParams = []string{"token_auth", "apiToken", "mailto"}

// Upstream journalise les appels vers une source externe avec les mêmes
// champs partout: source, method, url (masquée), attempt, status, latency.
type Upstream struct {
	Source string
	Slow   time.Duration
}

func NewUpstream(source string) *Upstream {
	return &Upstream{Source: source, Slow: SlowRequest}
}

// logger est résolu à chaque appel pour suivre InitLogger
func (u *Upstream) logger() zerolog.Logger {
	return log.With().Str("source", u.Source).Logger()
}

// Attempt trace une réponse reçue, quel que soit son statut
func (u *Upstream) Attempt(method, rawURL string, attempt, status int, latency time.Duration) {
	l := u.logger()
	ev := l.Debug()
	msg := "upstream request"
	if u.Slow > 0 && latency >= u.Slow {
		ev = l.Warn()
		msg = "slow upstream request"
	}
	ev.Str("method", method).
		Str("url", RedactURL(rawURL)).
		Int("attempt", attempt).
		Int("status", status).
		Dur("latency", latency).
		Msg(msg)
}

// Retry annonce une nouvelle tentative après err
func (u *Upstream) Retry(rawURL string, attempt int, wait time.Duration, err error) {
	l := u.logger()
	l.Info().Err(err).
		Str("url", RedactURL(rawURL)).
		Int("attempt", attempt).
		Dur("wait", wait).
		Msg("retrying upstream request")
}

// Failed: toutes les tentatives ont échoué
func (u *Upstream) Failed(rawURL string, attempts int, err error) {
	l := u.logger()
	l.Warn().Err(err).
		Str("url", RedactURL(rawURL)).
		Int("attempts", attempts).
		Msg("upstream request failed")
}

// RedactURL masque les secrets passés en query string
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, k := range secretParams {
		if q.Has(k) {
			q.Set(k, "xxx")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}
