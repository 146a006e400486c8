package udojs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"udsmanalytics/internal/models/udmetrics"
	"udsmanalytics/internal/udconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRange(t *testing.T) udmetrics.DateRange {
	r, err := udmetrics.ParseRange("30d", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return r
}

func newTestClient(srv *httptest.Server) *Client {
	return New(udconfig.OJSConfig{BaseURL: srv.URL + "/index.php", APIToken: "tok", Timeout: 2})
}

func TestLocalizedString(t *testing.T) {
	var l LocalizedString
	require.NoError(t, json.Unmarshal([]byte(`{"fr_CA":"Bonjour","en_US":" Hello "}`), &l))
	assert.Equal(t, "Hello", l.String())

	require.NoError(t, json.Unmarshal([]byte(`"plain"`), &l))
	assert.Equal(t, "plain", l.String())

	require.NoError(t, json.Unmarshal([]byte(`{"sw_TZ":"","fr_CA":"Salut","de_DE":"Hallo"}`), &l))
	assert.Equal(t, "Hallo", l.String())

	require.NoError(t, json.Unmarshal([]byte(`[]`), &l))
	assert.Equal(t, "", l.String())

	assert.Error(t, json.Unmarshal([]byte(`42`), &l))
}

func TestListContextsPaginates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index.php/index/api/v1/contexts", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		count := 100
		if offset >= 100 {
			count = 2
		}
		items := make([]map[string]any, 0, count)
		for i := 0; i < count; i++ {
			id := offset + i + 1
			items = append(items, map[string]any{
				"id":               id,
				"urlPath":          fmt.Sprintf("j%d", id),
				"name":             map[string]string{"en_US": fmt.Sprintf("Journal %d", id)},
				"onlineIssn":       "1234-5678",
				"journalThumbnail": map[string]any{"en_US": map[string]string{"uploadName": "journalThumbnail_en_US.png"}},
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items, "itemsMax": 102})
	}))
	defer srv.Close()

	contexts, err := newTestClient(srv).ListContexts(context.Background())
	require.NoError(t, err)
	require.Len(t, contexts, 102)
	assert.Equal(t, "j1", contexts[0].URLPath)
	assert.Equal(t, "Journal 102", contexts[101].Name)
	assert.Equal(t, srv.URL+"/public/journals/1/journalThumbnail_en_US.png", contexts[0].ThumbnailURL)
}

func TestEditorialStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index.php/tjs/api/v1/stats/editorial", r.URL.Path)
		assert.Equal(t, "2026-02-13", r.URL.Query().Get("dateStart"))
		assert.Equal(t, "2026-03-14", r.URL.Query().Get("dateEnd"))
		w.Write([]byte(`[
			{"key":"submissionsReceived","name":"Received","value":120},
			{"key":"submissionsAccepted","value":30},
			{"key":"submissionsDeclinedDeskReject","value":40},
			{"key":"submissionsDeclinedPostReview","value":20},
			{"key":"submissionsPublished","value":25},
			{"key":"daysToDecision","value":42},
			{"key":"acceptanceRate","value":0.33}
		]`))
	}))
	defer srv.Close()

	stats, err := newTestClient(srv).EditorialStats(context.Background(), "tjs", testRange(t))
	require.NoError(t, err)
	assert.Equal(t, int64(120), stats.Received)
	assert.Equal(t, int64(30), stats.Accepted)
	assert.Equal(t, int64(60), stats.Declined)
	assert.Equal(t, int64(25), stats.Published)
	assert.Equal(t, 42.0, stats.DaysToDecision)
}

func TestPublicationStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "total", r.URL.Query().Get("orderBy"))
		w.Write([]byte(`{"itemsMax":2,"items":[
			{"abstractViews":10,"galleyViews":5,"pdfViews":5,"publication":{"id":7,"fullTitle":{"en_US":"Soil"},"authorsStringShort":"Mushi et al.","pub-id::doi":"10.4314/tjs.v1"}},
			{"abstractViews":3,"galleyViews":1,"publication":{"id":8,"title":"Water","doiObject":{"doi":"10.4314/tjs.v2"}}}
		]}`))
	}))
	defer srv.Close()

	pubs, err := newTestClient(srv).PublicationStats(context.Background(), "tjs", testRange(t), 0)
	require.NoError(t, err)
	require.Len(t, pubs, 2)
	assert.Equal(t, "Soil", pubs[0].Title)
	assert.Equal(t, "10.4314/tjs.v1", pubs[0].DOI)
	assert.Equal(t, int64(15), pubs[0].TotalViews())
	assert.Equal(t, "Water", pubs[1].Title)
	assert.Equal(t, "10.4314/tjs.v2", pubs[1].DOI)
}

func TestPublicationTimeline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "month", r.URL.Query().Get("timelineInterval"))
		assert.Equal(t, "files", r.URL.Query().Get("type"))
		w.Write([]byte(`[{"date":"2026-02","label":"February 2026","value":12}]`))
	}))
	defer srv.Close()

	points, err := newTestClient(srv).PublicationTimeline(context.Background(), "tjs", testRange(t), "files")
	require.NoError(t, err)
	assert.Equal(t, []udmetrics.TimelinePoint{{Date: "2026-02", Label: "February 2026", Value: 12}}, points)
}

func TestBucketSubmissions(t *testing.T) {
	items := []apiSubmission{
		{ID: 1, DateSubmitted: "2026-02-20 10:00:00"},
		{ID: 2, DateSubmitted: "2026-03-01 08:00:00"},
		{ID: 3, DateSubmitted: "2026-03-14 23:59:00"},
		{ID: 4, DateSubmitted: "2026-03-15 00:01:00"},
		{ID: 5, DateSubmitted: "2025-01-01 00:00:00"},
		{ID: 6, DateSubmitted: "garbage"},
	}
	points := bucketSubmissions(items, testRange(t))
	assert.Equal(t, []udmetrics.TimelinePoint{
		{Date: "2026-02", Label: "February 2026", Value: 1},
		{Date: "2026-03", Label: "March 2026", Value: 2},
	}, points)
}

// soumissions horaires, de la plus récente à la plus ancienne
func submissionsServer(t *testing.T, latest time.Time, step time.Duration, requests *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/index.php/tjs/api/v1/submissions", r.URL.Path)
		assert.Equal(t, "DESC", r.URL.Query().Get("orderDirection"))
		requests.Add(1)

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		items := make([]map[string]any, 0, 100)
		for i := 0; i < 100; i++ {
			n := offset + i
			items = append(items, map[string]any{
				"id":            n + 1,
				"dateSubmitted": latest.Add(-time.Duration(n) * step).Format("2006-01-02 15:04:05"),
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"items": items, "itemsMax": 100000})
	}))
}

func TestSubmissionTimelineStopsAtRangeStart(t *testing.T) {
	var requests atomic.Int32
	srv := submissionsServer(t, time.Date(2026, time.March, 14, 23, 30, 0, 0, time.UTC), time.Hour, &requests)
	defer srv.Close()

	r, err := udmetrics.ParseRange("7d", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	points, err := newTestClient(srv).SubmissionTimeline(context.Background(), "tjs", r)
	require.NoError(t, err)
	// 7 jours x 24 soumissions, la deuxième page déborde déjà avant le 8 mars
	assert.Equal(t, []udmetrics.TimelinePoint{{Date: "2026-03", Label: "March 2026", Value: 168}}, points)
	assert.Equal(t, int32(2), requests.Load())
}

func TestSubmissionTimelinePageLimit(t *testing.T) {
	var requests atomic.Int32
	srv := submissionsServer(t, time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC), time.Second, &requests)
	defer srv.Close()

	r, err := udmetrics.ParseRange("all", time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	points, err := newTestClient(srv).SubmissionTimeline(context.Background(), "tjs", r)
	require.NoError(t, err)
	assert.Equal(t, int32(maxPages), requests.Load())
	assert.Equal(t, []udmetrics.TimelinePoint{{Date: "2026-03", Label: "March 2026", Value: maxPages * pageSize}}, points)
}

func TestReachesBefore(t *testing.T) {
	start := time.Date(2026, time.March, 8, 0, 0, 0, 0, time.UTC)
	assert.False(t, reachesBefore([]apiSubmission{{DateSubmitted: "2026-03-09"}, {DateSubmitted: ""}}, start))
	assert.True(t, reachesBefore([]apiSubmission{{DateSubmitted: "2026-03-09"}, {DateSubmitted: "2026-03-07 23:59:59"}}, start))
	assert.False(t, reachesBefore(nil, start))
}

func TestUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"api.403.unauthorized"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).EditorialStats(context.Background(), "tjs", testRange(t))
	assert.ErrorContains(t, err, "403")
}
