package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/edalens/internal/ai"
	"github.com/KaramelBytes/edalens/internal/dataset"
	"github.com/KaramelBytes/edalens/internal/dispatch"
)

const salesCSV = "fecha,region,ventas,unidades\n" +
	"2020-01-05,north,10,1\n" +
	"2020-01-20,south,5,2\n" +
	"2020-02-03,north,7,3\n" +
	"not-a-date,south,,4\n"

func newTestServer(t *testing.T, factory AnalystFactory) *Server {
	t.Helper()
	s, err := New(Config{MaxUploadMB: 1, SessionTTL: time.Hour}, nil, factory)
	require.NoError(t, err)
	return s
}

func do(s *Server, method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, s *Server, name, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if name != "" {
		fw, err := mw.CreateFormFile("file", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return do(s, http.MethodPost, "/upload", &buf, mw.FormDataContentType())
}

// uploadOK uploads content and returns the dataset path.
func uploadOK(t *testing.T, s *Server, name, content string) string {
	t.Helper()
	rec := upload(t, s, name, content, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	loc := rec.Header().Get("Location")
	require.True(t, strings.HasPrefix(loc, "/datasets/"), loc)
	return loc
}

func getView(t *testing.T, s *Server, path string, q url.Values) *View {
	t.Helper()
	target := path + "/view.json"
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	rec := do(s, http.MethodGet, target, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	var v View
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &v))
	return &v
}

func TestUploadAndOverview(t *testing.T) {
	s := newTestServer(t, nil)
	path := uploadOK(t, s, "sales.csv", salesCSV)

	rec := do(s, http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "sales.csv")
	assert.Contains(t, body, "empty cells")
	assert.Contains(t, body, "Missing values")
	assert.Contains(t, body, "Descriptive statistics")

	v := getView(t, s, path, nil)
	assert.Equal(t, 4, v.Rows)
	assert.Equal(t, 4, v.Cols)
	assert.Equal(t, 1, v.EmptyCells)
	assert.Len(t, v.Preview, 4)
	assert.Equal(t, []string{"ventas", "unidades"}, v.Classes.Numeric)
	assert.Contains(t, v.Classes.DateCandidates, "fecha")
	assert.Equal(t, dispatch.ModeOverview, v.Selection.Mode)
	require.Len(t, v.Panels, 2)
	assert.Equal(t, dispatch.KindMissingMap, v.Panels[0].Op.Kind)
	assert.Empty(t, v.Panels[0].ChartURL)
	require.Len(t, v.Tabs, len(dispatch.Modes()))
	for _, tab := range v.Tabs {
		assert.False(t, tab.Disabled, "tab %s", tab.Mode)
	}
}

func TestRelationshipsAndCharts(t *testing.T) {
	s := newTestServer(t, nil)
	path := uploadOK(t, s, "sales.csv", salesCSV)

	v := getView(t, s, path, url.Values{"mode": {"relationships"}, "color": {"region"}})
	require.Len(t, v.Panels, 2)
	scatter := v.Panels[1]
	assert.Equal(t, dispatch.KindScatter, scatter.Op.Kind)
	assert.Equal(t, "region", scatter.Op.Params.ColorBy)
	require.NotEmpty(t, scatter.ChartURL)
	assert.Contains(t, scatter.ChartURL, "/charts/1?")
	assert.Contains(t, scatter.ChartURL, "mode=relationships")

	rec := do(s, http.MethodGet, scatter.ChartURL, nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = do(s, http.MethodGet, scatter.ChartURL+"&format=svg", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<svg")

	// correlation is shown as a table
	rec = do(s, http.MethodGet, path+"/charts/0?mode=relationships", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(s, http.MethodGet, path+"/charts/7?mode=relationships", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(s, http.MethodGet, path+"/charts/x", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimeSeriesMonthlySum(t *testing.T) {
	s := newTestServer(t, nil)
	path := uploadOK(t, s, "sales.csv", salesCSV)

	v := getView(t, s, path, url.Values{
		"mode":   {"timeseries"},
		"date":   {"fecha"},
		"column": {"ventas"},
		"agg":    {"monthly-sum"},
	})
	require.Len(t, v.Panels, 1)
	require.NotNil(t, v.Panels[0].Result)
	ts := v.Panels[0].Result.Series
	require.NotNil(t, ts)
	assert.Equal(t, 1, ts.Dropped)
	require.Len(t, ts.Points, 2)
	assert.Equal(t, 15.0, ts.Points[0].Value)
	assert.Equal(t, 7.0, ts.Points[1].Value)

	rec := do(s, http.MethodGet, v.Panels[0].ChartURL, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTimeSeriesWithoutDatesShowsNotice(t *testing.T) {
	s := newTestServer(t, nil)
	path := uploadOK(t, s, "sales.csv", salesCSV)

	v := getView(t, s, path, url.Values{"mode": {"timeseries"}, "date": {"region"}})
	require.Len(t, v.Panels, 1)
	assert.Nil(t, v.Panels[0].Result)
	assert.Contains(t, v.Panels[0].Notice, "No valid dates")
	assert.Empty(t, v.Panels[0].ChartURL)

	rec := do(s, http.MethodGet, path+"/charts/0?mode=timeseries&date=region", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestDisabledModesAndInvalidSelection(t *testing.T) {
	s := newTestServer(t, nil)
	path := uploadOK(t, s, "small.csv", "a,b\n1,x\n2,y\n")

	v := getView(t, s, path, url.Values{"mode": {"relationships"}})
	assert.Empty(t, v.Panels)
	assert.Contains(t, v.Notice, "relationships needs at least 2 numeric columns (found 1)")
	for _, tab := range v.Tabs {
		if tab.Mode == dispatch.ModeRelationships {
			assert.True(t, tab.Disabled)
			assert.NotEmpty(t, tab.Notice)
		}
	}

	v = getView(t, s, path, url.Values{"mode": {"categorical-overview"}, "column": {"a"}})
	assert.Contains(t, v.Notice, "invalid selection")

	rec := do(s, http.MethodGet, path+"/view.json?mode=nope", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(s, http.MethodGet, path+"/view.json?top=many", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadFailures(t *testing.T) {
	s := newTestServer(t, nil)

	rec := upload(t, s, "bad.csv", "name\ncaf\xe9\n", map[string]string{"encoding": "utf-8"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "try latin-1")

	rec = upload(t, s, "", "", map[string]string{"separator": "comma"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "choose a CSV or XLSX file")

	rec = upload(t, s, "x.csv", "a\n1\n", map[string]string{"separator": "colon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unsupported separator")

	big := strings.Repeat("a,b\n", 300_000)
	rec = upload(t, s, "big.csv", big, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	assert.Equal(t, 0, s.Store().Len())
}

func TestUploadLatin1WithSemicolon(t *testing.T) {
	s := newTestServer(t, nil)
	rec := upload(t, s, "es.csv", "ciudad;valor\nM\xe1laga;1\nC\xe1diz;2\n", map[string]string{
		"separator": "semicolon",
		"encoding":  "latin-1",
	})
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	v := getView(t, s, rec.Header().Get("Location"), nil)
	assert.Equal(t, 2, v.Cols)
	assert.Equal(t, "Málaga", v.Preview[0][0])
}

func TestInsights(t *testing.T) {
	var gotKey, gotPrompt string
	s := newTestServer(t, func(apiKey string) ai.Analyst {
		gotKey = apiKey
		return ai.AnalystFunc(func(ctx context.Context, prompt string) (string, error) {
			gotPrompt = prompt
			return "## Findings\nventas grows in January", nil
		})
	})
	path := uploadOK(t, s, "sales.csv", salesCSV)

	form := url.Values{"api_key": {" sk-test "}, "question": {"Which region sells more?"}}
	rec := do(s, http.MethodPost, path+"/insights?mode=numeric-overview", bytes.NewBufferString(form.Encode()),
		"application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "sk-test", gotKey)
	assert.Contains(t, gotPrompt, "[DATASET SUMMARY]")
	assert.Contains(t, gotPrompt, "Which region sells more?")
	body := rec.Body.String()
	assert.Contains(t, body, "ventas grows in January")
	assert.Contains(t, body, "Distribution")
}

func TestInsightErrorsAreInline(t *testing.T) {
	s := newTestServer(t, func(apiKey string) ai.Analyst {
		return ai.AnalystFunc(func(ctx context.Context, prompt string) (string, error) {
			return "", &ai.AuthError{APIError: &ai.APIError{StatusCode: http.StatusUnauthorized, Message: "bad key"}}
		})
	})
	path := uploadOK(t, s, "sales.csv", salesCSV)

	form := url.Values{"api_key": {"wrong"}}
	rec := do(s, http.MethodPost, path+"/insights", bytes.NewBufferString(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "The API key was rejected")
	assert.Contains(t, rec.Body.String(), "Missing values")

	rec = do(s, http.MethodPost, path+"/insights", bytes.NewBufferString(""), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Enter an API key")
}

func TestUnknownAndDeletedDatasets(t *testing.T) {
	s := newTestServer(t, nil)
	rec := do(s, http.MethodGet, "/datasets/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(s, http.MethodGet, "/datasets/1b4e28ba-2fa1-11d2-883f-0016d3cca427/view.json", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	path := uploadOK(t, s, "sales.csv", salesCSV)
	rec = do(s, http.MethodPost, path+"/delete", nil, "")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	rec = do(s, http.MethodGet, path, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, nil)
	uploadOK(t, s, "sales.csv", salesCSV)

	rec := do(s, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.EqualValues(t, 1, health["datasets"])

	rec = do(s, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `edalens_uploads_total{outcome="ok"} 1`)
	assert.Contains(t, body, "edalens_sessions 1")
	assert.Contains(t, body, `edalens_http_requests_total{route="/upload",status="303"} 1`)
}

func TestStoreEviction(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	st := NewStore(time.Minute)
	st.now = func() time.Time { return now }

	tbl, err := dataset.Load("a.csv", strings.NewReader("x\n1\n"), dataset.Options{})
	require.NoError(t, err)
	a := st.Put(tbl)
	b := st.Put(tbl)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, []string{"x"}, a.Classes.Numeric)

	now = now.Add(45 * time.Second)
	_, ok := st.Get(a.ID)
	require.True(t, ok)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, st.Sweep())
	_, ok = st.Get(b.ID)
	assert.False(t, ok)
	_, ok = st.Get(a.ID)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = st.Get(a.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, st.Len())
}

func TestJanitorStopsWithContext(t *testing.T) {
	st := NewStore(time.Nanosecond)
	tbl, err := dataset.Load("a.csv", strings.NewReader("x\n1\n"), dataset.Options{})
	require.NoError(t, err)
	st.Put(tbl)

	ctx, cancel := context.WithCancel(context.Background())
	evicted := make(chan int, 1)
	done := make(chan struct{})
	go func() {
		st.Janitor(ctx, time.Millisecond, func(n int) {
			select {
			case evicted <- n:
			default:
			}
		})
		close(done)
	}()
	select {
	case n := <-evicted:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not sweep")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestInfiniteCellsKeepViewEncodable(t *testing.T) {
	s := newTestServer(t, nil)
	path := uploadOK(t, s, "inf.csv", "a,b\n1,2\ninf,3\n4,5\n")

	for _, mode := range dispatch.Modes() {
		rec := do(s, http.MethodGet, path+"/view.json?mode="+string(mode), nil, "")
		require.Equal(t, http.StatusOK, rec.Code, "mode %s: %s", mode, rec.Body.String())
	}

	v := getView(t, s, path, url.Values{"mode": {string(dispatch.ModeNumeric)}})
	require.NotEmpty(t, v.Panels)
	assert.Equal(t, dispatch.KindHistogram, v.Panels[0].Op.Kind)
	assert.Empty(t, v.Panels[0].Notice)
}

func TestInsightsHonorContextTokens(t *testing.T) {
	var gotPrompt string
	s, err := New(Config{MaxUploadMB: 1, SessionTTL: time.Hour, APIKey: "sk-test", ContextTokens: 10}, nil,
		func(apiKey string) ai.Analyst {
			return ai.AnalystFunc(func(ctx context.Context, prompt string) (string, error) {
				gotPrompt = prompt
				return "ok", nil
			})
		})
	require.NoError(t, err)
	path := uploadOK(t, s, "sales.csv", salesCSV)

	rec := do(s, http.MethodPost, path+"/insights", bytes.NewBufferString(""), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, gotPrompt, "[summary truncated]")
}
