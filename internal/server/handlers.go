package server

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"github.com/KaramelBytes/edalens/internal/ai"
	"github.com/KaramelBytes/edalens/internal/analysis"
	"github.com/KaramelBytes/edalens/internal/dataset"
	"github.com/KaramelBytes/edalens/internal/dispatch"
	"github.com/KaramelBytes/edalens/internal/render"
)

const (
	contentTypeHeader = "Content-Type"
	contentTypeHTML   = "text/html; charset=utf-8"
	contentTypeJSON   = "application/json; charset=utf-8"

	tmplIndex   = "index.html"
	tmplDataset = "dataset.html"

	maxChartSide = 2000
)

// page is the data handed to every template.
type page struct {
	Title        string
	View         *View
	Upload       uploadForm
	MaxUploadMB  int
	Error        string
	Hint         string
	Question     string
	Insight      string
	InsightError string
}

type uploadForm struct {
	Separator string `schema:"separator"`
	Encoding  string `schema:"encoding"`
	Sheet     string `schema:"sheet"`
	Sample    int    `schema:"sample"`
}

// options overlays the form on the configured load defaults.
func (f uploadForm) options(base dataset.Options) (dataset.Options, error) {
	opt := base
	if f.Separator != "" {
		sep, err := dataset.ParseSeparator(f.Separator)
		if err != nil {
			return opt, err
		}
		opt.Separator = sep
	}
	if f.Encoding != "" {
		enc, err := dataset.ParseEncoding(f.Encoding)
		if err != nil {
			return opt, err
		}
		opt.Encoding = enc
	}
	if f.Sheet != "" {
		opt.SheetName = f.Sheet
	}
	if f.Sample > 0 {
		opt.SampleRows = f.Sample
	}
	return opt, nil
}

type insightForm struct {
	APIKey   string `schema:"api_key"`
	Question string `schema:"question"`
}

type chartQuery struct {
	Format string `schema:"format"`
	Width  int    `schema:"w"`
	Height int    `schema:"h"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, tmplIndex, s.indexPage())
}

func (s *Server) indexPage() *page {
	return &page{Title: "edalens", MaxUploadMB: int(s.cfg.maxUploadBytes() >> 20)}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.maxUploadBytes()
	if r.ContentLength > limit {
		s.uploadFailed(w, http.StatusRequestEntityTooLarge, nil, "the file is larger than the upload limit", "")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.uploadFailed(w, http.StatusRequestEntityTooLarge, nil, "the file is larger than the upload limit", "")
			return
		}
		s.uploadFailed(w, http.StatusBadRequest, nil, "the upload could not be read", "")
		return
	}
	defer r.MultipartForm.RemoveAll()

	var form uploadForm
	if err := s.decoder.Decode(&form, r.PostForm); err != nil {
		s.uploadFailed(w, http.StatusBadRequest, &form, "invalid upload options: "+err.Error(), "")
		return
	}
	opt, err := form.options(s.cfg.Load)
	if err != nil {
		s.uploadFailed(w, http.StatusBadRequest, &form, err.Error(), "")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		s.uploadFailed(w, http.StatusBadRequest, &form, "choose a CSV or XLSX file to upload", "")
		return
	}
	defer file.Close()

	t, err := dataset.Load(hdr.Filename, file, opt)
	if err != nil {
		hint := ""
		var le *dataset.LoadError
		if errors.As(err, &le) {
			hint = le.Hint()
		}
		s.logger.Warn().Str("file", hdr.Filename).Err(err).Msg("load failed")
		s.uploadFailed(w, http.StatusUnprocessableEntity, &form, err.Error(), hint)
		return
	}

	sess := s.store.Put(t)
	s.metrics.uploads.WithLabelValues("ok").Inc()
	s.logger.Info().
		Str("dataset", sess.ID).
		Str("file", hdr.Filename).
		Int("rows", t.Rows()).
		Int("cols", t.Cols()).
		Msg("dataset loaded")
	http.Redirect(w, r, "/datasets/"+sess.ID, http.StatusSeeOther)
}

func (s *Server) uploadFailed(w http.ResponseWriter, status int, form *uploadForm, msg, hint string) {
	s.metrics.uploads.WithLabelValues("error").Inc()
	p := s.indexPage()
	if form != nil {
		p.Upload = *form
	}
	p.Error = msg
	p.Hint = hint
	s.renderPage(w, status, tmplIndex, p)
}

// session resolves the {id} URL parameter or writes a 404.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, ok := s.store.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "dataset not found or expired; upload it again", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// selection decodes the analysis selection from the query string.
func (s *Server) selection(w http.ResponseWriter, r *http.Request) (dispatch.Selection, bool) {
	var sel dispatch.Selection
	if err := s.decoder.Decode(&sel, r.URL.Query()); err != nil {
		http.Error(w, "invalid selection: "+err.Error(), http.StatusBadRequest)
		return sel, false
	}
	mode, err := dispatch.ParseMode(string(sel.Mode))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return sel, false
	}
	sel.Mode = mode
	if sel.TopN <= 0 {
		sel.TopN = s.cfg.TopN
	}
	if sel.Bins <= 0 {
		sel.Bins = s.cfg.HistBins
	}
	return sel, true
}

func (s *Server) view(sess *Session, sel dispatch.Selection) *View {
	s.metrics.views.WithLabelValues(string(sel.Mode)).Inc()
	return s.views.build(sess, sel)
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sel, ok := s.selection(w, r)
	if !ok {
		return
	}
	s.renderPage(w, http.StatusOK, tmplDataset, &page{Title: sess.Name, View: s.view(sess, sel)})
}

func (s *Server) handleViewJSON(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sel, ok := s.selection(w, r)
	if !ok {
		return
	}
	body, err := sonic.Marshal(s.view(sess, sel))
	if err != nil {
		s.logger.Error().Err(err).Str("dataset", sess.ID).Msg("encode view failed")
		http.Error(w, "failed to encode view", http.StatusInternalServerError)
		return
	}
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	_, _ = w.Write(body)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sel, ok := s.selection(w, r)
	if !ok {
		return
	}
	var q chartQuery
	if err := s.decoder.Decode(&q, r.URL.Query()); err != nil {
		http.Error(w, "invalid chart options: "+err.Error(), http.StatusBadRequest)
		return
	}
	format, err := render.ParseFormat(q.Format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil || n < 0 {
		http.Error(w, "invalid chart index", http.StatusBadRequest)
		return
	}

	ops, err := dispatch.Plan(sel, sess.Classes)
	if err != nil {
		http.Error(w, notice(err), http.StatusUnprocessableEntity)
		return
	}
	if n >= len(ops) {
		http.NotFound(w, r)
		return
	}
	op := ops[n]
	if !render.Chartable(op.Kind) {
		http.Error(w, "no chart for "+string(op.Kind), http.StatusNotFound)
		return
	}
	res, err := dispatch.Execute(op, sess.Table)
	if err != nil {
		http.Error(w, notice(err), http.StatusUnprocessableEntity)
		return
	}

	var buf bytes.Buffer
	err = render.Render(&buf, res, render.Options{
		Format: format,
		Width:  clamp(q.Width, maxChartSide),
		Height: clamp(q.Height, maxChartSide),
	})
	switch {
	case errors.Is(err, render.ErrNoData):
		http.Error(w, "nothing to plot", http.StatusUnprocessableEntity)
		return
	case err != nil:
		s.logger.Error().Err(err).Str("kind", string(op.Kind)).Msg("render chart failed")
		http.Error(w, "failed to render chart", http.StatusInternalServerError)
		return
	}
	s.metrics.renders.WithLabelValues(string(op.Kind), string(format)).Inc()
	w.Header().Set(contentTypeHeader, format.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func clamp(v, hi int) int {
	if v > hi {
		return hi
	}
	return v
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	sel, ok := s.selection(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	var form insightForm
	if err := s.decoder.Decode(&form, r.PostForm); err != nil {
		http.Error(w, "invalid form: "+err.Error(), http.StatusBadRequest)
		return
	}

	p := &page{Title: sess.Name, View: s.view(sess, sel), Question: form.Question}
	text, err := s.insight(r, sess, form)
	if err != nil {
		p.InsightError = ai.Explain(err)
	} else {
		p.Insight = text
	}
	s.renderPage(w, http.StatusOK, tmplDataset, p)
}

// insight asks the analyst about sess. Failures are returned for display and
// never affect the rest of the page.
func (s *Server) insight(r *http.Request, sess *Session, form insightForm) (string, error) {
	key := strings.TrimSpace(form.APIKey)
	if key == "" {
		key = s.cfg.APIKey
	}
	if key == "" {
		s.metrics.insights.WithLabelValues("missing_key").Inc()
		return "", ai.ErrMissingAPIKey
	}
	if s.newAnalyst == nil {
		s.metrics.insights.WithLabelValues("error").Inc()
		return "", errors.New("no language model configured")
	}

	rep, err := analysis.BuildReport(sess.Table, analysis.DefaultReportOptions())
	if err != nil {
		s.metrics.insights.WithLabelValues("error").Inc()
		return "", err
	}
	prompt := ai.BuildPrompt(rep.Markdown(), form.Question, s.cfg.ContextTokens)

	start := time.Now()
	text, err := s.newAnalyst(key).Analyze(r.Context(), prompt)
	if err != nil {
		s.metrics.insights.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("dataset", sess.ID).Dur("duration", time.Since(start)).Msg("insight failed")
		return "", err
	}
	s.metrics.insights.WithLabelValues("ok").Inc()
	s.logger.Info().Str("dataset", sess.ID).Dur("duration", time.Since(start)).Msg("insight generated")
	return text, nil
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.store.Delete(chi.URLParam(r, "id"))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body, _ := sonic.Marshal(map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"datasets":  s.store.Len(),
	})
	w.Header().Set(contentTypeHeader, contentTypeJSON)
	_, _ = w.Write(body)
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, p *page) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, p); err != nil {
		s.logger.Error().Err(err).Str("template", name).Msg("render page failed")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set(contentTypeHeader, contentTypeHTML)
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
