package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"pdfrag/internal/logger"
	"pdfrag/internal/metrics"
	"pdfrag/internal/service"
)

// Pipeline is the controller surface the HTTP API exposes.
type Pipeline interface {
	Ingest(ctx context.Context, path string) service.IngestStatus
	Clear(ctx context.Context) service.ClearStatus
	SearchTopK(ctx context.Context, raw string, k int) service.SearchResponse
	Status() service.Lifecycle
}

// Options tune the HTTP surface. UploadDir receives multipart uploads and
// defaults to the OS temp dir. DocumentRoot confines JSON path ingestion;
// empty disables it so only uploads are accepted.
type Options struct {
	UploadDir    string
	DocumentRoot string
	MaxUploadMB  int
	DefaultTopK  int
	Timeout      time.Duration
}

type Server struct {
	echo     *echo.Echo
	pipeline Pipeline
	opts     Options
	root     string
}

func New(p Pipeline, m *metrics.Metrics, opts Options) *Server {
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 32
	}
	if opts.DefaultTopK < 1 {
		opts.DefaultTopK = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", opts.MaxUploadMB)))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURIPath: true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debugf("%d %s %s (%s)", v.Status, v.Method, v.URIPath, v.Latency)
			return nil
		},
	}))
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		if code >= 500 {
			logger.Errorf("%d %s %s: %v", code, c.Request().Method, c.Request().URL.Path, err)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]any{"error": msg})
		}
	}

	s := &Server{echo: e, pipeline: p, opts: opts}
	if opts.DocumentRoot != "" {
		s.root = resolveRoot(opts.DocumentRoot)
	}
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}
	api := e.Group("/api")
	api.POST("/ingest", s.handleIngest)
	api.POST("/search", s.handleSearch)
	api.POST("/clear", s.handleClear)
	api.GET("/index", s.handleIndex)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error { return s.echo.Shutdown(ctx) }

type ingestRequest struct {
	Path string `json:"path" form:"path"`
}

type ingestResponse struct {
	service.IngestStatus
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleIngest(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.Timeout)
	defer cancel()

	path := ""
	if fh, err := c.FormFile("file"); err == nil {
		saved, err := s.saveUpload(fh)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "store upload: "+err.Error())
		}
		defer os.Remove(saved)
		path = saved
	} else {
		var req ingestRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		resolved, err := s.documentPath(req.Path)
		if err != nil {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		path = resolved
	}

	st := s.pipeline.Ingest(ctx, path)
	resp := ingestResponse{IngestStatus: st, Message: st.Message()}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	return c.JSON(ingestCode(st.Outcome), resp)
}

func resolveRoot(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		dir = real
	}
	return filepath.Clean(dir)
}

// documentPath maps a client path onto the document root. Relative paths
// are taken from the root; anything resolving outside it is refused,
// symlinks included.
func (s *Server) documentPath(p string) (string, error) {
	if s.root == "" {
		return "", errors.New("path ingestion is disabled; upload the file instead")
	}
	if strings.TrimSpace(p) == "" {
		return "", nil
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.root, p)
	}
	p = filepath.Clean(p)
	if real, err := filepath.EvalSymlinks(p); err == nil {
		p = real
	}
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside the document root", p)
	}
	return p, nil
}

// saveUpload copies an uploaded file to UploadDir, keeping its extension so
// the extractor can pick the right format.
func (s *Server) saveUpload(fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()
	dir := s.opts.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	dst, err := os.CreateTemp(dir, "upload-*"+filepath.Ext(fh.Filename))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

func ingestCode(o service.Outcome) int {
	switch o {
	case service.OutcomeIndexed:
		return http.StatusOK
	case service.OutcomePartial:
		return http.StatusMultiStatus
	case service.OutcomeRejected:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type matchJSON struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

type resultJSON struct {
	Query   string      `json:"query"`
	Matches []matchJSON `json:"matches"`
}

type searchResponse struct {
	Outcome service.Outcome `json:"outcome"`
	Queries []string        `json:"queries"`
	Results []resultJSON    `json:"results,omitempty"`
	Text    string          `json:"text"`
	Error   string          `json:"error,omitempty"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	k := req.TopK
	if k == 0 {
		k = s.opts.DefaultTopK
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.opts.Timeout)
	defer cancel()

	res := s.pipeline.SearchTopK(ctx, req.Query, k)
	out := searchResponse{Outcome: res.Outcome, Queries: res.Queries, Text: res.Message()}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	for _, qr := range res.Report.Results() {
		rj := resultJSON{Query: qr.Query, Matches: make([]matchJSON, 0, len(qr.Matches))}
		for _, m := range qr.Matches {
			rj.Matches = append(rj.Matches, matchJSON{ID: m.ID, Score: m.Score, Text: m.Text()})
		}
		out.Results = append(out.Results, rj)
	}

	code := http.StatusOK
	switch res.Outcome {
	case service.OutcomeRejected:
		code = http.StatusBadRequest
	case service.OutcomeFailed:
		code = http.StatusBadGateway
	}
	return c.JSON(code, out)
}

type clearResponse struct {
	Outcome service.Outcome `json:"outcome"`
	Message string          `json:"message"`
	Error   string          `json:"error,omitempty"`
}

func (s *Server) handleClear(c echo.Context) error {
	st := s.pipeline.Clear(c.Request().Context())
	out := clearResponse{Outcome: st.Outcome, Message: st.Message()}
	code := http.StatusOK
	if st.Err != nil {
		out.Error = st.Err.Error()
		code = http.StatusBadGateway
	}
	return c.JSON(code, out)
}

func (s *Server) handleIndex(c echo.Context) error {
	return c.JSON(http.StatusOK, s.pipeline.Status())
}
