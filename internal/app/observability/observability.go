package observability

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"qbank/internal/auth"
	"qbank/internal/question"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type key struct {
	Method string
	Path   string
	Status int
}

type stat struct {
	Count     int64
	LatencyMS float64
}

type pipelineStat struct {
	Runs      int64
	Requested int64
	Parsed    int64
	Rejected  int64
	Shortfall int64
}

type Collector struct {
	db *sql.DB

	mu           sync.RWMutex
	requestStats map[key]stat
	pipelines    map[string]pipelineStat
	commitsOK    int64
	commitsFail  int64
	committed    int64
	startedAt    time.Time
}

func NewCollector(db *sql.DB) *Collector {
	return &Collector{
		db:           db,
		requestStats: make(map[key]stat),
		pipelines:    make(map[string]pipelineStat),
		startedAt:    time.Now(),
	}
}

// ObservePipeline records one segment/parse/validate run by origin.
func (c *Collector) ObservePipeline(origin string, rep question.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.pipelines[origin]
	s.Runs++
	s.Requested += int64(rep.Requested)
	s.Parsed += int64(rep.Parsed)
	s.Rejected += int64(rep.Rejected)
	if rep.Shortfall() {
		s.Shortfall++
	}
	c.pipelines[origin] = s
}

func (c *Collector) ObserveCommit(ok bool, items int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !ok {
		c.commitsFail++
		return
	}
	c.commitsOK++
	c.committed += int64(items)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
		path := normalizedPath(r.URL.Path)

		c.mu.Lock()
		k := key{Method: r.Method, Path: path, Status: rec.status}
		s := c.requestStats[k]
		s.Count++
		s.LatencyMS += latencyMS
		c.requestStats[k] = s
		c.mu.Unlock()

		userID := int64(0)
		if u, ok := auth.CurrentUser(r.Context()); ok {
			userID = u.ID
		}

		entry := map[string]any{
			"request_id": middleware.GetReqID(r.Context()),
			"user_id":    userID,
			"session_id": extractSessionID(r.URL.Path),
			"method":     r.Method,
			"path":       path,
			"status":     rec.status,
			"latency_ms": latencyMS,
			"remote_ip":  strings.TrimSpace(r.RemoteAddr),
		}
		b, _ := json.Marshal(entry)
		log.Printf("%s", string(b))
	})
}

func (c *Collector) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	c.mu.RLock()
	statsCopy := make(map[key]stat, len(c.requestStats))
	for k, v := range c.requestStats {
		statsCopy[k] = v
	}
	pipelines := make(map[string]pipelineStat, len(c.pipelines))
	for k, v := range c.pipelines {
		pipelines[k] = v
	}
	commitsOK, commitsFail, committed := c.commitsOK, c.commitsFail, c.committed
	startedAt := c.startedAt
	c.mu.RUnlock()

	keys := make([]key, 0, len(statsCopy))
	for k := range statsCopy {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Method != keys[j].Method {
			return keys[i].Method < keys[j].Method
		}
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Status < keys[j].Status
	})

	var sb strings.Builder
	sb.WriteString("# qbank observability metrics\n")
	sb.WriteString("# TYPE qbank_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("qbank_uptime_seconds %.0f\n", time.Since(startedAt).Seconds()))

	sb.WriteString("# TYPE qbank_http_requests_total counter\n")
	sb.WriteString("# TYPE qbank_http_request_latency_ms_sum counter\n")
	sb.WriteString("# TYPE qbank_http_request_latency_ms_avg gauge\n")
	for _, k := range keys {
		s := statsCopy[k]
		labels := fmt.Sprintf("method=\"%s\",path=\"%s\",status=\"%d\"", k.Method, k.Path, k.Status)
		sb.WriteString(fmt.Sprintf("qbank_http_requests_total{%s} %d\n", labels, s.Count))
		sb.WriteString(fmt.Sprintf("qbank_http_request_latency_ms_sum{%s} %.3f\n", labels, s.LatencyMS))
		avg := 0.0
		if s.Count > 0 {
			avg = s.LatencyMS / float64(s.Count)
		}
		sb.WriteString(fmt.Sprintf("qbank_http_request_latency_ms_avg{%s} %.3f\n", labels, avg))
	}

	origins := make([]string, 0, len(pipelines))
	for o := range pipelines {
		origins = append(origins, o)
	}
	sort.Strings(origins)
	sb.WriteString("# TYPE qbank_pipeline_runs_total counter\n")
	sb.WriteString("# TYPE qbank_pipeline_requested_total counter\n")
	sb.WriteString("# TYPE qbank_pipeline_parsed_total counter\n")
	sb.WriteString("# TYPE qbank_pipeline_rejected_total counter\n")
	sb.WriteString("# TYPE qbank_pipeline_shortfall_total counter\n")
	for _, o := range origins {
		p := pipelines[o]
		labels := fmt.Sprintf("origin=\"%s\"", o)
		sb.WriteString(fmt.Sprintf("qbank_pipeline_runs_total{%s} %d\n", labels, p.Runs))
		sb.WriteString(fmt.Sprintf("qbank_pipeline_requested_total{%s} %d\n", labels, p.Requested))
		sb.WriteString(fmt.Sprintf("qbank_pipeline_parsed_total{%s} %d\n", labels, p.Parsed))
		sb.WriteString(fmt.Sprintf("qbank_pipeline_rejected_total{%s} %d\n", labels, p.Rejected))
		sb.WriteString(fmt.Sprintf("qbank_pipeline_shortfall_total{%s} %d\n", labels, p.Shortfall))
	}

	sb.WriteString("# TYPE qbank_commits_total counter\n")
	sb.WriteString(fmt.Sprintf("qbank_commits_total{result=\"ok\"} %d\n", commitsOK))
	sb.WriteString(fmt.Sprintf("qbank_commits_total{result=\"failed\"} %d\n", commitsFail))
	sb.WriteString("# TYPE qbank_committed_questions_total counter\n")
	sb.WriteString(fmt.Sprintf("qbank_committed_questions_total %d\n", committed))

	if c.db != nil {
		dbs := c.db.Stats()
		sb.WriteString("# TYPE qbank_db_open_connections gauge\n")
		sb.WriteString(fmt.Sprintf("qbank_db_open_connections %d\n", dbs.OpenConnections))
		sb.WriteString("# TYPE qbank_db_in_use_connections gauge\n")
		sb.WriteString(fmt.Sprintf("qbank_db_in_use_connections %d\n", dbs.InUse))
		sb.WriteString("# TYPE qbank_db_idle_connections gauge\n")
		sb.WriteString(fmt.Sprintf("qbank_db_idle_connections %d\n", dbs.Idle))
		sb.WriteString("# TYPE qbank_db_wait_count counter\n")
		sb.WriteString(fmt.Sprintf("qbank_db_wait_count %d\n", dbs.WaitCount))
		sb.WriteString("# TYPE qbank_db_wait_duration_ms counter\n")
		sb.WriteString(fmt.Sprintf("qbank_db_wait_duration_ms %.3f\n", float64(dbs.WaitDuration.Microseconds())/1000.0))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sb.String()))
}

// normalizedPath collapses numeric and uuid segments so metric labels stay
// bounded.
func normalizedPath(path string) string {
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == "" {
			continue
		}
		if _, err := strconv.ParseInt(p, 10, 64); err == nil {
			parts[i] = "{id}"
			continue
		}
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{uuid}"
		}
	}
	return strings.Join(parts, "/")
}

func extractSessionID(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "review-sessions" {
			if id, err := uuid.Parse(parts[i+1]); err == nil {
				return id.String()
			}
		}
	}
	return ""
}
