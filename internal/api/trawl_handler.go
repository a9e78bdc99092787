package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/simmonsip/trawler/internal/trawl"
)

// runTrawl starts a synchronous scan. Query parameters override the
// configured run defaults for this call only.
func (s *Server) runTrawl(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if queryFlag(q, "selftest") {
		writeJSON(w, http.StatusOK, map[string]any{"selftest": s.runner.SelfTest()})
		return
	}
	if queryFlag(q, "info") {
		writeJSON(w, http.StatusOK, s.runner.Info(r.Context()))
		return
	}

	params := s.runParams(q)
	report, err := s.runner.Run(r.Context(), params)
	if err != nil {
		s.logger.Error("trawl run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "trawl run failed")
		return
	}

	s.notifyRun(report)
	writeJSON(w, http.StatusOK, report)
}

// runParams maps query parameters onto RunParams, starting from the
// configured defaults. Out-of-range values fall back to defaults inside
// the engine rather than failing the request.
func (s *Server) runParams(q url.Values) trawl.RunParams {
	params := trawl.RunParams{
		IncludeImages:    queryFlag(q, "includeImages"),
		SkipRender:       queryFlag(q, "skipRender"),
		DryRun:           queryFlag(q, "dry"),
		SiteIndex:        queryInt(q, "idx", -1),
		MaxSites:         queryInt(q, "maxSites", 0),
		LimitKeywords:    queryInt(q, "limitKeywords", 0),
		MaxImagesPerSite: queryInt(q, "maxImages", s.cfg.Trawl.MaxImagesPerSite),
		Concurrency:      queryInt(q, "concurrency", s.cfg.Trawl.Concurrency),
		RenderDelay:      queryDurationMs(q, "renderDelayMs", s.cfg.RenderDelay()),
		FetchTimeout:     queryDurationMs(q, "fetchTimeoutMs", s.cfg.FetchTimeout()),
	}
	// An explicit renderDelayMs=0 disables the settle delay; a negative
	// RunParams.RenderDelay survives Defaults as zero.
	if v := q.Get("renderDelayMs"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms <= 0 {
			params.RenderDelay = -1
		}
	}
	// The deadline default depends on skipRender, so only an explicit
	// deadlineMs overrides it here.
	if ms := queryInt(q, "deadlineMs", 0); ms > 0 {
		params.Deadline = time.Duration(ms) * time.Millisecond
	}
	return params
}

// notifyRun publishes the run summary off the request path.
func (s *Server) notifyRun(report trawl.RunReport) {
	topic := s.cfg.PubSub.TopicName
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := s.notifier.Publish(ctx, topic, report.Meta); err != nil {
			s.logger.Warn("run notification failed",
				zap.String("run_id", report.Meta.RunID),
				zap.Error(err),
			)
		}
	}()
}

func queryFlag(q url.Values, key string) bool {
	v := q.Get(key)
	return v == "1" || v == "true"
}

func queryInt(q url.Values, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryDurationMs(q url.Values, key string, def time.Duration) time.Duration {
	ms := queryInt(q, key, 0)
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
