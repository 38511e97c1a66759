package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"iaicore/domain/audit"
	"iaicore/domain/core"
	"iaicore/domain/verdict"
	apperrors "iaicore/internal/errors"
	"iaicore/internal/report"
	"iaicore/ports"
)

// Server exposes the audit log read-only over HTTP. It has no write
// endpoints at all: the only way into the log is the orchestrator.
type Server struct {
	reader ports.AuditReaderPort
	router *gin.Engine
}

// NewServer builds the inspection API over an audit reader.
func NewServer(reader ports.AuditReaderPort, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	s := &Server{
		reader: reader,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.routes()
	return s
}

// Handler returns the http handler for mounting or testing.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on the given address until the listener fails.
func (s *Server) Run(addr string) error { return s.router.Run(addr) }

func (s *Server) routes() {
	api := s.router.Group("/api")
	api.GET("/runs/:run/generations", s.listGenerations)
	api.GET("/runs/:run/generations/:gen", s.getGeneration)
	api.GET("/runs/:run/invariants", s.invariantHistory)
	api.GET("/runs/:run/report", s.renderReport)
}

// generationSummary is the list-view projection of a record.
type generationSummary struct {
	Generation    core.Generation       `json:"generation"`
	Timestamp     core.Timestamp        `json:"timestamp"`
	ActiveVersion core.InvariantVersion `json:"active_version"`
	ResultVersion core.InvariantVersion `json:"result_version"`
	Proposals     int                   `json:"proposals"`
	Decisions     map[string]int        `json:"decisions"`
	Failure       string                `json:"failure,omitempty"`
}

func (s *Server) listGenerations(c *gin.Context) {
	records, ok := s.load(c)
	if !ok {
		return
	}
	summaries := make([]generationSummary, len(records))
	for i, rec := range records {
		decisions := make(map[string]int)
		for _, v := range rec.Verdicts {
			decisions[string(v.Decision)]++
		}
		summaries[i] = generationSummary{
			Generation:    rec.Generation,
			Timestamp:     rec.Timestamp,
			ActiveVersion: rec.ActiveVersion,
			ResultVersion: rec.ResultingSet.Version,
			Proposals:     len(rec.Proposals),
			Decisions:     decisions,
			Failure:       rec.Failure,
		}
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("run"), "generations": summaries})
}

func (s *Server) getGeneration(c *gin.Context) {
	records, ok := s.load(c)
	if !ok {
		return
	}
	gen, err := strconv.Atoi(c.Param("gen"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "generation must be an integer"})
		return
	}
	for _, rec := range records {
		if int(rec.Generation) == gen {
			c.JSON(http.StatusOK, rec)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "generation not logged"})
}

// invariantVersion is one entry in the revision history.
type invariantVersion struct {
	Version    core.InvariantVersion `json:"version"`
	Generation core.Generation       `json:"generation"`
	Thresholds map[string]float64    `json:"thresholds"`
	VerdictID  core.VerdictID        `json:"verdict_id,omitempty"`
	Decision   verdict.Decision      `json:"decision,omitempty"`
}

func (s *Server) invariantHistory(c *gin.Context) {
	records, ok := s.load(c)
	if !ok {
		return
	}
	var history []invariantVersion
	var lastVersion core.InvariantVersion = -1
	for _, rec := range records {
		set := rec.ResultingSet
		if set.Version == lastVersion {
			continue
		}
		entry := invariantVersion{
			Version:    set.Version,
			Generation: rec.Generation,
			Thresholds: set.Thresholds,
			VerdictID:  set.VerdictID,
		}
		for _, v := range rec.Verdicts {
			if v.ID == set.VerdictID {
				entry.Decision = v.Decision
			}
		}
		history = append(history, entry)
		lastVersion = set.Version
	}
	c.JSON(http.StatusOK, gin.H{"run_id": c.Param("run"), "versions": history})
}

func (s *Server) renderReport(c *gin.Context) {
	records, ok := s.load(c)
	if !ok {
		return
	}
	md := report.RunSummary(core.RunID(c.Param("run")), records)
	c.Data(http.StatusOK, "text/html; charset=utf-8", report.RenderHTML(md))
}

// load fetches the run's records and handles the empty-run response.
func (s *Server) load(c *gin.Context) ([]audit.Record, bool) {
	runID := core.RunID(c.Param("run"))
	records, err := s.reader.List(c.Request.Context(), runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "code": apperrors.GetCode(err)})
		return nil, false
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "run has no audit history"})
		return nil, false
	}
	return records, true
}
