package api

import (
	"context"
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"roundtable/internal/directory"
	"roundtable/internal/models"
	"roundtable/internal/service/round"
	"roundtable/internal/storage"
	"roundtable/internal/worker"
)

// RoundGenerator runs one generation; *worker.Manager satisfies it.
type RoundGenerator interface {
	Generate(ctx context.Context, req models.RoundRequest) (models.Round, error)
}

// RoundLog persists generation metadata; *storage.RoundLog satisfies it.
type RoundLog interface {
	Record(ctx context.Context, rec models.RoundRecord) (models.RoundRecord, error)
	Recent(ctx context.Context, tableID string, limit int) ([]models.RoundRecord, error)
}

type statsReporter interface {
	Stats() worker.Stats
}

var (
	//go:embed table.html.tmpl
	tablePage     string
	tablePageTmpl = template.Must(template.New("page").Parse(tablePage))
)

// Handler wires HTTP routes to the round pipeline and the persona directory.
type Handler struct {
	directory *directory.Directory
	rounds    RoundGenerator
	roundLog  RoundLog
	appTitle  string
	logger    *slog.Logger
}

// NewHandler constructs a Handler instance. roundLog may be nil.
func NewHandler(dir *directory.Directory, rounds RoundGenerator, roundLog RoundLog, appTitle string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		directory: dir,
		rounds:    rounds,
		roundLog:  roundLog,
		appTitle:  appTitle,
		logger:    logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(tablePageTmpl)
	router.GET("/healthz", h.health)
	router.GET("/tables/:tableId", h.tablePage)

	api := router.Group("/api")
	api.POST("/generate", h.generateRound)
	api.GET("/tables", h.listTables)
	api.GET("/tables/:tableId", h.getTable)
	api.GET("/tables/:tableId/rounds", h.listRounds)
}

func (h *Handler) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if sr, ok := h.rounds.(statsReporter); ok {
		body["rounds"] = sr.Stats()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) generateRound(c *gin.Context) {
	var req models.RoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	started := time.Now()
	rnd, err := h.rounds.Generate(c.Request.Context(), req)
	latency := time.Since(started)
	if err != nil {
		status, outcome := h.writeRoundError(c, req.TableID, err)
		h.record(c.Request.Context(), models.RoundRecord{
			TableID:   req.TableID,
			Outcome:   outcome,
			Status:    status,
			LatencyMS: latency.Milliseconds(),
		})
		return
	}

	h.logger.Info("round generated",
		"table", req.TableID,
		"latency_ms", latency.Milliseconds(),
		"messages", len(rnd.Messages),
		"participants", len(req.Participants))
	h.record(c.Request.Context(), models.RoundRecord{
		TableID:      req.TableID,
		Topic:        rnd.Topic,
		MessageCount: len(rnd.Messages),
		Outcome:      storage.OutcomeOK,
		Status:       http.StatusOK,
		LatencyMS:    latency.Milliseconds(),
	})
	c.JSON(http.StatusOK, rnd)
}

// writeRoundError maps err to a response and returns the status and the
// outcome recorded in the round log.
func (h *Handler) writeRoundError(c *gin.Context, tableID string, err error) (int, string) {
	switch {
	case errors.Is(err, worker.ErrTableBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "table is already generating a round"})
		return http.StatusConflict, "table_busy"
	case errors.Is(err, worker.ErrDispatcherBusy):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		return http.StatusTooManyRequests, "queue_full"
	case errors.Is(err, worker.ErrStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return http.StatusServiceUnavailable, "stopped"
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads the body
		c.Status(499)
		return 499, "canceled"
	}

	rerr := round.AsError(err)
	status := rerr.HTTPStatus()
	body := gin.H{"error": rerr.Message}
	if rerr.Details != "" {
		body["details"] = rerr.Details
	}
	switch rerr.Kind {
	case round.KindUnexpected, round.KindConfiguration:
		h.logger.Error("round generation failed", "table", tableID, "kind", rerr.Kind, "error", err)
	default:
		h.logger.Warn("round generation failed", "table", tableID, "kind", rerr.Kind, "status", status)
	}
	c.JSON(status, body)
	return status, string(rerr.Kind)
}

func (h *Handler) record(ctx context.Context, rec models.RoundRecord) {
	if h.roundLog == nil || rec.TableID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if _, err := h.roundLog.Record(ctx, rec); err != nil {
		h.logger.Warn("record round failed", "table", rec.TableID, "error", err)
	}
}

type tableResponse struct {
	ID           string               `json:"id"`
	Number       int                  `json:"number"`
	NumberLabel  string               `json:"number_label"`
	Title        string               `json:"title"`
	Theme        string               `json:"theme"`
	Summary      string               `json:"summary"`
	Vibe         string               `json:"vibe"`
	Seats        int                  `json:"seats"`
	SeatLabel    string               `json:"seat_label"`
	Participants []models.Participant `json:"participants"`
}

func newTableResponse(t models.Table) tableResponse {
	return tableResponse{
		ID:           t.ID,
		Number:       t.Number,
		NumberLabel:  directory.FormatNumber(t.Number),
		Title:        t.Title,
		Theme:        t.Theme,
		Summary:      t.Summary,
		Vibe:         t.Vibe,
		Seats:        t.SeatCount(),
		SeatLabel:    directory.SeatLabel(t),
		Participants: t.Participants,
	}
}

func (h *Handler) listTables(c *gin.Context) {
	tables := h.directory.Tables()
	out := make([]tableResponse, 0, len(tables))
	for _, t := range tables {
		out = append(out, newTableResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"tables": out})
}

func (h *Handler) getTable(c *gin.Context) {
	t, ok := h.resolveTable(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newTableResponse(t))
}

func (h *Handler) listRounds(c *gin.Context) {
	t, ok := h.resolveTable(c)
	if !ok {
		return
	}
	limit := storage.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	if h.roundLog == nil {
		c.JSON(http.StatusOK, gin.H{"rounds": []models.RoundRecord{}})
		return
	}
	records, err := h.roundLog.Recent(c.Request.Context(), t.ID, limit)
	if err != nil {
		h.logger.Error("list rounds failed", "table", t.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rounds"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rounds": records})
}

func (h *Handler) resolveTable(c *gin.Context) (models.Table, bool) {
	t, err := h.directory.Resolve(c.Param("tableId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "table not found"})
		return models.Table{}, false
	}
	return t, true
}

type tablePageData struct {
	AppTitle string
	Slug     string
	Found    bool
	Table    models.Table
	Number   string
	Seats    string
}

func (h *Handler) tablePage(c *gin.Context) {
	slug := c.Param("tableId")
	data := tablePageData{AppTitle: h.appTitle, Slug: slug}
	status := http.StatusOK
	if t, err := h.directory.Resolve(slug); err == nil {
		data.Found = true
		data.Table = t
		data.Number = directory.FormatNumber(t.Number)
		data.Seats = directory.SeatLabel(t)
	} else {
		status = http.StatusNotFound
	}
	c.HTML(status, "table", data)
}
