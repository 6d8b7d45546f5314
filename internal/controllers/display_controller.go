package controllers

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"waterheater-panel/internal/display"
	"waterheater-panel/internal/models"
	"waterheater-panel/pkg/middleware"
	"waterheater-panel/pkg/utils"
)

const (
	defaultEventLimit = 20
	maxEventLimit     = 200
)

var errNoJournal = errors.New("event journal is not configured")

// EventLister reads back the event journal.
type EventLister interface {
	ListRecent(ctx context.Context, limit int64) ([]models.EventRecord, error)
}

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

type DisplayController struct {
	doc     display.Document
	journal EventLister
	title   string

	checkNames []string
	checks     map[string]Check
}

// NewDisplayController serves doc read-only. journal may be nil.
func NewDisplayController(doc display.Document, journal EventLister, title string) *DisplayController {
	return &DisplayController{
		doc:     doc,
		journal: journal,
		title:   title,
		checks:  make(map[string]Check),
	}
}

// AddCheck registers a readiness check reported by /ready under name.
func (c *DisplayController) AddCheck(name string, check Check) {
	if _, ok := c.checks[name]; !ok {
		c.checkNames = append(c.checkNames, name)
	}
	c.checks[name] = check
}

// RegisterRoutes mounts the page, the health endpoints and the /api group.
// apiMiddleware guards the /api group only.
func (c *DisplayController) RegisterRoutes(router *gin.Engine, apiMiddleware ...gin.HandlerFunc) {
	router.SetHTMLTemplate(pageTemplate)
	router.GET("/", c.Index)
	router.GET("/health", c.Health)
	router.GET("/ready", c.Ready)

	api := router.Group("/api", apiMiddleware...)
	{
		api.GET("/elements", c.ListElements)
		api.GET("/elements/:id", c.GetElement)
		api.GET("/events", c.ListEvents)
	}
}

// Index renders the control page.
func (c *DisplayController) Index(ctx *gin.Context) {
	elements, err := c.doc.Snapshot(ctx.Request.Context())
	if err != nil {
		ctx.String(http.StatusInternalServerError, "display unavailable: %v", err)
		return
	}
	byID := make(map[string]display.Element, len(elements))
	for _, e := range elements {
		byID[e.ID] = e
	}
	ctx.HTML(http.StatusOK, "index", gin.H{
		"Title":       c.title,
		"Result":      byID[display.ResultElement],
		"Temperature": byID[display.CurrentTemperatureElement],
	})
}

func (c *DisplayController) ListElements(ctx *gin.Context) {
	elements, err := c.doc.Snapshot(ctx.Request.Context())
	if err != nil {
		utils.RespondWithError(ctx, http.StatusInternalServerError, err.Error())
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"elements": elements})
}

func (c *DisplayController) GetElement(ctx *gin.Context) {
	e, err := c.doc.Element(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		utils.RespondWithError(ctx, utils.StatusForError(err, display.ErrElementNotFound), err.Error())
		return
	}
	ctx.JSON(http.StatusOK, e)
}

// ListEvents returns the most recent journalled frames, newest first.
func (c *DisplayController) ListEvents(ctx *gin.Context) {
	if c.journal == nil {
		utils.RespondWithError(ctx, http.StatusNotFound, errNoJournal.Error())
		return
	}
	limit, err := utils.ClampLimit(ctx.Query("limit"), defaultEventLimit, maxEventLimit)
	if err != nil {
		utils.RespondWithError(ctx, http.StatusBadRequest, err.Error())
		return
	}
	records, err := c.journal.ListRecent(ctx.Request.Context(), limit)
	if err != nil {
		utils.RespondWithError(ctx, http.StatusInternalServerError, err.Error())
		return
	}
	entry := log.Debug().Int64("limit", limit).Int("returned", len(records))
	if clientID, err := utils.GetClientIDFromContext(ctx, middleware.ClientIDKey); err == nil {
		entry = entry.Str("client_id", clientID)
	}
	entry.Msg("event journal read")

	ctx.JSON(http.StatusOK, gin.H{"events": records, "limit": limit})
}

func (c *DisplayController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every registered check with a short deadline.
func (c *DisplayController) Ready(ctx *gin.Context) {
	checkCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	status := gin.H{"status": "ready"}
	code := http.StatusOK

	names := append([]string(nil), c.checkNames...)
	sort.Strings(names)
	for _, name := range names {
		if err := c.checks[name](checkCtx); err != nil {
			status[name] = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		status[name] = "available"
	}
	if code != http.StatusOK {
		status["status"] = "unavailable"
	}
	ctx.JSON(code, status)
}

var pageTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return humanize.Time(t)
	},
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta http-equiv="refresh" content="2">
<title>{{.Title}}</title>
</head>
<body>
<h1>{{.Title}}</h1>
<p id="result">{{.Result.Text}}</p>
<small>updated {{ago .Result.UpdatedAt}}</small>
<label for="currentTemperature">Current temperature</label>
<input id="currentTemperature" type="number" value="{{.Temperature.Value}}" readonly>
<small>updated {{ago .Temperature.UpdatedAt}}</small>
</body>
</html>
`))
