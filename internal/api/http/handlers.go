package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/aggregator"
	"github.com/GriffinCanCode/aggregate-tabs/internal/domain/ranking"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/logging"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/aggregate-tabs/internal/infrastructure/options"
	"github.com/GriffinCanCode/aggregate-tabs/internal/shared/types"
)

// Version is reported by the root endpoint
const Version = "0.3.0"

// Engine is the part of the aggregation manager the API reads
type Engine interface {
	Stats(ctx context.Context) (aggregator.State, error)
	MainWindow(ctx context.Context, incognito bool) (types.Window, error)
}

// Windows lists the live browser windows
type Windows interface {
	ListWindows(ctx context.Context) ([]types.Window, error)
}

// Marks maintains the user's main window mark
type Marks interface {
	Marked(ctx context.Context) (types.WindowID, error)
	MarkMain(ctx context.Context, id types.WindowID) error
	UnmarkMain(ctx context.Context, id types.WindowID) error
}

// Options exposes the observable options
type Options interface {
	Snapshot() options.Options
	Set(key string, value interface{}) error
}

// Handlers contains all HTTP handlers
type Handlers struct {
	engine  Engine
	windows Windows
	marks   Marks
	options Options
	metrics *monitoring.Metrics
	logger  *logging.Logger
}

// NewHandlers creates a new handler set. metrics may be nil.
func NewHandlers(engine Engine, windows Windows, marks Marks, opts Options, metrics *monitoring.Metrics, logger *logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handlers{
		engine:  engine,
		windows: windows,
		marks:   marks,
		options: opts,
		metrics: metrics,
		logger:  logger.Named("api"),
	}
}

// Root reports the service identity
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "aggregate-tabs",
		"version": Version,
	})
}

// Health reports whether the engine is still processing events
func (h *Handlers) Health(c *gin.Context) {
	state, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"windows": state.Session.Windows,
		"tabs":    state.Session.Tabs,
	})
}

// State returns the engine's session statistics and decision counters
func (h *Handlers) State(c *gin.Context) {
	state, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, http.StatusServiceUnavailable, "failed to read engine state", err)
		return
	}
	body := gin.H{"engine": state}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}

// ListWindows lists the live windows together with the current main window
// of each privacy mode
func (h *Handlers) ListWindows(c *gin.Context) {
	ctx := c.Request.Context()

	windows, err := h.windows.ListWindows(ctx)
	if err != nil {
		h.fail(c, http.StatusBadGateway, "failed to list windows", err)
		return
	}
	marked, err := h.marks.Marked(ctx)
	if err != nil {
		h.fail(c, http.StatusInternalServerError, "failed to read main window mark", err)
		return
	}
	for i := range windows {
		windows[i].MarkedAsMain = windows[i].ID == marked
	}

	main := gin.H{}
	for _, incognito := range []bool{false, true} {
		w, err := h.engine.MainWindow(ctx, incognito)
		if errors.Is(err, ranking.ErrNoWindows) {
			continue
		}
		if err != nil {
			h.fail(c, http.StatusServiceUnavailable, "failed to resolve main window", err)
			return
		}
		main[privacy(incognito)] = w.ID
	}

	c.JSON(http.StatusOK, gin.H{
		"windows":     windows,
		"main_window": main,
		"marked":      marked,
	})
}

// MarkMain makes a window the main window until it is unmarked
func (h *Handlers) MarkMain(c *gin.Context) {
	ctx := c.Request.Context()
	id := types.WindowID(c.Param("id"))

	windows, err := h.windows.ListWindows(ctx)
	if err != nil {
		h.fail(c, http.StatusBadGateway, "failed to list windows", err)
		return
	}
	w, ok := types.FindWindow(windows, id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "window not found"})
		return
	}
	if w.Type != types.WindowNormal {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only normal windows can be the main window"})
		return
	}

	if err := h.marks.MarkMain(ctx, id); err != nil {
		h.fail(c, http.StatusInternalServerError, "failed to mark main window", err)
		return
	}
	h.logger.Info("Marked main window", zap.String("window_id", string(id)))
	c.JSON(http.StatusOK, gin.H{"marked": id})
}

// UnmarkMain clears the mark of a window
func (h *Handlers) UnmarkMain(c *gin.Context) {
	id := types.WindowID(c.Param("id"))
	if err := h.marks.UnmarkMain(c.Request.Context(), id); err != nil {
		h.fail(c, http.StatusInternalServerError, "failed to unmark main window", err)
		return
	}
	h.logger.Info("Unmarked main window", zap.String("window_id", string(id)))
	c.JSON(http.StatusOK, gin.H{"unmarked": id})
}

// GetOptions returns the current options snapshot
func (h *Handlers) GetOptions(c *gin.Context) {
	c.JSON(http.StatusOK, h.options.Snapshot())
}

// SetOptionRequest is the body of PUT /api/options/:key
type SetOptionRequest struct {
	Value interface{} `json:"value"`
}

// SetOption changes one option at runtime
func (h *Handlers) SetOption(c *gin.Context) {
	key, ok := knownKey(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown option"})
		return
	}

	var req SetOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.options.Set(key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("Option changed", zap.String("key", key))
	c.JSON(http.StatusOK, gin.H{"key": key, "value": req.Value})
}

// Metrics returns the decision counters as JSON
func (h *Handlers) Metrics(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "metrics disabled"})
		return
	}
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}

func (h *Handlers) fail(c *gin.Context, status int, msg string, err error) {
	if types.IsTransientMiss(err) {
		status = http.StatusNotFound
	}
	h.logger.Warn(msg, zap.Error(err), zap.String("path", c.FullPath()))
	c.JSON(status, gin.H{"error": msg})
}

func knownKey(name string) (string, bool) {
	for _, k := range options.Keys() {
		if strings.EqualFold(k, name) {
			return k, true
		}
	}
	return "", false
}

func privacy(incognito bool) string {
	if incognito {
		return "incognito"
	}
	return "normal"
}
