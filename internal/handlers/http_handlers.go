package handlers

import (
	"bytes"
	"html/template"
	"net/http"
	"strconv"

	"chest/internal/catalog"
	"chest/internal/models"
	"chest/internal/sequencer"
	"chest/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/google/uuid"
)

const (
	playerCookie = "chest_player"
	playerKey    = "playerID"
	cookieMaxAge = 365 * 24 * 60 * 60
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the session service.
type HTTPHandler struct {
	sessions  *services.SessionService
	templates *template.Template
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(sessions *services.SessionService, templates *template.Template) *HTTPHandler {
	return &HTTPHandler{
		sessions:  sessions,
		templates: templates,
	}
}

type stateResponse struct {
	Phase           models.Phase            `json:"phase"`
	Busy            bool                    `json:"busy"`
	HasExistingDraw bool                    `json:"hasExistingDraw"`
	Prize           *models.PrizeDefinition `json:"prize,omitempty"`
}

type prizeResponse struct {
	models.PrizeDefinition
	Probability float64 `json:"probability"`
}

// renderPage is a helper to perform a two-step template rendering.
// It first executes the content template into a buffer, then executes the main
// layout template, passing the rendered content as a variable.
func (h *HTTPHandler) renderPage(c *gin.Context, pageData gin.H, contentTmpl string) {
	buf := new(bytes.Buffer)
	err := h.templates.ExecuteTemplate(buf, contentTmpl, pageData)
	if err != nil {
		logger.Infof("Error executing content template %s: %v", contentTmpl, err)
		c.String(http.StatusInternalServerError, "Template rendering error")
		return
	}

	pageData["PageContent"] = template.HTML(buf.String())

	c.Header("Content-Type", "text/html; charset=utf-8")
	err = h.templates.ExecuteTemplate(c.Writer, "layout.html", pageData)
	if err != nil {
		logger.Infof("Error executing layout template: %v", err)
		c.String(http.StatusInternalServerError, "Template rendering error")
	}
}

// RegisterPublicRoutes registers routes that need no player identity.
func (h *HTTPHandler) RegisterPublicRoutes(router gin.IRoutes) {
	router.GET("/healthz", h.Health)
	router.GET("/prizes", h.ListPrizes)
}

// RegisterPlayerRoutes registers routes that act on the caller's session.
// They must run behind PlayerMiddleware.
func (h *HTTPHandler) RegisterPlayerRoutes(router gin.IRoutes) {
	router.GET("/", h.ShowChest)
	router.POST("/open", h.OpenChest)
	router.GET("/state", h.GetState)
	router.GET("/outcome", h.GetOutcome)
	router.GET("/events", h.StreamEvents)
}

// PlayerMiddleware identifies the browser by cookie, minting an id on first visit.
func (h *HTTPHandler) PlayerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, err := c.Cookie(playerCookie)
		if err != nil || uuid.Validate(playerID) != nil {
			playerID = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(playerCookie, playerID, cookieMaxAge, "/", "", false, true)
		}
		c.Set(playerKey, playerID)
		c.Next()
	}
}

func (h *HTTPHandler) session(c *gin.Context) *services.Session {
	return h.sessions.Get(c.Request.Context(), c.GetString(playerKey))
}

func (h *HTTPHandler) state(c *gin.Context, seq *sequencer.Sequencer) stateResponse {
	st := seq.Snapshot()
	return stateResponse{
		Phase:           st.Phase,
		Busy:            st.Busy,
		HasExistingDraw: seq.HasExistingDraw(c.Request.Context()),
		Prize:           st.Prize,
	}
}

// ShowChest renders the chest page. A truthy "reset" query parameter deletes
// the stored outcome before the session is built.
func (h *HTTPHandler) ShowChest(c *gin.Context) {
	playerID := c.GetString(playerKey)
	if reset, _ := strconv.ParseBool(c.Query("reset")); reset {
		if err := h.sessions.Reset(c.Request.Context(), playerID); err != nil {
			logger.Errorf("Error resetting player %s: %v", playerID, err)
			c.String(http.StatusInternalServerError, "Reset failed")
			return
		}
	}

	seq := h.session(c).Sequencer
	state := h.state(c, seq)
	data := gin.H{
		"title":       "Cofre de Navidad",
		"State":       state,
		"LegendaryID": catalog.LegendaryID,
		"Legendary":   state.Prize != nil && state.Prize.ID == catalog.LegendaryID,
	}
	h.renderPage(c, data, "chest.html")
}

// OpenChest triggers the opening sequence. Repeated calls are accepted but ignored.
func (h *HTTPHandler) OpenChest(c *gin.Context) {
	seq := h.session(c).Sequencer
	accepted := seq.Trigger(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"accepted": accepted,
		"state":    h.state(c, seq),
	})
}

// GetState returns the current phase of the caller's chest.
func (h *HTTPHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.state(c, h.session(c).Sequencer))
}

// GetOutcome returns the resolved prize, or 409 until the chest has settled.
func (h *HTTPHandler) GetOutcome(c *gin.Context) {
	prize, ok := h.session(c).Sequencer.Outcome()
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "chest has not settled"})
		return
	}
	c.JSON(http.StatusOK, prize)
}

// StreamEvents sends phase changes as server-sent events until the chest settles.
func (h *HTTPHandler) StreamEvents(c *gin.Context) {
	seq := h.session(c).Sequencer
	sub := seq.Subscribe()
	defer seq.Unsubscribe(sub)

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			c.SSEvent("phase", evt)
			c.Writer.Flush()
			if evt.Phase == models.PhaseSettled {
				return
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

// ListPrizes returns the catalog with each prize's draw probability.
func (h *HTTPHandler) ListPrizes(c *gin.Context) {
	cat := h.sessions.Catalog()
	prizes := cat.All()
	out := make([]prizeResponse, len(prizes))
	for i, p := range prizes {
		out[i] = prizeResponse{PrizeDefinition: p, Probability: cat.Probability(p.ID)}
	}
	c.JSON(http.StatusOK, out)
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
