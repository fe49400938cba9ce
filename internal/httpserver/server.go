package httpserver

import (
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Zigurattt/Visual-Assistant-AI/internal/analysis"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/collection"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/config"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/i18n"
	"github.com/Zigurattt/Visual-Assistant-AI/internal/speech"
)

// Server bundles the HTTP router and the per-session service dependencies.
type Server struct {
	cfg        config.Config
	echo       *echo.Echo
	gateway    *analysis.Gateway
	recognizer speech.RecognizerFactory
	synth      speech.Synthesizer
	items      *collection.Store
}

// New constructs the HTTP server with routes.
func New(cfg config.Config) *Server {
	var gen analysis.Generator
	if g := analysis.NewGeminiGenerator(cfg.GeminiAPIKey, cfg.GeminiModelID); g != nil {
		gen = g
	}

	var synth speech.Synthesizer
	if d := speech.NewDeepgramSynthesizer(cfg.DeepgramKey, cfg.DeepgramVoiceModel); d != nil {
		synth = d
	}

	snaps, err := collection.NewSupabaseSnapshots(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
	if err != nil {
		log.Printf("supabase disabled: %v", err)
	}
	var snapshots collection.Snapshots
	if snaps != nil {
		snapshots = snaps
	}

	s := &Server{
		cfg:        cfg,
		gateway:    analysis.NewGateway(gen),
		recognizer: speech.NewAssemblyAIFactory(cfg.AssemblyAIKey),
		synth:      synth,
		items:      collection.NewStore(snapshots),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/languages", s.handleLanguages)
	e.GET("/collection", s.handleCollectionList)
	e.DELETE("/collection/:id", s.handleCollectionDelete)
	e.GET("/session", s.handleSession, s.authMiddleware())

	s.echo = e
	return s
}

// Router returns the handler to mount on an http.Server.
func (s *Server) Router() http.Handler { return s.echo }

// authMiddleware checks the session token from the Authorization header or
// the token query parameter. No token configured means open access.
func (s *Server) authMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.cfg.AuthToken == "" {
				return next(c)
			}
			token := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
			if token == "" {
				token = c.QueryParam("token")
			}
			if token != s.cfg.AuthToken {
				return c.String(http.StatusUnauthorized, "invalid session token")
			}
			return next(c)
		}
	}
}

func (s *Server) handleLanguages(c echo.Context) error {
	type language struct {
		Tag  string `json:"tag"`
		Name string `json:"name"`
	}
	out := make([]language, 0, 3)
	for _, tag := range i18n.Tags() {
		out = append(out, language{Tag: tag, Name: i18n.LanguageName(tag)})
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleCollectionList(c echo.Context) error {
	return c.JSON(http.StatusOK, s.items.Items())
}

func (s *Server) handleCollectionDelete(c echo.Context) error {
	if !s.items.Remove(c.Param("id")) {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}
