package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"localanswer/pkg/config"
	"localanswer/rag"
)

// sessionStore hands out one Session per caller-supplied identifier so
// concurrent API clients keep separate conversational records.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*rag.Session
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: map[string]*rag.Session{}}
}

func (s *sessionStore) get(id string) *rag.Session {
	if id == "" {
		id = "default"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		sess = rag.NewSession()
		s.sessions[id] = sess
	}
	return sess
}

func startAPI(cfg *config.AppConfig, pipeline *rag.Pipeline, library *rag.Library) {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	sessions := newSessionStore()

	e.POST("/api/query", query(cfg, pipeline, sessions))
	e.GET("/api/history", history(sessions))
	e.GET("/api/documents", listDocuments(library))
	e.POST("/api/documents", uploadDocument(library, cfg.AssetDir))
	e.DELETE("/api/documents", removeDocument(library))
	e.POST("/api/sources/web", addWebSource(library))
	e.POST("/api/sources/sitemap", addSitemapSource(library))
	e.POST("/api/sources/git", addGitSource(library))
	e.POST("/api/reset", reset(library))

	e.Logger.Fatal(e.Start(cfg.ListenAddress))
}

func query(cfg *config.AppConfig, pipeline *rag.Pipeline, sessions *sessionStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		type request struct {
			Question  string   `json:"question"`
			Session   string   `json:"session"`
			TopK      int      `json:"top_k"`
			MinScore  *float64 `json:"min_score"`
			Summarize bool     `json:"summarize"`
		}

		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if r.Question == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("Question is required"))
		}
		if r.TopK == 0 {
			r.TopK = cfg.Retrieval.TopK
		}
		minScore := *cfg.Retrieval.MinScore
		if r.MinScore != nil {
			minScore = *r.MinScore
		}

		result, err := pipeline.Query(c.Request().Context(), sessions.get(r.Session), rag.QueryRequest{
			Question:  r.Question,
			TopK:      r.TopK,
			MinScore:  minScore,
			Summarize: r.Summarize,
		})
		if err != nil && !errors.Is(err, rag.ErrSummarize) {
			return c.JSON(http.StatusBadGateway, errorMessage(err.Error()))
		}

		return c.JSON(http.StatusOK, result)
	}
}

func history(sessions *sessionStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, sessions.get(c.QueryParam("session")).History())
	}
}

func listDocuments(library *rag.Library) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, library.ListDocuments())
	}
}

func uploadDocument(library *rag.Library, assetDir string) echo.HandlerFunc {
	return func(c echo.Context) error {
		file, err := c.FormFile("file")
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("File is required"))
		}

		src, err := file.Open()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to read upload"))
		}
		defer src.Close()

		tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(file.Filename))
		if err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to stage upload"))
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.ReadFrom(src); err != nil {
			tmp.Close()
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to stage upload"))
		}
		tmp.Close()

		// Stage under the original name so the tracked entry keeps it.
		staged := filepath.Join(filepath.Dir(tmp.Name()), file.Filename)
		if err := os.Rename(tmp.Name(), staged); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage("Failed to stage upload"))
		}
		defer os.Remove(staged)

		if err := library.AddFile(c.Request().Context(), staged); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}
		return c.JSON(http.StatusCreated, library.ListDocuments())
	}
}

func removeDocument(library *rag.Library) echo.HandlerFunc {
	return func(c echo.Context) error {
		type request struct {
			Entry string `json:"entry"`
		}
		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if err := library.RemoveEntry(c.Request().Context(), r.Entry); err != nil {
			return c.JSON(http.StatusNotFound, errorMessage(err.Error()))
		}
		return c.JSON(http.StatusOK, library.ListDocuments())
	}
}

func addWebSource(library *rag.Library) echo.HandlerFunc {
	return sourceHandler(library.AddWebPage)
}

func addSitemapSource(library *rag.Library) echo.HandlerFunc {
	return sourceHandler(library.AddSitemap)
}

func addGitSource(library *rag.Library) echo.HandlerFunc {
	return sourceHandler(library.AddGitRepository)
}

func sourceHandler(add func(ctx context.Context, url string) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		type request struct {
			URL string `json:"url"`
		}
		r := new(request)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if r.URL == "" {
			return c.JSON(http.StatusBadRequest, errorMessage("URL is required"))
		}
		if err := add(c.Request().Context(), r.URL); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}
		return c.JSON(http.StatusCreated, map[string]string{"status": "indexed"})
	}
}

func reset(library *rag.Library) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := library.Reset(); err != nil {
			return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
		}
		return c.NoContent(http.StatusNoContent)
	}
}

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}
