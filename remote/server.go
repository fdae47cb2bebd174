package remote

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/sestako/eunio-app-sub009/store"
)

// Server is the self-hosted sync backend: the authoritative remote copy of
// every user's preference document, served over the same JSON protocol
// HTTPStore speaks.
type Server struct {
	echoServer *echo.Echo
	driver     store.Driver
	token      string
	logger     *slog.Logger
}

// NewServer creates a sync server over the given driver. An empty token
// disables authentication (dev mode only).
func NewServer(driver store.Driver, token string, logger *slog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echoServer: e,
		driver:     driver,
		token:      token,
		logger:     logger,
	}

	g := e.Group("/api/v1", s.authMiddleware)
	g.GET("/preferences/:userID", s.getPreferences)
	g.PUT("/preferences/:userID", s.putPreferences)
	g.GET("/users/:userID/backups/latest", s.getLatestBackup)

	return s
}

// Echo exposes the underlying echo instance for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echoServer
}

// Start blocks serving on addr.
func (s *Server) Start(addr string) error {
	s.logger.Info("sync server listening", slog.String("addr", addr))
	return s.echoServer.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echoServer.Shutdown(ctx)
}

func (s *Server) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.token == "" {
			return next(c)
		}
		if c.Request().Header.Get("Authorization") != "Bearer "+s.token {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
		return next(c)
	}
}

func (s *Server) getPreferences(c echo.Context) error {
	userID := c.Param("userID")
	doc, err := s.driver.GetPreferenceDocument(c.Request().Context(), &store.FindPreferenceDocument{UserID: &userID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load document")
	}
	if doc == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no document")
	}
	return c.JSON(http.StatusOK, doc)
}

func (s *Server) putPreferences(c echo.Context) error {
	userID := c.Param("userID")

	doc := &store.PreferenceDocument{}
	if err := c.Bind(doc); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed document")
	}
	if doc.UserID != userID {
		return echo.NewHTTPError(http.StatusBadRequest, "user mismatch")
	}
	if err := doc.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	existing, err := s.driver.GetPreferenceDocument(ctx, &store.FindPreferenceDocument{UserID: &userID})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load document")
	}
	// A push that is older than the server copy on both ordering axes is
	// stale; the device must pull and resolve first.
	if existing != nil && existing.LastModified > doc.LastModified && existing.Revision >= doc.Revision {
		return echo.NewHTTPError(http.StatusConflict,
			fmt.Sprintf("stale push: server has lastModified=%d", existing.LastModified))
	}

	doc.SyncStatus = store.SyncStatusSynced
	if _, err := s.driver.UpsertPreferenceDocument(ctx, doc); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to save document")
	}

	s.logger.Debug("document pushed",
		slog.String("user_id", userID),
		slog.Int64("last_modified", doc.LastModified))
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getLatestBackup(c echo.Context) error {
	userID := c.Param("userID")
	limit := 1
	records, err := s.driver.ListBackupRecords(c.Request().Context(), &store.FindBackupRecord{
		UserID: &userID,
		Limit:  &limit,
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list backups")
	}
	if len(records) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no backups")
	}
	return c.Blob(http.StatusOK, "application/json", records[0].Payload)
}
