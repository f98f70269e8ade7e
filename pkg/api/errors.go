package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/cortexhq/cortex/pkg/models"
	"github.com/cortexhq/cortex/pkg/store"
)

var errMissingStores = errors.New("api: queue and draft stores are required")

// mapStoreError maps store and model errors to HTTP error responses. Error
// text that could carry credentials never reaches the client; unexpected
// failures are logged server-side and surfaced as a generic 500.
func (s *Server) mapStoreError(err error) *echo.HTTPError {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, models.ErrInvalidTransition) {
		return echo.NewHTTPError(http.StatusConflict, "resource is not in a transitionable state")
	}
	if errors.Is(err, models.ErrInvalidArtifact) || errors.Is(err, models.ErrInvalidFeedback) {
		return echo.NewHTTPError(http.StatusBadRequest, s.maskText(err.Error()))
	}

	s.logger.Error("unexpected store error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// maskText scrubs credentials from user-visible text when a masker is wired.
func (s *Server) maskText(text string) string {
	if s.masker == nil {
		return text
	}
	return s.masker.MaskString(text)
}
