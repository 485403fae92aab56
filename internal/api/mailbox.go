package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/abyssox/opentrashmail/internal/mailbox"
	"github.com/abyssox/opentrashmail/internal/pathsafe"
	"github.com/abyssox/opentrashmail/internal/recipient"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func jsonError(c echo.Context, code int, msg string) error {
	return c.JSON(code, errorResponse{Error: msg})
}

// emailParam returns the trimmed :email parameter when it is a valid address.
func emailParam(c echo.Context) (string, bool) {
	email := strings.TrimSpace(c.Param("email"))
	if unescaped, err := url.PathUnescape(email); err == nil {
		email = unescaped
	}
	return email, recipient.ValidAddress(email)
}

// storeError maps store errors onto responses.
func (s *Server) storeError(c echo.Context, err error, notFound string) error {
	switch {
	case errors.Is(err, mailbox.ErrNotFound):
		return jsonError(c, http.StatusNotFound, notFound)
	case errors.Is(err, mailbox.ErrInvalidID):
		return jsonError(c, http.StatusBadRequest, "Invalid ID")
	case errors.Is(err, pathsafe.ErrUnsafePath):
		s.logger.Warn("unsafe path blocked", slog.String("uri", c.Request().RequestURI), slog.String("error", err.Error()))
		return jsonError(c, http.StatusBadRequest, "Invalid path")
	default:
		s.logger.Error("mailbox access failed", slog.String("uri", c.Request().RequestURI), slog.String("error", err.Error()))
		return jsonError(c, http.StatusInternalServerError, "Internal Server Error")
	}
}

func (s *Server) listAccounts(c echo.Context) error {
	if !s.cfg.ShowAccountList {
		return jsonError(c, http.StatusForbidden, "403 Forbidden")
	}
	if s.cfg.AdminPassword != "" {
		given := c.FormValue("password")
		if subtle.ConstantTimeCompare([]byte(given), []byte(s.cfg.AdminPassword)) != 1 {
			return jsonError(c, http.StatusForbidden, "403 Forbidden")
		}
	}

	addrs, err := s.store.Addresses()
	if err != nil {
		return s.storeError(c, err, "Not Found")
	}
	return c.JSON(http.StatusOK, addrs)
}

func (s *Server) listMailbox(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusNotFound, "Email not found")
	}
	list, err := s.store.List(email, true)
	if err != nil {
		return s.storeError(c, err, "Email not found")
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) getRecord(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusNotFound, "Email not found")
	}
	rec, err := s.store.Get(email, c.Param("id"))
	if err != nil {
		return s.storeError(c, err, "Email ID not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) getRaw(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "Invalid email address")
	}
	rec, err := s.store.Get(email, c.Param("id"))
	if err != nil {
		return s.storeError(c, err, "Email not found")
	}
	return c.Blob(http.StatusOK, "text/plain; charset=UTF-8", []byte(rec.Raw))
}

func (s *Server) getRawHTML(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "Invalid email address")
	}
	rec, err := s.store.Get(email, c.Param("id"))
	if err != nil {
		return s.storeError(c, err, "Email not found")
	}
	return c.HTML(http.StatusOK, rec.Parsed.HTMLBody)
}

func (s *Server) getAttachment(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "Invalid email address")
	}
	path, err := s.store.AttachmentPath(email, c.Param("attachment"))
	if err != nil {
		return s.storeError(c, err, "Attachment not found")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s.storeError(c, err, "Attachment not found")
	}

	name := filepath.Base(path)
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="`+url.PathEscape(name)+`"`)
	return c.Blob(http.StatusOK, http.DetectContentType(data), data)
}

func (s *Server) deleteMessage(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "Invalid email address")
	}
	if err := s.store.DeleteMessage(email, c.Param("id")); err != nil {
		return s.storeError(c, err, "Email not found")
	}
	s.logger.Info("message deleted", slog.String("rcpt", email), slog.String("id", c.Param("id")))
	return c.JSON(http.StatusOK, statusResponse{Success: true, Message: "Email deleted"})
}

func (s *Server) deleteAccount(c echo.Context) error {
	email, ok := emailParam(c)
	if !ok {
		return jsonError(c, http.StatusBadRequest, "Invalid email address")
	}
	err := s.store.DeleteMailbox(email)
	if err != nil && !errors.Is(err, mailbox.ErrNotFound) {
		return s.storeError(c, err, "Email not found")
	}
	s.logger.Info("mailbox deleted", slog.String("rcpt", email))
	return c.JSON(http.StatusOK, statusResponse{Success: true, Message: "Account deleted"})
}
