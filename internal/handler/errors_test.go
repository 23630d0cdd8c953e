package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
)

func TestFailFromService(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"validation", fmt.Errorf("start: %w", &service.ValidationError{Fields: map[string]string{"duration_minutes": "must be positive"}}), http.StatusBadRequest, response.ErrValidation},
		{"session", &service.NotFoundError{Resource: "session", ID: "x"}, http.StatusNotFound, response.ErrSessionNotFound},
		{"subject", &service.NotFoundError{Resource: "subject", ID: "1"}, http.StatusNotFound, response.ErrSubjectNotFound},
		{"other resource", &service.NotFoundError{Resource: "paper", ID: "1"}, http.StatusNotFound, response.ErrNotFound},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, response.ErrNotSessionOwner},
		{"expired", fmt.Errorf("submit: %w", service.ErrSessionExpired), http.StatusConflict, response.ErrSessionExpired},
		{"storage", fmt.Errorf("%w: get session: %w", service.ErrStorage, errors.New("conn refused")), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			failFromService(c, zerolog.Nop(), tt.err, response.ErrNotSessionOwner)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var env envelope
			if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
				t.Fatal(err)
			}
			if env.code() != string(tt.wantCode) {
				t.Errorf("code = %s, want %s", env.code(), tt.wantCode)
			}
			if strings.Contains(w.Body.String(), "conn refused") {
				t.Errorf("response leaked the storage cause: %s", w.Body.String())
			}
			if errorCode(tt.err) != tt.wantCode {
				t.Errorf("errorCode = %s, want %s", errorCode(tt.err), tt.wantCode)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
	}{
		{"no checks", nil, http.StatusOK},
		{"all up", map[string]HealthCheck{"postgres": func(context.Context) error { return nil }}, http.StatusOK},
		{"redis down", map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
		}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.checks, zerolog.Nop())
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

			h.Health(c)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
