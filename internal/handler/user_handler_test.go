package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestUserHandlerListRejectsUnknownRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewUserHandler(nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/users?role=ROOT", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUserHandlerCreateMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewUserHandler(nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(`{`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStudentHandlerListRejectsUnknownCategory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewStudentHandler(nil)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/students?category=INFANT", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
