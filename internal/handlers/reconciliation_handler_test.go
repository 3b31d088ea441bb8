package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"invoice-reconciliation-backend/internal/apperrors"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	h := &ReconciliationHandler{log: log}

	cases := []struct {
		kind   apperrors.Kind
		status int
	}{
		{apperrors.KindValidation, http.StatusBadRequest},
		{apperrors.KindCurrencyMismatch, http.StatusUnprocessableEntity},
		{apperrors.KindNotFound, http.StatusNotFound},
		{apperrors.KindInvalidState, http.StatusConflict},
		{apperrors.KindExternalWriteBack, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		h.respondError(c, apperrors.New(tc.kind, "boom"))
		assert.Equal(t, tc.status, w.Code, "kind %s", tc.kind)
	}
}

func TestRespondErrorWriteBackMarksPending(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	h := &ReconciliationHandler{log: log}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.respondError(c, apperrors.New(apperrors.KindExternalWriteBack, "provider down"))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"reconciliation_pending"`)
}

func TestRespondErrorHidesInternalDetails(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	h := &ReconciliationHandler{log: log}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	h.respondError(c, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
