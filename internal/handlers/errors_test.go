package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/credgate/credgate/internal/services"
)

func TestRespondServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{services.ErrUnknownProvider, http.StatusBadRequest, "invalid_request"},
		{services.ErrInvalidOrExpiredState, http.StatusBadRequest, "invalid_request"},
		{services.ErrTokenExchangeFailed, http.StatusBadGateway, "exchange_failed"},
		{services.ErrCredentialNotFound, http.StatusNotFound, "not_found"},
		{services.ErrNotOwner, http.StatusNotFound, "not_found"},
		{services.ErrGrantNotFound, http.StatusNotFound, "not_found"},
		{services.ErrAgentNotFound, http.StatusNotFound, "not_found"},
		{services.ErrNotAuthorized, http.StatusForbidden, "not_permitted"},
		{services.ErrScopeNotGranted, http.StatusForbidden, "scope_not_granted"},
		{services.ErrCredentialRevoked, http.StatusForbidden, "credential_revoked"},
		{services.ErrCredentialNeedsReauth, http.StatusConflict, "credential_needs_reauth"},
		{services.ErrVaultUnavailable, http.StatusServiceUnavailable, "vault_unavailable"},
		{errors.New("surprise"), http.StatusInternalServerError, "server_error"},
	}

	for _, tc := range cases {
		t.Run(tc.wantCode+"/"+tc.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondServiceError(c, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tc.wantCode)
		})
	}
}

func TestRespondServiceErrorWrappedErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	// Services wrap sentinels with context; the mapping must still hold
	respondServiceError(c, errors.Join(errors.New("scope repo"), services.ErrScopeNotGranted))

	assert.Equal(t, http.StatusForbidden, w.Code)
}
