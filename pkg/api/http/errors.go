package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aescanero/periphery/pkg/domain"
)

// Error codes carried in ErrorDetail.Code
const (
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeInvalidArtifact       = "INVALID_ARTIFACT"
	CodeMissingAddress        = "MISSING_ADDRESS"
	CodeDuplicateRegistration = "DUPLICATE_REGISTRATION"
	CodeClusterClosed         = "CLUSTER_CLOSED"
	CodeNotFound              = "NOT_FOUND"
	CodeTransport             = "TRANSPORT_ERROR"
	CodeInternal              = "INTERNAL_ERROR"
)

var codes = []struct {
	err    error
	status int
	code   string
}{
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound},
	{domain.ErrMissingAddress, http.StatusBadRequest, CodeMissingAddress},
	{domain.ErrInvalidArtifact, http.StatusBadRequest, CodeInvalidArtifact},
	{domain.ErrInvalidConfig, http.StatusBadRequest, CodeInvalidRequest},
	{domain.ErrDuplicateRegistration, http.StatusConflict, CodeDuplicateRegistration},
	{domain.ErrClusterClosed, http.StatusConflict, CodeClusterClosed},
	{domain.ErrTransport, http.StatusBadGateway, CodeTransport},
	{domain.ErrInternal, http.StatusInternalServerError, CodeInternal},
}

// StatusFor maps an error to its HTTP status and error code
func StatusFor(err error) (int, string) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.status, c.code
		}
	}
	return http.StatusInternalServerError, CodeInternal
}

// ErrorFor rebuilds the sentinel error of a decoded error response
func ErrorFor(detail ErrorDetail) error {
	for _, c := range codes {
		if c.code == detail.Code {
			return fmt.Errorf("%w: %s", c.err, detail.Message)
		}
	}
	return fmt.Errorf("%w: %s: %s", domain.ErrTransport, detail.Code, detail.Message)
}
