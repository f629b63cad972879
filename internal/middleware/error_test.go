package middleware

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodeledger/nodeledger/internal/exception"
	"github.com/nodeledger/nodeledger/internal/logging"
	"github.com/nodeledger/nodeledger/internal/models"
)

func errorApp(err error) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.NewNop())})
	app.Get("/fail", func(c *fiber.Ctx) error { return err })
	return app
}

func doFail(t *testing.T, err error) (int, models.ErrorResponse) {
	t.Helper()
	resp, rerr := errorApp(err).Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, rerr)

	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestErrorHandler_ExceptionCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{exception.ComputeHostNotFound("fake"), fiber.StatusNotFound},
		{exception.ComputeNodeNotFound(1), fiber.StatusNotFound},
		{exception.ServiceNotFound(1), fiber.StatusNotFound},
		{exception.ValueConversion("vcpus", "x", nil), fiber.StatusBadRequest},
		{exception.ReadOnlyField("id"), fiber.StatusBadRequest},
		{exception.IncompatibleObjectVersion("ComputeNode", "2.0", "1.11"), fiber.StatusBadRequest},
		{exception.ObjectAction("create", "already created"), fiber.StatusConflict},
	}
	for _, tc := range cases {
		code := exception.CodeOf(tc.err)
		t.Run(code, func(t *testing.T) {
			status, body := doFail(t, tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, code, body.Error.Code)
			assert.Equal(t, "/fail", body.Error.Path)
		})
	}
}

func TestErrorHandler_WrappedException(t *testing.T) {
	status, body := doFail(t, errors.Join(errors.New("context"), exception.ComputeNodeNotFound(9)))
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, exception.CodeComputeNodeNotFound, body.Error.Code)
}

func TestErrorHandler_ValueConversionDetails(t *testing.T) {
	_, body := doFail(t, exception.ValueConversion("vcpus", "wrongtype", nil))
	assert.Equal(t, "vcpus", body.Error.Details["field"])
}

func TestErrorHandler_FiberError(t *testing.T) {
	status, body := doFail(t, fiber.NewError(fiber.StatusBadRequest, "bad version"))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "ERROR", body.Error.Code)
	assert.Equal(t, "bad version", body.Error.Message)
}

func TestErrorHandler_UnknownError(t *testing.T) {
	status, body := doFail(t, errors.New("boom"))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, "Internal Server Error", body.Error.Message)
}
