package errors_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infraerrors "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/errors"
)

func response(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		code      int
		body      string
		wantNil   bool
		wantMsg   string
		temporary bool
	}{
		{name: "success", code: http.StatusOK, body: "{}", wantNil: true},
		{name: "string error", code: http.StatusBadRequest, body: `{"error":"bad model"}`, wantMsg: "bad model"},
		{name: "nested error", code: http.StatusTooManyRequests, body: `{"error":{"message":"slow down","type":"rate_limit"}}`, wantMsg: "slow down", temporary: true},
		{name: "message field", code: http.StatusNotFound, body: `{"message":"no such route"}`, wantMsg: "no such route"},
		{name: "json api", code: http.StatusUnprocessableEntity, body: `{"errors":[{"title":"invalid","detail":"price"},{"title":"missing"}]}`, wantMsg: "invalid: price; missing"},
		{name: "plain text", code: http.StatusBadGateway, body: "upstream down\n", wantMsg: "upstream down", temporary: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := infraerrors.ParseHTTPError(response(tt.code, tt.body))
			if tt.wantNil {
				assert.NoError(t, err)
				return
			}

			var httpErr *infraerrors.HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.True(t, infraerrors.IsHTTPError(err))
			assert.Equal(t, tt.code, httpErr.StatusCode)
			assert.Equal(t, tt.wantMsg, httpErr.Message)
			assert.Equal(t, tt.temporary, httpErr.Temporary())
		})
	}
}
