package retry

import (
	"io"
	"net/http"
	"strings"
)

const maxErrorBodyBytes = 4 << 10

// closeToHTTPError drains a failed response into an HTTPError so the body
// text is available in logs and the connection can be reused.
func closeToHTTPError(r *http.Response) error {
	defer r.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBodyBytes))
	return &HTTPError{Status: r.StatusCode, Body: strings.TrimSpace(string(body))}
}
