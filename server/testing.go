/*
	This file contains functions useful for testing voxeld in other
	packages.  Unfortunately, due to the way Go handles compilation of
	*_test.go files, these functions cannot be in web_test.go since they
	would be unavailable to test files in external packages.  So these
	functions are exported and contain the "Test" keyword.
*/

package server

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// OpenTest initializes server state against the given resource directory
// with no shutdown delay.
func OpenTest(resourceDir string) error {
	tc.setDefaults()
	tc.Server.ShutdownDelay = 0
	tc.Server.ResourceDir = resourceDir
	return Initialize()
}

// CloseTest releases server state set up by OpenTest.
func CloseTest() {
	Shutdown()
}

// TestHTTPResponse returns a response from a test request against the
// voxeld mux.  Use TestHTTP if you just want the response body bytes.
func TestHTTPResponse(t *testing.T, method, urlStr string, payload io.Reader) *httptest.ResponseRecorder {
	req, err := http.NewRequest(method, urlStr, payload)
	if err != nil {
		t.Fatalf("Unsuccessful %s on %q: %v\n", method, urlStr, err)
	}
	resp := httptest.NewRecorder()
	ServeSingleHTTP(resp, req)
	return resp
}

// TestHTTP returns the response body bytes for a test request, making sure
// any response has status OK.
func TestHTTP(t *testing.T, method, urlStr string, payload io.Reader) []byte {
	resp := TestHTTPResponse(t, method, urlStr, payload)
	if resp.Code != http.StatusOK {
		t.Fatalf("Bad server response (%d) to %s on %q: %s\n", resp.Code, method, urlStr, resp.Body.String())
	}
	return resp.Body.Bytes()
}

// TestBadHTTP expects a HTTP response with an error status code.
func TestBadHTTP(t *testing.T, method, urlStr string, payload io.Reader) {
	resp := TestHTTPResponse(t, method, urlStr, payload)
	if resp.Code == http.StatusOK {
		t.Fatalf("Expected bad server response to %s on %q, got %d instead.\n", method, urlStr, resp.Code)
	}
}
