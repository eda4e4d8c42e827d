// Package site holds the public views of the hello application.
package site

import (
	"io"
	"net/http"
)

// Greeting is the body of the index page.
const Greeting = "Hello, World!"

// Index answers every method with the greeting. Headers and query strings do
// not change the response.
func Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, Greeting)
}
