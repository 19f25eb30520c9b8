package unpaywall

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"searchmatic/config"
)

func newTestResolver(url string) *Resolver {
	return NewResolver(&config.Config{
		UnpaywallBaseURL: url,
		UnpaywallEmail:   "dev@searchmatic.test",
	}, zap.NewNop())
}

func TestGetOALinkPrefersPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"best_oa_location":{"url_for_pdf":"https://oa.test/paper.pdf","url_for_landing_page":"https://oa.test/paper"}}`)
	}))
	defer srv.Close()

	link, err := newTestResolver(srv.URL).GetOALink("10.1000/test")
	if err != nil {
		t.Fatalf("GetOALink: %v", err)
	}
	if link != "https://oa.test/paper.pdf" {
		t.Errorf("link = %q, expected pdf url", link)
	}
}

func TestGetOALinkFallsBackToLandingPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"best_oa_location":{"url_for_landing_page":"https://oa.test/paper"}}`)
	}))
	defer srv.Close()

	link, err := newTestResolver(srv.URL).GetOALink("10.1000/test")
	if err != nil {
		t.Fatalf("GetOALink: %v", err)
	}
	if link != "https://oa.test/paper" {
		t.Errorf("link = %q, expected landing page", link)
	}
}

func TestGetOALinkNoLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"best_oa_location":{}}`)
	}))
	defer srv.Close()

	link, err := newTestResolver(srv.URL).GetOALink("10.1000/test")
	if err != nil {
		t.Fatalf("GetOALink: %v", err)
	}
	if link != "" {
		t.Errorf("expected empty link, got %q", link)
	}
}

func TestGetOALinkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := newTestResolver(srv.URL).GetOALink("10.1000/missing"); err == nil {
		t.Error("expected error on non-200 response")
	}

	resolver := NewResolver(&config.Config{UnpaywallBaseURL: srv.URL}, zap.NewNop())
	if _, err := resolver.GetOALink("10.1000/test"); err == nil {
		t.Error("expected error when email is not configured")
	}
}
