package unpaywall

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"searchmatic/config"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Response repräsentiert die JSON-Antwort der Unpaywall-API.
type Response struct {
	BestOALocation struct {
		URLForPDF   string `json:"url_for_pdf"`
		URLLandings string `json:"url_for_landing_page"`
	} `json:"best_oa_location"`
}

// Resolver kapselt die Logik für Unpaywall.
type Resolver struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewResolver erstellt einen neuen Unpaywall-Resolver.
func NewResolver(cfg *config.Config, logger *zap.Logger) *Resolver {
	return &Resolver{Config: cfg, Logger: logger}
}

// GetOALink holt einen freien Open-Access-Link via Unpaywall anhand der DOI.
func (r *Resolver) GetOALink(doi string) (string, error) {
	if r.Config.UnpaywallEmail == "" {
		return "", fmt.Errorf("unpaywall email ist nicht konfiguriert")
	}

	url := fmt.Sprintf("%s/%s?email=%s", r.Config.UnpaywallBaseURL, doi, r.Config.UnpaywallEmail)
	log := r.Logger.With(zap.String("doi", doi), zap.String("url", url))
	log.Debug("Rufe Unpaywall API auf.")

	resp, err := httpClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unpaywall request failed with status: %d", resp.StatusCode)
	}

	var ur Response
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", err
	}

	if ur.BestOALocation.URLForPDF != "" {
		log.Info("Open-Access-Link über Unpaywall gefunden.")
		return ur.BestOALocation.URLForPDF, nil
	}
	if ur.BestOALocation.URLLandings != "" {
		return ur.BestOALocation.URLLandings, nil
	}

	log.Debug("Kein Open-Access-Link in Unpaywall-Antwort gefunden.")
	return "", nil
}
