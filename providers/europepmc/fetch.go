package europepmc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"searchmatic/config"
	"searchmatic/models"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher implementiert das Provider-Interface für Europe PMC.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen Europe PMC Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "europepmc"
}

// Search führt die Suche auf Europe PMC aus.
func (f *Fetcher) Search(term string) ([]*models.Study, error) {
	log := f.Logger.With(zap.String("term", term))
	log.Info("Starte Suche auf Europe PMC.")

	searchURL := fmt.Sprintf("%s/search?query=%s&format=json&resultType=core",
		f.Config.EuropePMCBaseURL, url.QueryEscape(term))
	log.Debug("Rufe Europe PMC API auf", zap.String("url", searchURL))

	resp, err := httpClient.Get(searchURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var searchResponse SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResponse); err != nil {
		return nil, err
	}

	var studies []*models.Study
	for _, article := range searchResponse.ResultList.Result {
		studies = append(studies, mapArticleToStudy(&article))
	}

	log.Info("Suche auf Europe PMC abgeschlossen", zap.Int("found_studies", len(studies)))
	return studies, nil
}

// mapArticleToStudy konvertiert ein Europe PMC Article-Objekt in unser
// internes Study-Modell.
func mapArticleToStudy(article *Article) *models.Study {
	st := &models.Study{
		PMID:            article.PMID,
		DOI:             article.DOI,
		Title:           article.Title,
		Abstract:        article.AbstractText,
		Authors:         article.AuthorString,
		Journal:         article.JournalTitle,
		StudyType:       "article",
		PublicationYear: parseYear(article.FirstPublicationDate),
	}
	if article.PMID != "" {
		st.URL = fmt.Sprintf("https://europepmc.org/article/MED/%s", article.PMID)
	}
	return st
}
