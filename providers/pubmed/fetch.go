package pubmed

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"searchmatic/config"
	"searchmatic/models"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher ist eine Struktur, die die Logik zur Interaktion mit PubMed kapselt.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// Search führt eine vollständige Suche auf PubMed durch: holt IDs und dann
// die Metadaten für jede ID.
func (f *Fetcher) Search(term string) ([]*models.Study, error) {
	ids, err := f.searchIDs(term)
	if err != nil {
		return nil, fmt.Errorf("fehler bei der PubMed ID-Suche: %w", err)
	}

	var studies []*models.Study
	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, 5) // Parallele Abfragen limitieren

	for _, pmid := range ids {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(pmid string) {
			defer wg.Done()
			defer func() { <-semaphore }()

			study, err := f.fetchMetadata(pmid)
			if err != nil {
				f.Logger.Warn("Konnte Metadaten für PMID nicht abrufen", zap.String("pmid", pmid), zap.Error(err))
				return
			}
			mu.Lock()
			studies = append(studies, study)
			mu.Unlock()
		}(pmid)
	}

	wg.Wait()
	return studies, nil
}

// searchIDs führt eine ESearch-Abfrage durch und gibt eine Liste von PMIDs zurück.
func (f *Fetcher) searchIDs(term string) ([]string, error) {
	log := f.Logger.With(zap.String("term", term))
	log.Info("Starte PubMed ESearch für IDs.")

	var allIDs []string
	for offset := 0; ; offset += f.Config.PubMedMaxPages {
		searchURL := f.buildEsearchURL(term, f.Config.PubMedMaxPages, offset)
		log.Debug("Rufe ESearch-URL auf", zap.String("url", searchURL))

		resp, err := httpClient.Get(searchURL)
		if err != nil {
			log.Error("ESearch-Anfrage fehlgeschlagen", zap.Error(err))
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			log.Error("ESearch-API hat nicht-200-Status zurückgegeben",
				zap.Int("status", resp.StatusCode),
				zap.String("body", string(body)))
			return nil, fmt.Errorf("esearch failed: status %d", resp.StatusCode)
		}

		var esearchResp ESearchResponse
		if err := json.NewDecoder(resp.Body).Decode(&esearchResp); err != nil {
			log.Error("Fehler beim Parsen der ESearch-JSON-Antwort", zap.Error(err))
			return nil, err
		}

		ids := esearchResp.ESearchResult.IdList
		if len(ids) == 0 {
			break
		}
		allIDs = append(allIDs, ids...)
		log.Debug("Erfolgreich IDs von ESearch erhalten", zap.Int("count", len(ids)), zap.Int("offset", offset))

		if len(ids) < f.Config.PubMedMaxPages {
			break
		}
	}
	log.Info("PubMed ESearch abgeschlossen", zap.Int("total_ids", len(allIDs)))
	return allIDs, nil
}

// fetchMetadata holt Metadaten für eine einzelne PMID via EFetch.
func (f *Fetcher) fetchMetadata(pmid string) (*models.Study, error) {
	efetchURL := fmt.Sprintf("%s/efetch.fcgi?db=pubmed&id=%s&retmode=xml&api_key=%s",
		f.Config.PubMedBaseURL, pmid, f.Config.PubMedAPIKey)
	f.Logger.Debug("Rufe EFetch-URL für Metadaten auf", zap.String("url", efetchURL))

	resp, err := httpClient.Get(efetchURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("efetch metadata failed: status %d", resp.StatusCode)
	}

	var articleSet PubmedArticleSet
	if err := xml.NewDecoder(resp.Body).Decode(&articleSet); err != nil {
		return nil, err
	}

	if len(articleSet.PubmedArticle) == 0 {
		return nil, fmt.Errorf("kein PubmedArticle in EFetch-Antwort für PMID %s gefunden", pmid)
	}

	return mapArticleToStudy(&articleSet.PubmedArticle[0]), nil
}

// buildEsearchURL baut die URL für eine ESearch-Anfrage.
func (f *Fetcher) buildEsearchURL(term string, retmax, retstart int) string {
	base := fmt.Sprintf("%s/esearch.fcgi?db=pubmed&term=%s&retmode=json&retmax=%d&retstart=%d",
		f.Config.PubMedBaseURL, url.QueryEscape(term), retmax, retstart)
	if f.Config.PubMedAPIKey != "" {
		base += "&api_key=" + f.Config.PubMedAPIKey
	}
	return base
}

// mapArticleToStudy wandelt ein XML-Article-Objekt in unser Study-Modell um.
func mapArticleToStudy(article *PubmedArticle) *models.Study {
	st := &models.Study{
		PMID:      article.MedlineCitation.PMID,
		Title:     article.MedlineCitation.Article.Title,
		Abstract:  strings.Join(article.MedlineCitation.Article.Abstract.Text, "\n"),
		Journal:   article.MedlineCitation.Article.Journal.Title,
		StudyType: "article",
		URL:       fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", article.MedlineCitation.PMID),
	}

	for _, author := range article.MedlineCitation.Article.Authors {
		st.Authors += author.Initials + " " + author.LastName + ", "
	}
	st.Authors = strings.TrimRight(st.Authors, ", ")

	for _, id := range article.MedlineCitation.Article.ELocationID {
		if id.IDType == "doi" && id.ValidYN == "Y" {
			st.DOI = id.Value
			break
		}
	}

	if year := article.MedlineCitation.Article.Journal.PubDate.Year; year != "" {
		if y, err := strconv.Atoi(year); err == nil {
			st.PublicationYear = &y
		}
	}

	return st
}
