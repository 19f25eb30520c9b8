package pubmed

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"searchmatic/config"
)

const sampleEfetchXML = `<?xml version="1.0" ?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID>12345678</PMID>
      <Article>
        <Journal>
          <JournalISSN>1234-5678</JournalISSN>
          <Title>Journal of Testing</Title>
          <JournalIssue>
            <PubDate>
              <Year>2020</Year>
              <Month>06</Month>
            </PubDate>
          </JournalIssue>
        </Journal>
        <ArticleTitle>Statins and outcomes</ArticleTitle>
        <ELocationID EIdType="pii" ValidYN="Y">S000</ELocationID>
        <ELocationID EIdType="doi" ValidYN="Y">10.1000/test</ELocationID>
        <Abstract>
          <AbstractText>Part one.</AbstractText>
          <AbstractText>Part two.</AbstractText>
        </Abstract>
        <AuthorList>
          <Author>
            <LastName>Musterfrau</LastName>
            <Initials>A</Initials>
          </Author>
          <Author>
            <LastName>Doe</LastName>
            <Initials>J</Initials>
          </Author>
        </AuthorList>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func TestMapArticleToStudy(t *testing.T) {
	var set PubmedArticleSet
	if err := xml.Unmarshal([]byte(sampleEfetchXML), &set); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(set.PubmedArticle) != 1 {
		t.Fatalf("expected 1 article, got %d", len(set.PubmedArticle))
	}

	study := mapArticleToStudy(&set.PubmedArticle[0])
	if study.PMID != "12345678" {
		t.Errorf("pmid = %q", study.PMID)
	}
	if study.Title != "Statins and outcomes" {
		t.Errorf("title = %q", study.Title)
	}
	if study.DOI != "10.1000/test" {
		t.Errorf("doi = %q (pii must be skipped)", study.DOI)
	}
	if study.Journal != "Journal of Testing" {
		t.Errorf("journal = %q", study.Journal)
	}
	if study.Abstract != "Part one.\nPart two." {
		t.Errorf("abstract = %q", study.Abstract)
	}
	if study.Authors != "A Musterfrau, J Doe" {
		t.Errorf("authors = %q", study.Authors)
	}
	if study.PublicationYear == nil || *study.PublicationYear != 2020 {
		t.Errorf("publication year = %v", study.PublicationYear)
	}
	if study.URL != "https://pubmed.ncbi.nlm.nih.gov/12345678/" {
		t.Errorf("url = %q", study.URL)
	}
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/esearch.fcgi"):
			if r.URL.Query().Get("retstart") != "0" {
				fmt.Fprint(w, `{"esearchresult":{"idlist":[]}}`)
				return
			}
			fmt.Fprint(w, `{"esearchresult":{"idlist":["12345678"]}}`)
		case strings.HasPrefix(r.URL.Path, "/efetch.fcgi"):
			fmt.Fprint(w, sampleEfetchXML)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := NewFetcher(&config.Config{
		PubMedBaseURL:  srv.URL,
		PubMedMaxPages: 50,
	}, zap.NewNop())

	studies, err := fetcher.Search("statins")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(studies) != 1 {
		t.Fatalf("expected 1 study, got %d", len(studies))
	}
	if studies[0].PMID != "12345678" {
		t.Errorf("pmid = %q", studies[0].PMID)
	}
}

func TestBuildEsearchURL(t *testing.T) {
	fetcher := NewFetcher(&config.Config{
		PubMedBaseURL:  "https://eutils.example",
		PubMedAPIKey:   "key123",
		PubMedMaxPages: 100,
	}, zap.NewNop())

	got := fetcher.buildEsearchURL("heart attack", 100, 200)
	want := "https://eutils.example/esearch.fcgi?db=pubmed&term=heart+attack&retmode=json&retmax=100&retstart=200&api_key=key123"
	if got != want {
		t.Errorf("buildEsearchURL = %q, want %q", got, want)
	}

	fetcher.Config.PubMedAPIKey = ""
	if got := fetcher.buildEsearchURL("x", 10, 0); strings.Contains(got, "api_key") {
		t.Errorf("api_key must be omitted when not configured: %q", got)
	}
}
