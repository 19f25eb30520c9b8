package europepmc

import "strconv"

// SearchResponse ist die Top-Level-Struktur der Europe PMC API-Antwort.
type SearchResponse struct {
	ResultList struct {
		Result []Article `json:"result"`
	} `json:"resultList"`
}

// Article repräsentiert einen einzelnen Artikel in der API-Antwort.
type Article struct {
	ID                   string `json:"id"`
	Source               string `json:"source"`
	PMID                 string `json:"pmid"`
	DOI                  string `json:"doi"`
	Title                string `json:"title"`
	AuthorString         string `json:"authorString"`
	JournalTitle         string `json:"journalTitle"`
	FirstPublicationDate string `json:"firstPublicationDate"`
	AbstractText         string `json:"abstractText"`
	PubTypeList          struct {
		PubType []string `json:"pubType"`
	} `json:"pubTypeList"`
	IsOpenAccess string `json:"isOpenAccess"`
}

// parseYear extrahiert das Jahr aus einem Datum wie "2021-03-15", "2021-03" oder "2021".
func parseYear(dateStr string) *int {
	if len(dateStr) < 4 {
		return nil
	}
	y, err := strconv.Atoi(dateStr[:4])
	if err != nil {
		return nil
	}
	return &y
}
