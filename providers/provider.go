package providers

import "searchmatic/models"

// Provider ist das Interface, das jede bibliografische Quelle (z.B. PubMed,
// Europe PMC) für den Studien-Import implementieren muss.
type Provider interface {
	// Search führt eine Suche für einen Term durch und gibt standardisierte
	// Study-Kandidaten zurück (ohne ID, Projekt- und Owner-Zuordnung).
	Search(term string) ([]*models.Study, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "pubmed").
	Name() string
}
