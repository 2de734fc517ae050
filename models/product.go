package models

// Product is one catalog entry scraped from the vendor listing page. Any
// field except ID may be empty when it could not be inferred.
type Product struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	ImageURL  string `json:"imageUrl"`
	Link      string `json:"link"`
	LotNumber string `json:"lotNumber"`
	Material  string `json:"material"`
	Color     string `json:"color"`
}
