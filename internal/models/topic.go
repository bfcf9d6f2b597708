package models

// Topic is static content; the game never mutates it.
type Topic struct {
	ID      int      `json:"id" yaml:"id"`
	Title   string   `json:"title" yaml:"title"`
	Filters []string `json:"filters" yaml:"filters"`
}
