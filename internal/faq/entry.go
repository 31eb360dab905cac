package faq

// Entry is a curated question/answer pair. Everything except Embedding is
// fixed once the entry is loaded; Embedding is computed once at load or insertion.
type Entry struct {
	ID        string    `yaml:"id,omitempty" json:"id"`
	Question  string    `yaml:"question" json:"question"`
	Answer    string    `yaml:"answer" json:"answer"`
	Category  Category  `yaml:"category" json:"category"`
	Intent    Intent    `yaml:"intent" json:"intent"`
	Keywords  []string  `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Examples  []string  `yaml:"examples,omitempty" json:"examples,omitempty"`
	Source    string    `yaml:"-" json:"source,omitempty"`
	Embedding []float32 `yaml:"-" json:"-"`
}

// Match is an entry with its boosted similarity score. Scores rank results
// and may exceed 1.0.
type Match struct {
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}

// Stats summarizes the indexed bank.
type Stats struct {
	Total       int              `json:"total_entries"`
	Categories  map[Category]int `json:"categories"`
	Intents     map[Intent]int   `json:"intents"`
	AvgExamples float64          `json:"avg_examples_per_entry"`
}

// embeddingText is the text an entry is embedded by.
func (e Entry) embeddingText() string {
	return e.Question
}
