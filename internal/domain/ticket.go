package domain

import "time"

// Ticket is a support ticket moving through the classification pipeline.
type Ticket struct {
	ID          string
	Title       string
	Description string
	Priority    Priority
	Status      TicketStatus
	Source      string
	CustomerID  string
	Metadata    map[string]any

	Path       Path
	Confidence float64

	CreatedAt     time.Time
	ClassifiedAt  *time.Time
	ResolvedAt    *time.Time
	ProcessingDur time.Duration
}

// NewTicket builds a fresh ticket in the "new" state.
func NewTicket(id, title, description string, priority Priority, source, customerID string, metadata map[string]any) *Ticket {
	if !priority.Valid() {
		priority = PriorityMedium
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Ticket{
		ID:          id,
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      TicketStatusNew,
		Source:      source,
		CustomerID:  customerID,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	}
}

// CombinedText is the text used for keyword extraction and embedding:
// "title + ' ' + description".
func (t *Ticket) CombinedText() string {
	return t.Title + " " + t.Description
}

// ApplyClassification records the pipeline's assigned path, confidence and
// status transition.
func (t *Ticket) ApplyClassification(path Path, confidence float64, at time.Time) {
	t.Path = path
	t.Confidence = confidence
	t.Status = TicketStatusClassified
	t.ClassifiedAt = &at
	t.ProcessingDur = at.Sub(t.CreatedAt)
}

// VectorRecord is a ticket embedding stored in the vector store, keyed by
// ticket UUID.
type VectorRecord struct {
	TicketID         string
	Embedding        []float32
	TitleSnippet     string
	DescriptionSnip  string
	Path             Path
	WasCorrect       bool
	Confidence       float64
}

const (
	// TitleSnippetLen and DescriptionSnippetLen bound the truncated text
	// stored alongside an embedding, per spec.md §3 ("truncated title and
	// description snippets").
	TitleSnippetLen       = 200
	DescriptionSnippetLen = 500
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// NewVectorRecord builds a record from a classified ticket and its
// embedding, truncating title/description to the stored snippet lengths.
func NewVectorRecord(t *Ticket, embedding []float32) VectorRecord {
	return VectorRecord{
		TicketID:        t.ID,
		Embedding:       embedding,
		TitleSnippet:    truncate(t.Title, TitleSnippetLen),
		DescriptionSnip: truncate(t.Description, DescriptionSnippetLen),
		Path:            t.Path,
		WasCorrect:      true,
		Confidence:      t.Confidence,
	}
}
