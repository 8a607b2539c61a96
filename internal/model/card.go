package model

// CardRequest is one parsed decklist line.
type CardRequest struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	// Line is the 1-based line number in the submitted text.
	Line int `json:"line"`
}

// PriceRecord is the representative printing kept for one card name.
type PriceRecord struct {
	Name     string `json:"name"`
	Price    Price  `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
	SetName  string `json:"setName"`
	ManaCost string `json:"manaCost"`
	TypeLine string `json:"type"`
}

// LookupSource names where a resolved card's data came from.
type LookupSource string

const (
	SourceIndex LookupSource = "index"
	SourceLive  LookupSource = "live"
	SourceCache LookupSource = "cache"
	SourceNone  LookupSource = "none"
)

// LookupStatus is the outcome of resolving one card.
type LookupStatus string

const (
	StatusFound        LookupStatus = "found"
	StatusNotFound     LookupStatus = "not_found"
	StatusSearchFailed LookupStatus = "search_failed"
	StatusError        LookupStatus = "error"
	StatusNotProcessed LookupStatus = "not_processed"
)

// Placeholder set names shown for cards without data.
const (
	SetNotFound     = "Not Found"
	SetSearchFailed = "Search Failed"
	SetError        = "Error"
	SetNotProcessed = "Not Processed"
	UnknownType     = "Unknown"
)

// PlaceholderSet returns the set label used for a failed lookup status.
func PlaceholderSet(status LookupStatus) string {
	switch status {
	case StatusSearchFailed:
		return SetSearchFailed
	case StatusError:
		return SetError
	case StatusNotProcessed:
		return SetNotProcessed
	default:
		return SetNotFound
	}
}

// ResolvedCard is a decklist line merged with its price data.
type ResolvedCard struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	RequestedName string       `json:"requestedName,omitempty"`
	Quantity      int          `json:"quantity"`
	Price         Price        `json:"price"`
	ImageURL      string       `json:"imageUrl,omitempty"`
	SetName       string       `json:"setName"`
	ManaCost      string       `json:"manaCost"`
	TypeLine      string       `json:"type"`
	Source        LookupSource `json:"source,omitempty"`
	Status        LookupStatus `json:"status,omitempty"`
}

// Resolve merges a request with a price record.
func Resolve(id string, req CardRequest, rec PriceRecord, source LookupSource) ResolvedCard {
	name := rec.Name
	if name == "" {
		name = req.Name
	}
	return ResolvedCard{
		ID:            id,
		Name:          name,
		RequestedName: req.Name,
		Quantity:      req.Quantity,
		Price:         rec.Price,
		ImageURL:      rec.ImageURL,
		SetName:       rec.SetName,
		ManaCost:      rec.ManaCost,
		TypeLine:      rec.TypeLine,
		Source:        source,
		Status:        StatusFound,
	}
}

// Unresolved builds the "no data" card for a failed lookup.
func Unresolved(id string, req CardRequest, source LookupSource, status LookupStatus) ResolvedCard {
	return ResolvedCard{
		ID:            id,
		Name:          req.Name,
		RequestedName: req.Name,
		Quantity:      req.Quantity,
		Price:         UnknownPrice(),
		SetName:       PlaceholderSet(status),
		TypeLine:      UnknownType,
		Source:        source,
		Status:        status,
	}
}
