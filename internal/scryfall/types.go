package scryfall

import "encoding/json"

// BulkData is the descriptor returned by /bulk-data/{type}.
type BulkData struct {
	Object      string `json:"object"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	DownloadURI string `json:"download_uri"`
	UpdatedAt   string `json:"updated_at"`
	Size        int64  `json:"size"`
}

// Prices holds the provider's price strings; absent prices decode as "".
type Prices struct {
	USD       string `json:"usd"`
	USDFoil   string `json:"usd_foil"`
	USDEtched string `json:"usd_etched"`
	EUR       string `json:"eur"`
}

// ImageURIs lists rendered image sizes.
type ImageURIs struct {
	Small  string `json:"small"`
	Normal string `json:"normal"`
	Large  string `json:"large"`
}

// CardFace is one face of a multi-faced card.
type CardFace struct {
	Name      string     `json:"name"`
	ManaCost  string     `json:"mana_cost"`
	TypeLine  string     `json:"type_line"`
	ImageURIs *ImageURIs `json:"image_uris,omitempty"`
}

// Card is the subset of a Scryfall card object this service reads.
type Card struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	SetName   string     `json:"set_name"`
	ManaCost  string     `json:"mana_cost"`
	TypeLine  string     `json:"type_line"`
	Prices    *Prices    `json:"prices,omitempty"`
	ImageURIs *ImageURIs `json:"image_uris,omitempty"`
	CardFaces []CardFace `json:"card_faces,omitempty"`

	// Raw is the full provider document for single-card lookups. Bulk streaming leaves it empty.
	Raw json.RawMessage `json:"-"`
}

// SmallImage returns the small image URL, falling back to the first face.
func (c *Card) SmallImage() string {
	if c.ImageURIs != nil && c.ImageURIs.Small != "" {
		return c.ImageURIs.Small
	}
	if len(c.CardFaces) > 0 && c.CardFaces[0].ImageURIs != nil {
		return c.CardFaces[0].ImageURIs.Small
	}
	return ""
}

// DisplayManaCost returns the mana cost, falling back to the first face.
func (c *Card) DisplayManaCost() string {
	if c.ManaCost != "" {
		return c.ManaCost
	}
	if len(c.CardFaces) > 0 {
		return c.CardFaces[0].ManaCost
	}
	return ""
}

// DisplayTypeLine returns the type line, falling back to the first face.
func (c *Card) DisplayTypeLine() string {
	if c.TypeLine != "" {
		return c.TypeLine
	}
	if len(c.CardFaces) > 0 {
		return c.CardFaces[0].TypeLine
	}
	return ""
}

// USDPrice returns the non-foil USD price, else the foil one, else "".
func (c *Card) USDPrice() string {
	if c.Prices == nil {
		return ""
	}
	if c.Prices.USD != "" {
		return c.Prices.USD
	}
	return c.Prices.USDFoil
}

type cardList struct {
	Object     string            `json:"object"`
	TotalCards int               `json:"total_cards"`
	HasMore    bool              `json:"has_more"`
	Data       []json.RawMessage `json:"data"`
}

type apiError struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Details string `json:"details"`
}
