package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"cardbored-api/internal/model"
	"cardbored-api/internal/priceindex"
	"cardbored-api/internal/service"
	"cardbored-api/pkg/apierror"
	"cardbored-api/pkg/response"
)

// DeckHandler handles decklist processing requests.
type DeckHandler struct {
	deckService  *service.DeckService
	maxBodyBytes int64
}

// NewDeckHandler creates a new deck handler. maxBodyBytes <= 0 means 1 MiB.
func NewDeckHandler(deckService *service.DeckService, maxBodyBytes int64) *DeckHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &DeckHandler{
		deckService:  deckService,
		maxBodyBytes: maxBodyBytes,
	}
}

type processDecklistRequest struct {
	DeckText  *string          `json:"deckText"`
	Threshold *decimal.Decimal `json:"threshold"`
	Live      bool             `json:"live"`
}

type parseDecklistRequest struct {
	DeckText *string `json:"deckText"`
}

type cardPricesRequest struct {
	Cards []cardInput `json:"cards"`
	Live  bool        `json:"live"`
}

type cardInput struct {
	Name     string `json:"name"`
	Quantity *int   `json:"quantity"`
}

type reclassifyRequest struct {
	Cards     []model.ResolvedCard `json:"cards"`
	Threshold *decimal.Decimal     `json:"threshold"`
}

// ProcessDecklist handles POST /process-decklist
func (h *DeckHandler) ProcessDecklist(w http.ResponseWriter, r *http.Request) {
	var req processDecklistRequest
	if err := h.decode(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if err := requireDeckText(req.DeckText); err != nil {
		response.Error(w, err)
		return
	}

	result, err := h.deckService.Process(r.Context(), service.ProcessRequest{
		DeckText:  *req.DeckText,
		Threshold: req.Threshold,
		Live:      req.Live,
	})
	if err != nil {
		writeDeckError(w, err)
		return
	}
	response.OK(w, result)
}

// ParseDecklist handles POST /api/parse-decklist
func (h *DeckHandler) ParseDecklist(w http.ResponseWriter, r *http.Request) {
	var req parseDecklistRequest
	if err := h.decode(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if err := requireDeckText(req.DeckText); err != nil {
		response.Error(w, err)
		return
	}

	parsed := h.deckService.Parse(*req.DeckText)
	response.OK(w, map[string]interface{}{
		"cards":        parsed.Cards,
		"skippedLines": parsed.Skipped,
	})
}

// CardPrices handles POST /api/card-prices
func (h *DeckHandler) CardPrices(w http.ResponseWriter, r *http.Request) {
	var req cardPricesRequest
	if err := h.decode(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.Cards == nil {
		response.Error(w, apierror.ValidationError("invalid cards array",
			apierror.FieldError{Field: "cards", Message: "must be an array"}))
		return
	}

	cards := make([]model.CardRequest, 0, len(req.Cards))
	var problems []apierror.FieldError
	for i, c := range req.Cards {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			problems = append(problems, apierror.FieldError{Field: fmt.Sprintf("cards[%d].name", i), Message: "is required"})
		}
		qty := 1
		if c.Quantity != nil {
			qty = *c.Quantity
		}
		if qty < 0 {
			problems = append(problems, apierror.FieldError{Field: fmt.Sprintf("cards[%d].quantity", i), Message: "must be >= 0"})
		}
		cards = append(cards, model.CardRequest{Name: name, Quantity: qty, Line: i + 1})
	}
	if len(problems) > 0 {
		response.Error(w, apierror.ValidationError("invalid cards array", problems...))
		return
	}

	result, err := h.deckService.Price(r.Context(), service.PriceRequest{Cards: cards, Live: req.Live})
	if err != nil {
		writeDeckError(w, err)
		return
	}
	response.OK(w, result)
}

// Usage handles GET /process-decklist
func (h *DeckHandler) Usage(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string]interface{}{
		"message": "Send a POST request with a JSON body to process a decklist",
		"example": map[string]interface{}{
			"deckText":  "4 Lightning Bolt\n2 Sol Ring",
			"threshold": json.Number(h.deckService.DefaultThreshold().StringFixed(2)),
		},
	})
}

// Reclassify handles POST /reclassify
func (h *DeckHandler) Reclassify(w http.ResponseWriter, r *http.Request) {
	var req reclassifyRequest
	if err := h.decode(w, r, &req); err != nil {
		response.Error(w, err)
		return
	}
	if req.Cards == nil {
		response.Error(w, apierror.BadRequest("cards is required"))
		return
	}

	result, err := h.deckService.Reclassify(req.Cards, req.Threshold)
	if err != nil {
		writeDeckError(w, err)
		return
	}
	response.OK(w, result)
}

// decode reads a size-limited JSON body into dst.
func (h *DeckHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &tooLarge):
			return apierror.PayloadTooLarge("request body too large")
		case errors.As(err, &typeErr):
			return apierror.BadRequest(typeErr.Field + " has the wrong type")
		default:
			return apierror.BadRequest("invalid JSON body")
		}
	}
	return nil
}

func writeDeckError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, priceindex.ErrDataUnavailable):
		response.Error(w, apierror.DataUnavailable(""))
	case errors.Is(err, service.ErrNegativeThreshold):
		response.Error(w, apierror.BadRequest("threshold must be a number >= 0").
			WithDetails(apierror.FieldError{Field: "threshold", Message: "must be >= 0"}))
	case errors.Is(err, service.ErrNegativeQuantity):
		field := "quantity"
		var qerr *service.QuantityError
		if errors.As(err, &qerr) {
			field = fmt.Sprintf("cards[%d].quantity", qerr.Index)
		}
		response.Error(w, apierror.ValidationError("quantity must be a number >= 0",
			apierror.FieldError{Field: field, Message: "must be >= 0"}))
	default:
		response.Error(w, err)
	}
}

// requireDeckText rejects a missing, non-string or empty deckText. Whitespace
// is accepted and parses to an empty deck.
func requireDeckText(deckText *string) error {
	if deckText == nil || *deckText == "" {
		return apierror.ValidationError("deckText is required and must be a string",
			apierror.FieldError{Field: "deckText", Message: "must be a non-empty string"})
	}
	return nil
}
