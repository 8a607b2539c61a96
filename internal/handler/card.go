package handler

import (
	"errors"
	"net/http"
	"strings"

	"cardbored-api/internal/scryfall"
	"cardbored-api/internal/service"
	"cardbored-api/pkg/apierror"
	"cardbored-api/pkg/response"
)

// CardProxy handles GET /card-proxy?card=<name>
func (h *DeckHandler) CardProxy(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("card"))
	if name == "" {
		response.Error(w, apierror.BadRequest("card parameter is required"))
		return
	}

	raw, err := h.deckService.CardDetail(r.Context(), name)
	switch {
	case err == nil:
		w.Header().Set("Cache-Control", "public, max-age=300")
		response.Raw(w, http.StatusOK, raw)
	case errors.Is(err, scryfall.ErrNotFound):
		response.Error(w, apierror.NotFound("Card not found"))
	case errors.Is(err, service.ErrLiveDisabled):
		response.Error(w, apierror.ServiceUnavailable("card lookups are disabled"))
	default:
		response.Error(w, apierror.BadGateway("card lookup failed"))
	}
}
