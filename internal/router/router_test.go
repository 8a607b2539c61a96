package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"cardbored-api/internal/cache"
	"cardbored-api/internal/handler"
	"cardbored-api/internal/lookup"
	"cardbored-api/internal/middleware"
	"cardbored-api/internal/priceindex"
	"cardbored-api/internal/scryfall"
	"cardbored-api/internal/service"
)

const bulkCards = `[
	{"name":"Lightning Bolt","set_name":"Magic 2011","mana_cost":"{R}","type_line":"Instant","prices":{"usd":"0.50"}},
	{"name":"Mana Crypt","set_name":"Eternal Masters","mana_cost":"{0}","type_line":"Artifact","prices":{"usd":null,"usd_foil":"12.00"}},
	{"name":"Lightning Bolt","set_name":"Alpha","prices":{"usd":"400.00"}}
]`

// upstream fakes the card database. failBulk makes the bulk descriptor return 500.
type upstream struct {
	*httptest.Server
	failBulk atomic.Bool
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	mux := http.NewServeMux()
	mux.HandleFunc("/bulk-data/default_cards", func(w http.ResponseWriter, r *http.Request) {
		if u.failBulk.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"object":"bulk_data","type":"default_cards","download_uri":"%s/bulk.json","updated_at":"2024-05-01T09:00:00Z"}`, u.URL)
	})
	mux.HandleFunc("/bulk.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, bulkCards)
	})
	mux.HandleFunc("/cards/named", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("exact") == "Sol Ring" {
			fmt.Fprint(w, `{"object":"card","name":"Sol Ring","set_name":"Commander 2021","prices":{"usd":"1.99"}}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"object":"error","status":404,"code":"not_found"}`)
	})
	mux.HandleFunc("/cards/search", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"object":"error","status":404,"code":"not_found"}`)
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

func newTestRouter(t *testing.T, up *upstream, adminKey string) http.Handler {
	t.Helper()
	client := scryfall.NewClient(scryfall.Config{BaseURL: up.URL})
	idxCfg := priceindex.DefaultConfig()
	idxCfg.RetryBackoff = 0
	idx := priceindex.New(client, nil, idxCfg)
	lookups := cache.NewMemoryCache(0)
	t.Cleanup(func() { lookups.Close() })
	resolver := lookup.NewResolver(client, lookups, lookup.Config{MaxCards: 5})
	deckSvc := service.NewDeckService(idx, resolver, service.DeckConfig{LiveFallback: true})
	scheduler := service.NewRefreshScheduler(idx, service.DefaultRefreshConfig())

	return New(Config{
		Handler:         handler.New(idx, "cardbored-api", "test"),
		DeckHandler:     handler.NewDeckHandler(deckSvc, 1<<10),
		AdminHandler:    handler.NewAdminHandler(idx, scheduler, resolver, "none", "memory"),
		AdminMiddleware: middleware.NewAdminKeyMiddleware(adminKey),
	})
}

func do(h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestProcessDecklist(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), "")

	for _, path := range []string{"/process-decklist", "/api/process-decklist"} {
		t.Run(path, func(t *testing.T) {
			rec := do(h, http.MethodPost, path,
				`{"deckText":"4 Lightning Bolt\n1 Mana Crypt\n2 Sol Ring\n1 Not A Card\n// comment\nbad line","threshold":3}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
			}
			body := decode(t, rec)

			// 4×0.50 + 12.00 + 2×1.99
			if body["totalCost"] != "17.98" || body["proxyCost"] != "12.00" || body["keepCost"] != "5.98" {
				t.Fatalf("totals: %v", body)
			}
			if body["skippedLines"].(float64) != 1 || body["liveLookups"].(float64) != 2 {
				t.Fatalf("diagnostics: skipped=%v live=%v", body["skippedLines"], body["liveLookups"])
			}
			cards := body["cards"].([]interface{})
			if len(cards) != 4 {
				t.Fatalf("cards: %d", len(cards))
			}
			bolt := cards[0].(map[string]interface{})
			if bolt["price"].(float64) != 0.5 || bolt["setName"] != "Magic 2011" || bolt["source"] != "index" {
				t.Fatalf("first printing should win: %v", bolt)
			}
			missing := cards[3].(map[string]interface{})
			if missing["price"] != "unavailable" || missing["setName"] != "Not Found" {
				t.Fatalf("missing card: %v", missing)
			}
			if len(body["proxy"].([]interface{})) != 1 || len(body["doNotProxy"].([]interface{})) != 3 {
				t.Fatalf("piles: %v / %v", body["proxy"], body["doNotProxy"])
			}
		})
	}
}

func TestProcessDecklistBadRequests(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing deckText", `{"threshold":3}`, http.StatusBadRequest},
		{"deckText not a string", `{"deckText":42}`, http.StatusBadRequest},
		{"empty deckText", `{"deckText":""}`, http.StatusBadRequest},
		{"negative threshold", `{"deckText":"1 Sol Ring","threshold":-1}`, http.StatusBadRequest},
		{"invalid json", `{deckText`, http.StatusBadRequest},
		{"too large", `{"deckText":"` + strings.Repeat("x", 2048) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/process-decklist", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status: got %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if msg, _ := decode(t, rec)["error"].(string); msg == "" {
				t.Fatalf("missing error message: %s", rec.Body.String())
			}
		})
	}
}

func TestProcessDecklistDataUnavailable(t *testing.T) {
	up := newUpstream(t)
	up.failBulk.Store(true)
	h := newTestRouter(t, up, "")

	rec := do(h, http.MethodPost, "/process-decklist", `{"deckText":"1 Sol Ring"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["code"] != "DATA_UNAVAILABLE" || body["error"] == "" || body["cards"] != nil {
		t.Fatalf("body: %v", body)
	}

	ready := do(h, http.MethodGet, "/api/v1/ready", "")
	if ready.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with no data: %d", ready.Code)
	}
}

func TestUsageAndReclassify(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), "")

	rec := do(h, http.MethodGet, "/process-decklist", "")
	if rec.Code != http.StatusOK || decode(t, rec)["message"] == nil {
		t.Fatalf("usage: %d %s", rec.Code, rec.Body.String())
	}

	cards := `[{"id":"a","name":"Cheap","quantity":2,"price":1.50,"setName":"X","manaCost":"","type":"Instant"},
		{"id":"b","name":"Pricey","quantity":1,"price":9.99,"setName":"X","manaCost":"","type":"Instant"},
		{"id":"c","name":"Mystery","quantity":1,"price":"unavailable","setName":"Not Found","manaCost":"","type":"Unknown"}]`
	rec = do(h, http.MethodPost, "/api/reclassify", `{"cards":`+cards+`,"threshold":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reclassify: %d %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if len(body["proxy"].([]interface{})) != 2 || body["totalCost"] != "12.99" || body["threshold"] != "1.00" {
		t.Fatalf("reclassified: %v", body)
	}

	if rec := do(h, http.MethodPost, "/reclassify", `{"threshold":1}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing cards: %d", rec.Code)
	}
}

func TestCardProxy(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), "")

	if rec := do(h, http.MethodGet, "/card-proxy", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing param: %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/card-proxy?card=Nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown card: %d", rec.Code)
	}
	rec := do(h, http.MethodGet, "/api/card-proxy?card=Sol+Ring", "")
	if rec.Code != http.StatusOK || decode(t, rec)["object"] != "card" {
		t.Fatalf("card: %d %s", rec.Code, rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), "")

	rec := do(h, http.MethodOptions, "/process-decklist", "",
		"Origin", "https://example.com", "Access-Control-Request-Method", "POST")
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("preflight: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("allow origin: %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	rec = do(h, http.MethodPost, "/process-decklist", `{}`, "Origin", "https://example.com")
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("error responses must carry CORS headers")
	}
}

func TestAdminEndpoints(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), "s3cret")

	if rec := do(h, http.MethodPost, "/api/v1/admin/index/refresh", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated refresh: %d", rec.Code)
	}
	rec := do(h, http.MethodPost, "/api/v1/admin/index/refresh", "", middleware.AdminKeyHeader, "s3cret")
	refreshed := decode(t, rec)
	if rec.Code != http.StatusOK || refreshed["records"].(float64) != 2 || refreshed["lookupCacheCleared"] != true {
		t.Fatalf("refresh: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(h, http.MethodGet, "/api/v1/admin/index", "", middleware.AdminKeyHeader, "s3cret")
	index := decode(t, rec)["index"].(map[string]interface{})
	if index["ready"] != true || index["sourceUpdatedAt"] != "2024-05-01T09:00:00Z" {
		t.Fatalf("index status: %v", index)
	}

	if rec := do(h, http.MethodGet, "/api/v1/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready after refresh: %d", rec.Code)
	}
	for _, path := range []string{"/api/v1/health", "/api/health"} {
		if rec := do(h, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, rec.Code)
		}
	}
	if rec := do(h, http.MethodGet, "/api/status", ""); rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "cardbored_index_refreshes_total") {
		t.Fatalf("metrics: %d", rec.Code)
	}
}

func TestProcessDecklistWhitespaceOnly(t *testing.T) {
	up := newUpstream(t)
	up.failBulk.Store(true)
	h := newTestRouter(t, up, "")

	rec := do(h, http.MethodPost, "/process-decklist", `{"deckText":"   \n  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if cards, ok := body["cards"].([]interface{}); !ok || len(cards) != 0 || body["totalCost"] != "0.00" {
		t.Fatalf("body: %v", body)
	}
}

func TestParseDecklistEndpoint(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), "")

	rec := do(h, http.MethodPost, "/api/parse-decklist", `{"deckText":"4 Lightning Bolt\n// side\nbad line\n2\u00a0Sol Ring"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	cards := body["cards"].([]interface{})
	if len(cards) != 2 || body["skippedLines"].(float64) != 1 {
		t.Fatalf("body: %v", body)
	}
	second := cards[1].(map[string]interface{})
	if second["name"] != "Sol Ring" || second["quantity"].(float64) != 2 {
		t.Fatalf("second card: %v", second)
	}

	for _, bad := range []string{`{}`, `{"deckText":""}`, `{"deckText":7}`} {
		if rec := do(h, http.MethodPost, "/parse-decklist", bad); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", bad, rec.Code)
		}
	}
}

func TestCardPricesEndpoint(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), "")

	rec := do(h, http.MethodPost, "/api/card-prices",
		`{"cards":[{"name":"Lightning Bolt","quantity":4},{"name":"Sol Ring"},{"name":"Nope","quantity":2}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	cards := body["cards"].([]interface{})
	if len(cards) != 3 || body["totalCost"] != "3.99" || body["liveLookups"].(float64) != 2 {
		t.Fatalf("body: %v", body)
	}
	bolt := cards[0].(map[string]interface{})
	sol := cards[1].(map[string]interface{})
	nope := cards[2].(map[string]interface{})
	if bolt["source"] != "index" || sol["source"] != "live" || sol["quantity"].(float64) != 1 || nope["price"] != "unavailable" {
		t.Fatalf("cards: %v", cards)
	}

	rec = do(h, http.MethodPost, "/card-prices", `{"cards":[{"name":" "},{"name":"X","quantity":-1}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid cards: %d", rec.Code)
	}
	body = decode(t, rec)
	details, _ := body["details"].([]interface{})
	if body["code"] != "VALIDATION_ERROR" || len(details) != 2 {
		t.Fatalf("validation body: %v", body)
	}

	for _, bad := range []string{`{}`, `{"cards":"Sol Ring"}`} {
		if rec := do(h, http.MethodPost, "/card-prices", bad); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", bad, rec.Code)
		}
	}
}

func TestReclassifyRejectsNegativeQuantity(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), "")

	rec := do(h, http.MethodPost, "/reclassify",
		`{"cards":[{"id":"a","name":"A","quantity":1,"price":1},{"id":"b","name":"B","quantity":-2,"price":5}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	details := decode(t, rec)["details"].([]interface{})
	if details[0].(map[string]interface{})["field"] != "cards[1].quantity" {
		t.Fatalf("details: %v", details)
	}
}
