package priceindex

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cardbored-api/internal/decklist"
	"cardbored-api/internal/model"
	"cardbored-api/internal/scryfall"
)

type fakeSource struct {
	mu    sync.Mutex
	cards []*scryfall.Card
	err   error
	// streamErrAfter > 0 fails the download after that many cards.
	streamErrAfter int
	calls          atomic.Int32
	release        chan struct{}
}

func (f *fakeSource) BulkData(ctx context.Context, bulkType string) (*scryfall.BulkData, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &scryfall.BulkData{Type: bulkType, DownloadURI: "mem://bulk", UpdatedAt: "2026-10-18T09:00:00Z"}, nil
}

func (f *fakeSource) StreamCards(ctx context.Context, uri string, fn func(*scryfall.Card) error) error {
	f.mu.Lock()
	cards, failAfter := f.cards, f.streamErrAfter
	f.mu.Unlock()
	for n, c := range cards {
		if failAfter > 0 && n == failAfter {
			return errors.New("connection reset mid-download")
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type memStore struct {
	mu    sync.Mutex
	snap  *model.Snapshot
	saves int
}

func (m *memStore) Load(ctx context.Context) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap, nil
}

func (m *memStore) Save(ctx context.Context, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	m.saves++
	return nil
}

func priced(name, usd, foil string) *scryfall.Card {
	return &scryfall.Card{Name: name, SetName: "Test Set", Prices: &scryfall.Prices{USD: usd, USDFoil: foil}}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestIndex(src Source, store Store) (*Index, *clock) {
	clk := &clock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	idx := New(src, store, Config{StaleAfter: 24 * time.Hour})
	idx.SetClock(clk.Now)
	return idx, clk
}

func TestBuilderPricePreferenceAndFirstSeen(t *testing.T) {
	b := NewBuilder(false)
	b.Add(priced("Lightning Bolt", "1.00", "5.00"))
	b.Add(priced("Lightning Bolt", "0.25", ""))
	b.Add(priced("Foil Only", "", "7.50"))
	b.Add(priced("No Price", "", ""))
	b.Add(&scryfall.Card{Name: "Nil Prices"})
	b.Add(priced("", "1.00", ""))
	b.Add(priced("Zero", "0.00", ""))

	snap := b.Snapshot(time.Now(), "")
	if snap.Records["lightning bolt"].Price.String() != "1.00" {
		t.Fatalf("first-seen non-foil price expected, got %s", snap.Records["lightning bolt"].Price)
	}
	if snap.Records["foil only"].Price.String() != "7.50" {
		t.Fatalf("foil fallback expected, got %s", snap.Records["foil only"].Price)
	}
	if _, ok := snap.Records["no price"]; ok {
		t.Fatalf("card without price must be discarded")
	}
	if rec, ok := snap.Records["zero"]; !ok || !rec.Price.Known() {
		t.Fatalf("zero price must be kept as a known price")
	}
	stats := b.Stats()
	if stats.Seen != 7 || stats.Kept != 3 || stats.Duplicates != 1 || stats.NoPrice != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for key, rec := range snap.Records {
		if key != decklist.Normalize(rec.Name) {
			t.Fatalf("key %q does not match normalized name %q", key, rec.Name)
		}
	}
}

func TestBuilderDropNonPositive(t *testing.T) {
	b := NewBuilder(true)
	b.Add(priced("Zero", "0.00", ""))
	b.Add(priced("Cent", "0.01", ""))
	snap := b.Snapshot(time.Now(), "")
	if snap.Len() != 1 {
		t.Fatalf("expected only positive prices, got %d", snap.Len())
	}
}

func TestEnsureFreshNoSnapshotFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	idx, _ := newTestIndex(src, nil)

	_, err := idx.EnsureFresh(context.Background())
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if _, ok := idx.Lookup("anything"); ok {
		t.Fatalf("no snapshot should answer lookups")
	}
	if idx.Status().Ready || idx.Status().LastError == "" {
		t.Fatalf("unexpected status %+v", idx.Status())
	}
}

func TestEnsureFreshBuildsAndPersists(t *testing.T) {
	src := &fakeSource{cards: []*scryfall.Card{priced("Sol Ring", "1.99", "")}}
	store := &memStore{}
	idx, _ := newTestIndex(src, store)

	snap, err := idx.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if snap.SourceUpdatedAt == "" || snap.Len() != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	rec, ok := idx.Lookup("  SOL RING ")
	if !ok || rec.Price.String() != "1.99" {
		t.Fatalf("lookup failed: %+v %v", rec, ok)
	}
	if store.saves != 1 {
		t.Fatalf("expected snapshot persisted once, got %d", store.saves)
	}

	// fresh snapshot: no further fetch
	if _, err := idx.EnsureFresh(context.Background()); err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if src.calls.Load() != 1 {
		t.Fatalf("fresh snapshot must not refetch, calls=%d", src.calls.Load())
	}
}

func TestStaleSnapshotServedWhileRefreshFails(t *testing.T) {
	src := &fakeSource{cards: []*scryfall.Card{priced("Sol Ring", "1.99", "")}}
	idx, clk := newTestIndex(src, nil)

	first, err := idx.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("initial build: %v", err)
	}

	clk.Advance(25 * time.Hour)
	src.setErr(errors.New("bulk endpoint down"))

	got, err := idx.EnsureFresh(context.Background())
	if err != nil || got != first {
		t.Fatalf("stale snapshot should be served, got %p err=%v", got, err)
	}
	idx.Wait()
	if src.calls.Load() != 2 {
		t.Fatalf("expected one background refresh, calls=%d", src.calls.Load())
	}

	for n := 0; n < 3; n++ {
		got, err = idx.EnsureFresh(context.Background())
		if err != nil || got != first {
			t.Fatalf("subsequent request %d not served from stale snapshot: %v", n, err)
		}
	}
	idx.Wait()
	if _, ok := idx.Lookup("sol ring"); !ok {
		t.Fatalf("stale snapshot lost after failed refresh")
	}
	st := idx.Status()
	if !st.Stale || st.LastError == "" {
		t.Fatalf("status should report stale with error: %+v", st)
	}
}

func TestStaleSnapshotReplacedOnSuccess(t *testing.T) {
	src := &fakeSource{cards: []*scryfall.Card{priced("Sol Ring", "1.99", "")}}
	idx, clk := newTestIndex(src, nil)
	first, _ := idx.EnsureFresh(context.Background())

	clk.Advance(25 * time.Hour)
	src.mu.Lock()
	src.cards = []*scryfall.Card{priced("Sol Ring", "2.49", "")}
	src.mu.Unlock()

	if got, _ := idx.EnsureFresh(context.Background()); got != first {
		t.Fatalf("stale snapshot must be returned while refreshing")
	}
	idx.Wait()

	rec, _ := idx.Lookup("Sol Ring")
	if rec.Price.String() != "2.49" {
		t.Fatalf("snapshot not swapped, price %s", rec.Price)
	}
	if first.Records["sol ring"].Price.String() != "1.99" {
		t.Fatalf("old snapshot was mutated")
	}
}

func TestRetryBackoffAfterFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	idx := New(src, nil, Config{RetryBackoff: time.Minute})
	clk := &clock{t: time.Now()}
	idx.SetClock(clk.Now)

	idx.EnsureFresh(context.Background())
	idx.EnsureFresh(context.Background())
	if src.calls.Load() != 1 {
		t.Fatalf("backoff should suppress retry, calls=%d", src.calls.Load())
	}

	clk.Advance(2 * time.Minute)
	idx.EnsureFresh(context.Background())
	if src.calls.Load() != 2 {
		t.Fatalf("retry expected after backoff, calls=%d", src.calls.Load())
	}
}

func TestConcurrentRefreshIsSingleFlight(t *testing.T) {
	src := &fakeSource{
		cards:   []*scryfall.Card{priced("Island", "0.10", "")},
		release: make(chan struct{}),
	}
	idx, _ := newTestIndex(src, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for n := 0; n < 10; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idx.EnsureFresh(context.Background())
			errs <- err
		}()
	}

	deadline := time.After(2 * time.Second)
	for src.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("refresh never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("ensure fresh: %v", err)
		}
	}
	if src.calls.Load() != 1 {
		t.Fatalf("expected exactly one fetch, got %d", src.calls.Load())
	}
}

func TestCallerCancellationDoesNotAbortRefresh(t *testing.T) {
	src := &fakeSource{
		cards:   []*scryfall.Card{priced("Island", "0.10", "")},
		release: make(chan struct{}),
	}
	idx, _ := newTestIndex(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := idx.EnsureFresh(ctx)
		done <- err
	}()
	for src.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err == nil {
		t.Fatalf("cancelled caller should get an error")
	}

	close(src.release)
	if _, err := idx.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := idx.Lookup("island"); !ok {
		t.Fatalf("refresh should have completed")
	}
}

func TestWarmFromStore(t *testing.T) {
	stored := &model.Snapshot{
		Records:   map[string]model.PriceRecord{"sol ring": {Name: "Sol Ring"}},
		FetchedAt: time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC),
	}
	src := &fakeSource{err: errors.New("offline")}
	idx, _ := newTestIndex(src, &memStore{snap: stored})

	if err := idx.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	snap, err := idx.EnsureFresh(context.Background())
	if err != nil || snap != stored {
		t.Fatalf("warmed snapshot should be served: %v", err)
	}
	if src.calls.Load() != 0 {
		t.Fatalf("fresh warmed snapshot must not trigger a fetch")
	}
}

func TestEmptyDatasetDoesNotReplaceSnapshot(t *testing.T) {
	src := &fakeSource{cards: []*scryfall.Card{priced("Sol Ring", "1.99", "")}}
	idx, _ := newTestIndex(src, nil)
	first, _ := idx.EnsureFresh(context.Background())

	src.mu.Lock()
	src.cards = nil
	src.mu.Unlock()
	if _, err := idx.Refresh(context.Background()); err == nil {
		t.Fatalf("empty dataset must fail the refresh")
	}
	if idx.Snapshot() != first {
		t.Fatalf("snapshot replaced by empty build")
	}
}

func TestMidStreamFailureKeepsPriorSnapshot(t *testing.T) {
	src := &fakeSource{cards: []*scryfall.Card{priced("Sol Ring", "1.99", ""), priced("Island", "0.10", "")}}
	store := &memStore{}
	idx, clk := newTestIndex(src, store)

	first, err := idx.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("initial build: %v", err)
	}

	clk.Advance(25 * time.Hour)
	src.mu.Lock()
	src.cards = []*scryfall.Card{
		priced("Sol Ring", "5.00", ""),
		priced("Island", "0.20", ""),
		priced("Brand New", "1.00", ""),
	}
	src.streamErrAfter = 2
	src.mu.Unlock()

	if _, err := idx.Refresh(context.Background()); err == nil {
		t.Fatal("expected mid-stream failure")
	}
	if idx.Snapshot() != first {
		t.Fatal("partial download replaced the snapshot")
	}
	rec, _ := idx.Lookup("Sol Ring")
	if rec.Price.String() != "1.99" {
		t.Fatalf("price changed by partial download: %s", rec.Price)
	}
	if _, ok := idx.Lookup("Island"); !ok {
		t.Fatal("prior record lost")
	}
	if store.saves != 1 || store.snap != first {
		t.Fatalf("partial snapshot persisted: saves=%d", store.saves)
	}
}

func TestMidStreamFailureWithoutSnapshot(t *testing.T) {
	src := &fakeSource{
		cards:          []*scryfall.Card{priced("Sol Ring", "1.99", ""), priced("Island", "0.10", "")},
		streamErrAfter: 1,
	}
	store := &memStore{}
	idx, _ := newTestIndex(src, store)

	snap, err := idx.EnsureFresh(context.Background())
	if !errors.Is(err, ErrDataUnavailable) || snap != nil {
		t.Fatalf("expected ErrDataUnavailable, got %v, %v", snap, err)
	}
	if idx.Snapshot() != nil {
		t.Fatal("partial snapshot published")
	}
	if _, ok := idx.Lookup("Sol Ring"); ok {
		t.Fatal("card from partial download is visible")
	}
	if store.saves != 0 {
		t.Fatalf("partial snapshot persisted: saves=%d", store.saves)
	}
}
