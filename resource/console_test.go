package resource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/tagcache"
	"github.com/unkn0wn-root/tagcache/transport"
)

// adServer is an in-memory ads backend speaking the console's envelope.
type adServer struct {
	mu       sync.Mutex
	ads      []Ad
	nextID   int64
	lists    int
	failNext bool
	hold     chan struct{}
}

func (s *adServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer secret" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"unauthorized"}`)
		return
	}
	if s.hold != nil && r.Method == http.MethodPost {
		<-s.hold
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext && r.Method == http.MethodPost {
		s.failNext = false
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"database unavailable"}`)
		return
	}
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/admin/ads":
		s.lists++
		_ = json.NewEncoder(w).Encode(map[string]any{"data": s.ads})
	case r.Method == http.MethodPost && r.URL.Path == "/admin/ads":
		var ad Ad
		_ = json.NewDecoder(r.Body).Decode(&ad)
		s.nextID++
		ad.ID = s.nextID
		s.ads = append([]Ad{ad}, s.ads...)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": ad, "message": "created"})
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/admin/ads/delete/"):
		_, _ = io.WriteString(w, `{"message":"deleted"}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *adServer) listCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func newConsole(t *testing.T, backend http.Handler) *tagcache.Store {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	reg := Default(0)
	client, err := transport.New(transport.Config{
		BaseURL: srv.URL,
		Routes:  DefaultRoutes(),
		Tokens:  transport.StaticToken("secret"),
		Decoder: reg,
	})
	if err != nil {
		t.Fatalf("transport.New: %v", err)
	}
	store, err := tagcache.New(tagcache.Options{
		Executor: client,
		Clock:    clockwork.NewFakeClock(),
		Tags:     reg.Tags(),
	})
	if err != nil {
		t.Fatalf("tagcache.New: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = store.Close(ctx)
	})
	return store
}

func settle(t *testing.T, sub *tagcache.Subscription) tagcache.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap, err := sub.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait(%s): %v", sub.Key(), err)
	}
	return snap
}

func TestAddAdConvergesAcrossSubscribers(t *testing.T) {
	backend := &adServer{ads: []Ad{{ID: 1, Image: "old.png", Type: AdForUsers, Extensions: MediaImage}}, nextID: 1, hold: make(chan struct{})}
	store := newConsole(t, backend)

	_, first, err := store.Subscribe(Ads, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	_, second, _ := store.Subscribe(Ads, tagcache.Args{"type": "user"})
	settle(t, first)
	settle(t, second)

	payload := Ad{Image: "new.png", Type: AdForUsers, Extensions: MediaImage}
	placeholder := payload
	placeholder.ID = PlaceholderID
	m := store.Execute(context.Background(), Create(Ads, payload, placeholder))

	for _, sub := range []*tagcache.Subscription{first, second} {
		ads, _ := tagcache.Data[[]Ad](sub.Snapshot())
		if len(ads) != 2 || ads[0].ID != PlaceholderID {
			t.Fatalf("placeholder missing from %s: %+v", sub.Key(), ads)
		}
	}

	close(backend.hold)
	res, err := m.Wait(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.StatusCode != http.StatusCreated || res.Message != "created" {
		t.Fatalf("unexpected result %+v", res)
	}

	want := []Ad{
		{ID: 2, Image: "new.png", Type: AdForUsers, Extensions: MediaImage},
		{ID: 1, Image: "old.png", Type: AdForUsers, Extensions: MediaImage},
	}
	for _, sub := range []*tagcache.Subscription{first, second} {
		if diff := cmp.Diff(want, settle(t, sub).Data); diff != "" {
			t.Fatalf("%s did not converge (-want +got):\n%s", sub.Key(), diff)
		}
	}
	if got := backend.listCount(); got != 4 {
		t.Fatalf("expected each list fetched twice, got %d fetches", got)
	}
}

func TestDeleteAdFailureRestoresList(t *testing.T) {
	backend := &adServer{ads: []Ad{{ID: 5}, {ID: 7}, {ID: 9}}, failNext: true}
	store := newConsole(t, backend)

	_, sub, _ := store.Subscribe(Ads, nil)
	before := settle(t, sub).Data

	_, err := store.Mutate(context.Background(), Delete[Ad](Ads, 7))
	var he *tagcache.HTTPError
	if !errors.As(err, &he) || he.StatusCode != http.StatusInternalServerError || he.Message != "database unavailable" {
		t.Fatalf("expected HTTP 500, got %v", err)
	}
	snap := sub.Snapshot()
	if diff := cmp.Diff(before, snap.Data); diff != "" {
		t.Fatalf("list not restored (-want +got):\n%s", diff)
	}
	if snap.Status != tagcache.StatusSuccess || backend.listCount() != 1 {
		t.Fatalf("failed delete invalidated the list: status=%s fetches=%d", snap.Status, backend.listCount())
	}
}

func TestAddAdToEmptyList(t *testing.T) {
	// an empty backend answers {"data":null}
	backend := &adServer{hold: make(chan struct{})}
	store := newConsole(t, backend)

	_, sub, err := store.Subscribe(Ads, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if snap := settle(t, sub); snap.Data != nil || !snap.HasData {
		t.Fatalf("empty list: data=%v hasData=%v", snap.Data, snap.HasData)
	}

	payload := Ad{Image: "first.png", Type: AdForVendors, Extensions: MediaImage}
	placeholder := payload
	placeholder.ID = PlaceholderID
	m := store.Execute(context.Background(), Create(Ads, payload, placeholder))

	if diff := cmp.Diff([]Ad{placeholder}, sub.Snapshot().Data); diff != "" {
		t.Fatalf("placeholder not shown (-want +got):\n%s", diff)
	}

	close(backend.hold)
	if _, err := m.Wait(context.Background()); err != nil {
		t.Fatalf("create: %v", err)
	}
	want := []Ad{{ID: 1, Image: "first.png", Type: AdForVendors, Extensions: MediaImage}}
	if diff := cmp.Diff(want, settle(t, sub).Data); diff != "" {
		t.Fatalf("list did not converge (-want +got):\n%s", diff)
	}
}
