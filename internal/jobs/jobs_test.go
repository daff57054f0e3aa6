package jobs

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eve-market-watch/internal/auth"
	"eve-market-watch/internal/db"
	"eve-market-watch/internal/esi"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// seedUser stores a user whose cached access token stays valid for the
// whole test, so no refresh round trip happens.
func seedUser(t *testing.T, d *db.DB, characterID int32, accessToken string) {
	t.Helper()
	err := d.SaveUser(&db.User{
		CharacterID:  characterID,
		RefreshToken: "refresh-" + accessToken,
		AccessToken:  accessToken,
		TokenExpiry:  time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("seed user %d: %v", characterID, err)
	}
}

func seedWatch(t *testing.T, d *db.DB, w db.Watch) {
	t.Helper()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().Add(-time.Hour)
	}
	if err := d.SaveWatch(&w); err != nil {
		t.Fatalf("seed watch: %v", err)
	}
}

func newTestClient(t *testing.T, handler http.Handler) *esi.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := esi.NewClient()
	c.SetBase(srv.URL)
	return c
}

// newSSOServer answers every refresh with a fixed access token.
func newSSOServer(t *testing.T, accessToken string) *auth.SSOConfig {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"access_token":%q,"expires_in":1200}`, accessToken)
	}))
	t.Cleanup(srv.Close)
	return &auth.SSOConfig{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
}

// newRejectingSSOServer refuses every refresh.
func newRejectingSSOServer(t *testing.T) *auth.SSOConfig {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		fmt.Fprint(w, `{"error":"invalid_grant"}`)
	}))
	t.Cleanup(srv.Close)
	return &auth.SSOConfig{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}
}

func findWatch(t *testing.T, d *db.DB, characterID int32, locationID int64, typeID int32, isBuy bool) db.Watch {
	t.Helper()
	watches, err := d.FindAllWatches()
	if err != nil {
		t.Fatalf("find watches: %v", err)
	}
	for _, w := range watches {
		if w.CharacterID == characterID && w.LocationID == locationID && w.TypeID == typeID && w.IsBuy == isBuy {
			return w
		}
	}
	t.Fatalf("watch %d/%d/%d not found", characterID, locationID, typeID)
	return db.Watch{}
}

func snapshotAmounts(t *testing.T, d *db.DB) map[string]int64 {
	t.Helper()
	snaps, err := d.FindAllSnapshots()
	if err != nil {
		t.Fatalf("find snapshots: %v", err)
	}
	out := make(map[string]int64, len(snaps))
	for _, s := range snaps {
		side := "sell"
		if s.IsBuy {
			side = "buy"
		}
		out[fmt.Sprintf("%d/%d/%s", s.TypeID, s.LocationID, side)] = s.Amount
	}
	return out
}
