package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/openmorph/metamorph/internal/adapter/auth"
	adapter "github.com/openmorph/metamorph/internal/adapter/http"
	"github.com/openmorph/metamorph/internal/adapter/oracle"
	"github.com/openmorph/metamorph/internal/adapter/sqlite"
	"github.com/openmorph/metamorph/internal/app"
	"github.com/openmorph/metamorph/internal/domain"
)

const adminKey = "test-admin-key"

// noopPublisher is a no-op EventPublisher for tests.
type noopPublisher struct{}

func (p *noopPublisher) Publish(_ context.Context, _ domain.Event, _ domain.Token, _ string) error {
	return nil
}

// stubValidator enforces the stage ladder without the FSM adapter.
type stubValidator struct{}

func (stubValidator) Next(_ context.Context, current domain.Stage) (domain.Stage, error) {
	next, ok := current.Next()
	if !ok {
		return 0, &domain.InvalidTransitionError{From: current, To: current + 1}
	}
	return next, nil
}

type testServer struct {
	*httptest.Server
	now    *time.Time
	manual *oracle.Manual
}

// newTestServer creates a full-stack httptest.Server over a file-backed
// SQLite database, with a controllable clock. withManual wires the
// manual oracle source and the reading-push route.
func newTestServer(t *testing.T, interval time.Duration, maxUpdates int, withManual bool) *testServer {
	t.Helper()

	repo, err := sqlite.New(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("creating test repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	if err := repo.EnsureState(context.Background(), interval, maxUpdates); err != nil {
		t.Fatalf("seeding collection state: %v", err)
	}

	now := time.Now().UTC()
	authorizer := auth.New(adminKey)
	svc := app.NewTokenService(repo, repo, &noopPublisher{}, stubValidator{}, authorizer, "ipfs://test/").
		WithClock(func() time.Time { return now })

	ts := &testServer{now: &now}

	var pusher adapter.ReadingPusher
	if withManual {
		ts.manual = oracle.NewManual()
		svc.WithWeatherSource(ts.manual)
		pusher = ts.manual
	}

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("metamorph", "0.1.0"))
	adapter.Register(api, svc, authorizer, pusher)

	ts.Server = httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return ts
}

func (ts *testServer) advanceClock(d time.Duration) {
	*ts.now = ts.now.Add(d)
}

// doRequest performs an HTTP request, optionally with the admin key.
func doRequest(t *testing.T, method, url, body, key string) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-Admin-Key", key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return out
}

func mustMint(t *testing.T, ts *testServer, owner string) adapter.TokenResponse {
	t.Helper()

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/tokens",
		fmt.Sprintf(`{"owner":%q}`, owner), adminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mint returned status %d", resp.StatusCode)
	}
	return decodeBody[adapter.TokenResponse](t, resp)
}

func TestMintToken(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)

	token := mustMint(t, ts, "0xabc")
	if token.ID == 0 {
		t.Error("minted token should have an id")
	}
	if token.Stage != "baby" {
		t.Errorf("stage = %q, want %q", token.Stage, "baby")
	}
	if token.Owner != "0xabc" {
		t.Errorf("owner = %q, want %q", token.Owner, "0xabc")
	}
}

func TestMintToken_Unauthorized(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/tokens", `{"owner":"0xabc"}`, "wrong")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestGetToken(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)
	minted := mustMint(t, ts, "0xabc")

	resp := doRequest(t, http.MethodGet, fmt.Sprintf("%s/api/v1/tokens/%d", ts.URL, minted.ID), "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := decodeBody[adapter.TokenResponse](t, resp)
	if got.ID != minted.ID || got.Owner != "0xabc" {
		t.Errorf("got %+v", got)
	}
}

func TestGetToken_NotFound(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/tokens/999", "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListTokens(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)
	mustMint(t, ts, "0xa")
	mustMint(t, ts, "0xb")

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/tokens", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	tokens := decodeBody[[]adapter.TokenResponse](t, resp)
	if len(tokens) != 2 {
		t.Errorf("got %d tokens, want 2", len(tokens))
	}
}

func TestListTokens_UnknownStage(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/tokens?stage=cocoon", "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestTokenMetadata(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)
	minted := mustMint(t, ts, "0xabc")

	resp := doRequest(t, http.MethodGet,
		fmt.Sprintf("%s/api/v1/tokens/%d/metadata", ts.URL, minted.ID), "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body := decodeBody[struct {
		Descriptor string `json:"descriptor"`
	}](t, resp)
	if !strings.HasPrefix(body.Descriptor, "data:application/json;base64,") {
		t.Errorf("descriptor %q missing data URI prefix", body.Descriptor)
	}
}

func TestCollectionState(t *testing.T) {
	ts := newTestServer(t, 10*time.Minute, 5, false)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/collection", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	st := decodeBody[adapter.CollectionResponse](t, resp)
	if st.IntervalSeconds != 600 {
		t.Errorf("interval = %d, want 600", st.IntervalSeconds)
	}
	if st.MaxUpdates != 5 {
		t.Errorf("max updates = %d, want 5", st.MaxUpdates)
	}
}

func TestUpkeepFlow(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)
	minted := mustMint(t, ts, "0xabc")

	// Ineligible before the interval.
	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/upkeep/check",
		fmt.Sprintf(`{"token_id":%d}`, minted.ID), "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check status = %d, want 200", resp.StatusCode)
	}
	check := decodeBody[struct {
		Eligible bool            `json:"eligible"`
		Payload  json.RawMessage `json:"payload"`
	}](t, resp)
	if check.Eligible {
		t.Fatal("token should be ineligible before the interval elapses")
	}

	ts.advanceClock(2 * time.Minute)

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/v1/upkeep/check",
		fmt.Sprintf(`{"token_id":%d}`, minted.ID), "")
	check = decodeBody[struct {
		Eligible bool            `json:"eligible"`
		Payload  json.RawMessage `json:"payload"`
	}](t, resp)
	if !check.Eligible || len(check.Payload) == 0 {
		t.Fatalf("expected eligibility with payload, got %+v", check)
	}

	performBody := fmt.Sprintf(`{"payload":%s}`, check.Payload)
	resp = doRequest(t, http.MethodPost, ts.URL+"/api/v1/upkeep/perform", performBody, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("perform status = %d, want 200", resp.StatusCode)
	}
	perform := decodeBody[struct {
		Committed bool `json:"committed"`
	}](t, resp)
	if !perform.Committed {
		t.Fatal("first perform should commit")
	}

	// The token advanced.
	resp = doRequest(t, http.MethodGet, fmt.Sprintf("%s/api/v1/tokens/%d", ts.URL, minted.ID), "", "")
	got := decodeBody[adapter.TokenResponse](t, resp)
	if got.Stage != "child" {
		t.Errorf("stage = %q, want %q", got.Stage, "child")
	}

	// Replaying the payload is a 200 with committed=false.
	resp = doRequest(t, http.MethodPost, ts.URL+"/api/v1/upkeep/perform", performBody, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", resp.StatusCode)
	}
	perform = decodeBody[struct {
		Committed bool `json:"committed"`
	}](t, resp)
	if perform.Committed {
		t.Error("replayed payload must not commit")
	}
}

func TestPerformUpkeep_MalformedPayload(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/upkeep/perform",
		`{"payload":{"kind":"bogus"}}`, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", resp.StatusCode)
	}
}

func TestPushReadingAndWeatherUpkeep(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, true)
	minted := mustMint(t, ts, "0xabc")
	ts.advanceClock(2 * time.Minute)

	// Without data the token stays ineligible even past the interval.
	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/upkeep/check",
		fmt.Sprintf(`{"token_id":%d}`, minted.ID), "")
	check := decodeBody[struct {
		Eligible bool            `json:"eligible"`
		Payload  json.RawMessage `json:"payload"`
	}](t, resp)
	if check.Eligible {
		t.Fatal("no oracle data should mean ineligible")
	}

	reading := `{"timestamp":1767225600,"precipitation_type":"rain","precipitation_1h":0.4,"precipitation_24h":2.1,"pressure_hpa":1009,"temperature_c":-5,"wind_kph":12,"humidity_pct":91,"uv_index":0,"icon":"10d"}`
	resp = doRequest(t, http.MethodPost, ts.URL+"/api/v1/oracle/readings", reading, adminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("push status = %d, want 200", resp.StatusCode)
	}
	pushed := decodeBody[struct {
		RequestID string `json:"request_id"`
	}](t, resp)
	if pushed.RequestID == "" {
		t.Fatal("push should return the assigned request id")
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/v1/upkeep/check",
		fmt.Sprintf(`{"token_id":%d}`, minted.ID), "")
	check = decodeBody[struct {
		Eligible bool            `json:"eligible"`
		Payload  json.RawMessage `json:"payload"`
	}](t, resp)
	if !check.Eligible {
		t.Fatal("fresh reading should make the token eligible")
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/v1/upkeep/perform",
		fmt.Sprintf(`{"payload":%s}`, check.Payload), "")
	perform := decodeBody[struct {
		Committed bool `json:"committed"`
	}](t, resp)
	if !perform.Committed {
		t.Fatal("perform with fresh reading should commit")
	}

	// The consumed request id is now visible in collection state.
	resp = doRequest(t, http.MethodGet, ts.URL+"/api/v1/collection", "", "")
	st := decodeBody[adapter.CollectionResponse](t, resp)
	if st.LatestRequestID != pushed.RequestID {
		t.Errorf("latest request id = %q, want %q", st.LatestRequestID, pushed.RequestID)
	}
	if st.UpdateCount != 1 {
		t.Errorf("update count = %d, want 1", st.UpdateCount)
	}
}

func TestPushReading_Unauthorized(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, true)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/oracle/readings",
		`{"timestamp":1}`, "wrong")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestPushReading_NoManualSource(t *testing.T) {
	ts := newTestServer(t, time.Minute, 0, false)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/oracle/readings",
		`{"timestamp":1}`, adminKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestResetBudget(t *testing.T) {
	ts := newTestServer(t, time.Minute, 2, true)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/collection/budget/reset", "", adminKey)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	st := decodeBody[adapter.CollectionResponse](t, resp)
	if st.UpdateCount != 0 {
		t.Errorf("update count = %d, want 0", st.UpdateCount)
	}
}

func TestResetBudget_Unauthorized(t *testing.T) {
	ts := newTestServer(t, time.Minute, 2, true)

	resp := doRequest(t, http.MethodPost, ts.URL+"/api/v1/collection/budget/reset", "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
