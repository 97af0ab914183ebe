package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ewilliams-labs/otodoki/internal/auth"
	"github.com/ewilliams-labs/otodoki/internal/core/domain"
	"github.com/ewilliams-labs/otodoki/internal/core/services"
	"github.com/ewilliams-labs/otodoki/internal/queue"
	"github.com/ewilliams-labs/otodoki/internal/worker"
)

const testSecret = "test-secret-test-secret-test-secret"

// --- Mocks ---

// memoryRepo is an in-memory evaluation store keyed by user.
type memoryRepo struct {
	mu    sync.Mutex
	evals map[string][]domain.EvaluatedTrack
	plays map[string][]domain.PlayedTrack
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		evals: make(map[string][]domain.EvaluatedTrack),
		plays: make(map[string][]domain.PlayedTrack),
	}
}

func (m *memoryRepo) TracksByStatus(ctx context.Context, userID string, status domain.EvaluationStatus) ([]domain.TrackCache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TrackCache
	for _, et := range m.evals[userID] {
		if et.Evaluation.Status == status {
			tc, _ := domain.NewTrackCache(et.Track, domain.SourceITunes)
			out = append(out, tc)
		}
	}
	return out, nil
}

func (m *memoryRepo) SaveEvaluation(ctx context.Context, track domain.TrackCache, eval domain.Evaluation) (domain.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	eval.ID = uuid.NewString()
	eval.ExternalTrackID = track.ExternalID
	list := m.evals[eval.UserID]
	for i := range list {
		if list[i].Track.ID == track.ExternalID {
			list[i].Evaluation = eval
			return eval, nil
		}
	}
	m.evals[eval.UserID] = append(list, domain.EvaluatedTrack{Evaluation: eval, Track: track.ToTrack()})
	return eval, nil
}

func (m *memoryRepo) ListEvaluations(ctx context.Context, userID string, status domain.EvaluationStatus, limit int) ([]domain.EvaluatedTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EvaluatedTrack
	for _, et := range m.evals[userID] {
		if status == "" || et.Evaluation.Status == status {
			out = append(out, et)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) DeleteEvaluation(ctx context.Context, userID string, externalTrackID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.evals[userID]
	for i := range list {
		if list[i].Track.ID == externalTrackID {
			m.evals[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memoryRepo) RecordPlay(ctx context.Context, track domain.TrackCache, play domain.Play) (domain.Play, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	play.ID = uuid.NewString()
	play.ExternalTrackID = track.ExternalID
	play.PlayedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	// Most recent first.
	m.plays[play.UserID] = append([]domain.PlayedTrack{{Play: play, Track: track.ToTrack()}}, m.plays[play.UserID]...)
	return play, nil
}

func (m *memoryRepo) ListPlays(ctx context.Context, userID string, limit int) ([]domain.PlayedTrack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.PlayedTrack(nil), m.plays[userID]...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockWorker struct {
	stats     worker.Stats
	triggerOK bool
	triggered int
}

func (m *mockWorker) Stats() worker.Stats { return m.stats }

func (m *mockWorker) TriggerRefill(ctx context.Context) bool {
	m.triggered++
	return m.triggerOK
}

type mockRefill struct {
	mu    sync.Mutex
	users []string
}

func (m *mockRefill) RequestRefill(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, userID)
	return true
}

type staticStrategies []string

func (s staticStrategies) Names() []string { return s }

// --- Helpers ---

type testEnv struct {
	handler *Handler
	queue   *queue.Manager
	repo    *memoryRepo
	worker  *mockWorker
	refill  *mockRefill
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	q, err := queue.NewManager(queue.NewMemoryStore(), 10, 2, logger)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	repo := newMemoryRepo()
	refill := &mockRefill{}
	w := &mockWorker{triggerOK: true}

	suggestions := services.NewSuggestionsService(
		q, refill,
		services.NewPersonalizationService(services.NewPreferenceAnalyzer(repo, logger), logger),
		services.SuggestionsConfig{DefaultLimit: 3, MaxLimit: 5},
		logger,
	)
	evaluations := services.NewEvaluationService(repo, services.NewPreferenceAnalyzer(repo, logger), logger)

	h := NewHandler(Deps{
		Suggestions: suggestions,
		Evaluations: evaluations,
		History:     services.NewPlayHistoryService(repo, logger),
		Queue:       q,
		Worker:      w,
		Strategies:  staticStrategies{"chart_keyword", "user_preference_search"},
		Auth:        auth.NewValidator(testSecret),
	}, cfg, logger)

	return &testEnv{handler: h, queue: q, repo: repo, worker: w, refill: refill}
}

func (e *testEnv) fill(t *testing.T, tracks ...domain.Track) {
	t.Helper()
	if _, err := e.queue.Enqueue(context.Background(), tracks); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, target, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func like(t *testing.T, env *testEnv, userID string, track domain.Track) {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"track": track, "status": "like"})
	rec := env.do(t, http.MethodPost, "/api/v1/evaluations", string(body), tokenFor(t, userID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("like: got %d, body %s", rec.Code, rec.Body.String())
	}
}

// --- Tests ---

func TestHandler_Health(t *testing.T) {
	env := newTestEnv(t, Config{ServiceName: "otodoki-test"})
	rec := env.do(t, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	got := decode[healthResponse](t, rec)
	if got.Status != "ok" || got.Service != "otodoki-test" || got.Timestamp == "" {
		t.Fatalf("health: got %+v", got)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestHandler_RequestIDPassthrough(t *testing.T) {
	env := newTestEnv(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("request id: got %q, want abc-123", got)
	}
}

func TestHandler_QueueHealth(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.fill(t, domain.Track{ID: "1"})

	rec := env.do(t, http.MethodGet, "/queue/health", "", "")
	got := decode[queueHealthResponse](t, rec)
	if got.Status != "low" || !got.IsLowWatermark || got.QueueSize != 1 || got.Capacity != 10 {
		t.Fatalf("queue health: got %+v", got)
	}

	env.fill(t, domain.Track{ID: "2"}, domain.Track{ID: "3"}, domain.Track{ID: "4"})
	got = decode[queueHealthResponse](t, env.do(t, http.MethodGet, "/queue/health", "", ""))
	if got.Status != "healthy" {
		t.Fatalf("queue health: got %+v", got)
	}
}

func TestHandler_Worker(t *testing.T) {
	tests := []struct {
		name       string
		triggerOK  bool
		wantStatus int
	}{
		{name: "Refill completes", triggerOK: true, wantStatus: http.StatusOK},
		{name: "Refill refused", triggerOK: false, wantStatus: http.StatusConflict},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			env.worker.triggerOK = tc.triggerOK
			rec := env.do(t, http.MethodPost, "/worker/trigger-refill", "", "")
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d", rec.Code, tc.wantStatus)
			}
			if env.worker.triggered != 1 {
				t.Fatalf("trigger calls: got %d, want 1", env.worker.triggered)
			}
		})
	}

	env := newTestEnv(t, Config{})
	env.worker.stats = worker.Stats{Running: true, TotalRefills: 4}
	got := decode[worker.Stats](t, env.do(t, http.MethodGet, "/worker/stats", "", ""))
	if !got.Running || got.TotalRefills != 4 {
		t.Fatalf("worker stats: got %+v", got)
	}
}

func TestHandler_WorkerDisabled(t *testing.T) {
	h := NewHandler(Deps{}, Config{}, zerolog.Nop())

	for _, tc := range []struct {
		method string
		target string
	}{
		{method: http.MethodPost, target: "/worker/trigger-refill"},
		{method: http.MethodGet, target: "/worker/stats"},
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: got %d, want 503", tc.method, tc.target, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), errCodeUnavailable) {
			t.Fatalf("%s %s: body %s lacks %s", tc.method, tc.target, rec.Body.String(), errCodeUnavailable)
		}
	}
}

func TestHandler_GetSuggestions(t *testing.T) {
	jazz := domain.Track{ID: "j1", Title: "Blue", Artist: "Jazz Trio", Genre: "Jazz"}
	rock := domain.Track{ID: "r1", Title: "Loud", Artist: "Rock Band", Genre: "Rock"}
	pop := domain.Track{ID: "p1", Title: "Sweet", Artist: "Idol", Genre: "Pop"}
	userID := uuid.NewString()

	tests := []struct {
		name             string
		target           string
		token            func(t *testing.T) string
		wantStatus       int
		wantIDs          []string
		wantPersonalized bool
	}{
		{
			name:       "Anonymous keeps queue order",
			target:     "/api/v1/tracks/suggestions",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"j1", "r1", "p1"},
		},
		{
			name:       "Limit and exclusions",
			target:     "/api/v1/tracks/suggestions?limit=1&excludeIds=j1,%20r1",
			wantStatus: http.StatusOK,
			wantIDs:    []string{"p1"},
		},
		{
			name:       "Non-numeric limit",
			target:     "/api/v1/tracks/suggestions?limit=ten",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Invalid token is anonymous",
			target:     "/api/v1/tracks/suggestions",
			token:      func(t *testing.T) string { return "garbage" },
			wantStatus: http.StatusOK,
			wantIDs:    []string{"j1", "r1", "p1"},
		},
		{
			name:             "Authenticated user is personalized",
			target:           "/api/v1/tracks/suggestions",
			token:            func(t *testing.T) string { return tokenFor(t, userID) },
			wantStatus:       http.StatusOK,
			wantIDs:          []string{"r1", "j1", "p1"},
			wantPersonalized: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			for i := range 3 {
				like(t, env, userID, domain.Track{ID: "liked-" + string(rune('a'+i)), Title: "t", Artist: "Rock Band", Genre: "Rock"})
			}
			env.fill(t, jazz, rock, pop)

			token := ""
			if tc.token != nil {
				token = tc.token(t)
			}
			rec := env.do(t, http.MethodGet, tc.target, "", token)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}

			got := decode[services.SuggestionsResponse](t, rec)
			ids := make([]string, len(got.Data))
			for i, tr := range got.Data {
				ids[i] = tr.ID
			}
			if strings.Join(ids, ",") != strings.Join(tc.wantIDs, ",") {
				t.Fatalf("ids: got %v, want %v", ids, tc.wantIDs)
			}
			if got.Meta.Personalized != tc.wantPersonalized {
				t.Fatalf("personalized: got %v, want %v", got.Meta.Personalized, tc.wantPersonalized)
			}
			if got.Meta.Delivered != len(tc.wantIDs) {
				t.Fatalf("delivered: got %d, want %d", got.Meta.Delivered, len(tc.wantIDs))
			}
		})
	}
}

func TestHandler_GetSuggestions_LowQueueRequestsUserRefill(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.fill(t, domain.Track{ID: "a"}, domain.Track{ID: "b"})
	userID := uuid.NewString()

	rec := env.do(t, http.MethodGet, "/api/v1/tracks/suggestions?limit=1", "", tokenFor(t, userID))
	got := decode[services.SuggestionsResponse](t, rec)
	if !got.Meta.RefillTriggered {
		t.Fatalf("expected refill to be triggered: %+v", got.Meta)
	}
	if len(env.refill.users) != 1 || env.refill.users[0] != userID {
		t.Fatalf("refill users: got %v, want [%s]", env.refill.users, userID)
	}
}

func TestHandler_GetSuggestions_RateLimited(t *testing.T) {
	env := newTestEnv(t, Config{SuggestionsRate: 0.5, SuggestionsBurst: 1})
	env.fill(t, domain.Track{ID: "a"}, domain.Track{ID: "b"})

	if rec := env.do(t, http.MethodGet, "/api/v1/tracks/suggestions", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: got %d, want 200", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/v1/tracks/suggestions", "", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}

	stats := decode[limiterStatsResponse](t, env.do(t, http.MethodGet, "/api/v1/tracks/suggestions/stats", "", ""))
	if !stats.Enabled || stats.Burst != 1 || stats.RatePerSecond != 0.5 {
		t.Fatalf("limiter stats: got %+v", stats)
	}
}

func TestHandler_Evaluations(t *testing.T) {
	userID := uuid.NewString()
	validBody := `{"track":{"id":"101","title":"Song","artist":"Rock Band","genre":"Rock"},"status":"LIKE"}`

	tests := []struct {
		name        string
		method      string
		target      string
		body        string
		contentType string
		auth        bool
		seed        bool
		wantStatus  int
		wantBody    string
	}{
		{name: "No token", method: http.MethodPost, target: "/api/v1/evaluations", body: validBody, wantStatus: http.StatusUnauthorized},
		{name: "Create", method: http.MethodPost, target: "/api/v1/evaluations", body: validBody, auth: true, wantStatus: http.StatusCreated, wantBody: `"source":"swipe"`},
		{name: "Bad status", method: http.MethodPost, target: "/api/v1/evaluations", body: `{"track":{"id":"1","title":"a","artist":"b"},"status":"meh"}`, auth: true, wantStatus: http.StatusBadRequest},
		{name: "Missing track id", method: http.MethodPost, target: "/api/v1/evaluations", body: `{"track":{"title":"a","artist":"b"},"status":"like"}`, auth: true, wantStatus: http.StatusBadRequest, wantBody: "ID"},
		{name: "Malformed json", method: http.MethodPost, target: "/api/v1/evaluations", body: `{"track":`, auth: true, wantStatus: http.StatusBadRequest},
		{name: "Wrong content type", method: http.MethodPost, target: "/api/v1/evaluations", body: validBody, contentType: "text/plain", auth: true, wantStatus: http.StatusUnsupportedMediaType},
		{name: "List", method: http.MethodGet, target: "/api/v1/evaluations?status=like", auth: true, seed: true, wantStatus: http.StatusOK, wantBody: `"external_track_id":"101"`},
		{name: "List empty", method: http.MethodGet, target: "/api/v1/evaluations", auth: true, wantStatus: http.StatusOK, wantBody: `"data":[]`},
		{name: "List bad status", method: http.MethodGet, target: "/api/v1/evaluations?status=meh", auth: true, wantStatus: http.StatusBadRequest},
		{name: "Delete", method: http.MethodDelete, target: "/api/v1/evaluations/101", auth: true, seed: true, wantStatus: http.StatusNoContent},
		{name: "Delete missing", method: http.MethodDelete, target: "/api/v1/evaluations/404", auth: true, wantStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, Config{})
			if tc.seed {
				like(t, env, userID, domain.Track{ID: "101", Title: "Song", Artist: "Rock Band", Genre: "Rock"})
			}

			var body *strings.Reader
			if tc.body != "" {
				body = strings.NewReader(tc.body)
			} else {
				body = strings.NewReader("")
			}
			req := httptest.NewRequest(tc.method, tc.target, body)
			if tc.body != "" {
				ct := tc.contentType
				if ct == "" {
					ct = "application/json; charset=utf-8"
				}
				req.Header.Set("Content-Type", ct)
			}
			if tc.auth {
				req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
			}
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantBody != "" && !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Fatalf("body: %s does not contain %s", rec.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestHandler_History(t *testing.T) {
	userID := uuid.NewString()
	env := newTestEnv(t, Config{})
	token := tokenFor(t, userID)

	rec := env.do(t, http.MethodPost, "/api/v1/history", `{"track":{"id":"101","title":"Song","artist":"Band","duration_ms":30000},"played_ms":30000}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/history", `{"track":{"id":"101","title":"Song","artist":"Band","duration_ms":30000},"played_ms":30000}`, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("record: got %d, body %s", rec.Code, rec.Body.String())
	}
	play := decode[domain.Play](t, rec)
	if !play.Completed || play.Source != services.DefaultPlaySource || play.ExternalTrackID != "101" {
		t.Fatalf("play: got %+v", play)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/history", `{"track":{"id":"102","title":"Other","artist":"Band"},"played_ms":-5}`, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative played_ms: got %d, want 400", rec.Code)
	}

	env.do(t, http.MethodPost, "/api/v1/history", `{"track":{"id":"102","title":"Other","artist":"Band"},"played_ms":1000,"source":"radio"}`, token)

	list := decode[historyListResponse](t, env.do(t, http.MethodGet, "/api/v1/history?limit=1", "", token))
	if len(list.Data) != 1 || list.Data[0].Track.ID != "102" || list.Data[0].Play.Source != "radio" {
		t.Fatalf("history: got %+v", list.Data)
	}

	other := decode[historyListResponse](t, env.do(t, http.MethodGet, "/api/v1/history", "", tokenFor(t, uuid.NewString())))
	if len(other.Data) != 0 {
		t.Fatalf("other user's history: got %+v", other.Data)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/history?limit=0", "", token); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: got %d, want 400", rec.Code)
	}
}

func TestHandler_ExportEvaluations(t *testing.T) {
	userID := uuid.NewString()
	env := newTestEnv(t, Config{})
	token := tokenFor(t, userID)
	like(t, env, userID, domain.Track{ID: "101", Title: "Song, with comma", Artist: "Rock Band", Genre: "Rock"})
	like(t, env, userID, domain.Track{ID: "102", Title: "Two", Artist: "Pop Star", Genre: "Pop"})

	tests := []struct {
		name        string
		target      string
		wantStatus  int
		wantType    string
		wantFile    string
		wantContain []string
	}{
		{
			name:        "Default json",
			target:      "/api/v1/export/evaluations",
			wantStatus:  http.StatusOK,
			wantType:    "application/json",
			wantFile:    ".json",
			wantContain: []string{`"user_id":"` + userID + `"`, `"external_track_id":"102"`},
		},
		{
			name:        "Csv",
			target:      "/api/v1/export/evaluations?format=csv",
			wantStatus:  http.StatusOK,
			wantType:    "text/csv",
			wantFile:    ".csv",
			wantContain: []string{"track_id,title,artist", `101,"Song, with comma",Rock Band,,Rock,LIKE,swipe`},
		},
		{
			name:       "Unknown format",
			target:     "/api/v1/export/evaluations?format=xml",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tc.target, "", token)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status: got %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantStatus != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, tc.wantType) {
				t.Fatalf("content type: got %q, want %q", ct, tc.wantType)
			}
			if cd := rec.Header().Get("Content-Disposition"); !strings.HasPrefix(cd, "attachment;") || !strings.Contains(cd, tc.wantFile) {
				t.Fatalf("content disposition: got %q", cd)
			}
			for _, want := range tc.wantContain {
				if !strings.Contains(rec.Body.String(), want) {
					t.Fatalf("body %s does not contain %s", rec.Body.String(), want)
				}
			}
		})
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/export/evaluations", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", rec.Code)
	}

	// Download links carry the token in the query string.
	rec := env.do(t, http.MethodGet, "/api/v1/export/evaluations?format=csv&"+auth.AccessTokenParam+"="+token, "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "102,Two,Pop Star") {
		t.Fatalf("query token export: got %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandler_ExportHistory(t *testing.T) {
	userID := uuid.NewString()
	env := newTestEnv(t, Config{})
	token := tokenFor(t, userID)
	env.do(t, http.MethodPost, "/api/v1/history", `{"track":{"id":"101","title":"Song","artist":"Band","genre":"Rock"},"played_ms":1500}`, token)

	rec := env.do(t, http.MethodGet, "/api/v1/export/history?format=csv", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", rec.Code, rec.Body.String())
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("rows: got %d, want 2 (%q)", len(lines), rec.Body.String())
	}
	if !strings.HasPrefix(lines[1], "101,Song,Band,,Rock,1500,false,preview,2026-01-02T03:04:05Z") {
		t.Fatalf("row: got %q", lines[1])
	}

	got := decode[historyExport](t, env.do(t, http.MethodGet, "/api/v1/export/history", "", token))
	if got.UserID != userID || len(got.Plays) != 1 {
		t.Fatalf("json export: got %+v", got)
	}
}

func TestHandler_Preferences(t *testing.T) {
	env := newTestEnv(t, Config{})
	userID := uuid.NewString()
	token := tokenFor(t, userID)

	rec := env.do(t, http.MethodGet, "/api/v1/preferences", "", token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404", rec.Code)
	}
	if got := decode[preferencesResponse](t, rec); got.Available {
		t.Fatalf("expected unavailable preferences: %+v", got)
	}

	for _, id := range []string{"1", "2", "3"} {
		like(t, env, userID, domain.Track{ID: id, Title: "t", Artist: "Rock Band", Genre: "Rock"})
	}
	rec = env.do(t, http.MethodGet, "/api/v1/preferences", "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	got := decode[preferencesResponse](t, rec)
	if !got.Available || got.LikedCount != 3 || got.Preferences == nil {
		t.Fatalf("preferences: got %+v", got)
	}
	if top := got.Preferences.TopGenres(1); len(top) != 1 || top[0] != "Rock" {
		t.Fatalf("top genre: got %v", top)
	}
}

func TestHandler_Strategies(t *testing.T) {
	env := newTestEnv(t, Config{})
	got := decode[strategiesResponse](t, env.do(t, http.MethodGet, "/api/v1/strategies", "", ""))
	if len(got.Data) != 2 || got.Data[1] != "user_preference_search" {
		t.Fatalf("strategies: got %v", got.Data)
	}
}

func TestHandler_Metrics(t *testing.T) {
	env := newTestEnv(t, Config{})
	env.do(t, http.MethodGet, "/health", "", "")
	rec := env.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "otodoki_http_requests_total") {
		t.Fatalf("metrics output missing http counter")
	}
}
