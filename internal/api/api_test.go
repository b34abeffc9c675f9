package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/starford/feinschmecker/internal/apperr"
	"github.com/starford/feinschmecker/internal/graph"
	"github.com/starford/feinschmecker/internal/models"
	"github.com/starford/feinschmecker/internal/mutation"
	"github.com/starford/feinschmecker/internal/recipes"
	"github.com/starford/feinschmecker/internal/respcache"
	"github.com/starford/feinschmecker/internal/tasks"
	"github.com/starford/feinschmecker/internal/testutil"
)

const pancakes = `{"title":"Pancakes","instructions":"Mix. Fry.","ingredients":["2 eggs","200g flour"],` +
	`"time":15,"difficulty":1,"vegan":false,"vegetarian":true,"calories":350,"protein":10,"author":"Alice"}`

type testEnv struct {
	router  http.Handler
	queue   *tasks.LocalQueue
	version atomic.Int64
}

type envOptions struct {
	authToken   string
	source      recipes.Source
	noWorker    bool
	closedQueue bool
	cors        []string
	ready       func() bool
}

// newEnv wires a graph store, engine, response cache, local task queue and
// worker behind the router, the way serve does.
func newEnv(t *testing.T, o envOptions) *testEnv {
	t.Helper()
	env := &testEnv{}

	source := o.source
	if source == nil {
		source = recipes.StoreSource{Store: testutil.TestStore(t)}
	}
	cache, err := respcache.New(respcache.Config{TTL: time.Minute}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(cache.Close)

	svc := recipes.NewService(source, nil, nil)
	eng := mutation.NewEngine(source,
		mutation.WithPlaceholders(true),
		mutation.WithHook(func(context.Context, mutation.Change) {
			env.version.Add(1)
			cache.Clear()
		}))

	backend, err := tasks.OpenBadger("", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { backend.Close() })

	env.queue = tasks.NewLocalQueue(2, 16)
	if o.closedQueue {
		env.queue.Close()
	}
	if !o.noWorker && !o.closedQueue {
		w := tasks.NewWorker(backend, tasks.DefaultLimits())
		tasks.RegisterRecipeHandlers(w, svc, eng)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = w.Run(ctx, env.queue)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}

	env.router = NewRouter(Deps{
		Recipes:     svc,
		Engine:      eng,
		Dispatcher:  tasks.NewDispatcher(env.queue, backend),
		Cache:       cache,
		Version:     func(context.Context) int64 { return env.version.Load() },
		AuthEnabled: o.authToken != "",
		AuthToken:   o.authToken,
		CORSOrigins: o.cors,
		Ready:       o.ready,
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	Meta     *Meta           `json:"meta"`
	Message  string          `json:"message"`
	Fallback bool            `json:"fallback"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, into any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	if into != nil {
		if err := json.Unmarshal(env.Data, into); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return env
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body struct {
		Error ErrorDetail `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return body.Error
}

func (e *testEnv) submit(t *testing.T, method, target, body string) string {
	t.Helper()
	w := e.do(t, method, target, body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("%s %s = %d, body = %s", method, target, w.Code, w.Body.String())
	}
	var acc TaskAccepted
	decodeEnvelope(t, w, &acc)
	if acc.TaskID == "" {
		t.Fatal("empty task id")
	}
	return acc.TaskID
}

// wait polls a task until it reaches a terminal state.
func (e *testEnv) wait(t *testing.T, id string) (TaskStatus, envelope) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := e.do(t, http.MethodGet, "/recipes/tasks/"+id, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
		}
		var st TaskStatus
		env := decodeEnvelope(t, w, &st)
		if tasks.State(st.State).Terminal() {
			return st, env
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not finish", id)
	return TaskStatus{}, envelope{}
}

func TestPancakesEndToEnd(t *testing.T) {
	env := newEnv(t, envOptions{})

	w := env.do(t, http.MethodPost, "/recipes/crud", pancakes)
	if w.Code != http.StatusOK {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	var ref RecipeRef
	decodeEnvelope(t, w, &ref)
	if ref.ID != "pancakes" {
		t.Fatalf("id = %q, want pancakes", ref.ID)
	}

	id := env.submit(t, http.MethodGet, "/recipes?ingredients=egg&time=20", "")
	st, e := env.wait(t, id)
	if st.State != string(tasks.StateSuccess) {
		t.Fatalf("state = %s, error = %s", st.State, st.Error)
	}
	var page models.SearchPage
	if err := json.Unmarshal(st.Result, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Recipes) != 1 {
		t.Fatalf("recipes = %d, want 1", len(page.Recipes))
	}
	got := page.Recipes[0]
	if got.Name != "Pancakes" || got.Time != 15 {
		t.Errorf("record = %+v", got)
	}
	if strings.Join(got.Ingredients, "|") != "2 eggs|200g flour" {
		t.Errorf("ingredients = %v", got.Ingredients)
	}
	if e.Meta == nil || e.Meta.Total != 1 || e.Meta.TotalPages != 1 {
		t.Errorf("meta = %+v", e.Meta)
	}
}

func TestSearchReusesTaskUntilGraphChanges(t *testing.T) {
	env := newEnv(t, envOptions{noWorker: true})

	first := env.submit(t, http.MethodGet, "/recipes?vegan=true", "")
	again := env.submit(t, http.MethodGet, "/recipes?vegan=true", "")
	if first != again {
		t.Errorf("same filters submitted twice: %s, %s", first, again)
	}
	other := env.submit(t, http.MethodGet, "/recipes?vegan=false", "")
	if other == first {
		t.Error("different filters share a task")
	}

	if w := env.do(t, http.MethodPost, "/recipes/crud", pancakes); w.Code != http.StatusOK {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}
	after := env.submit(t, http.MethodGet, "/recipes?vegan=true", "")
	if after == first {
		t.Error("task reused across graph versions")
	}
}

func TestSearchValidation(t *testing.T) {
	env := newEnv(t, envOptions{})

	w := env.do(t, http.MethodGet, "/recipes?meal_type=Brunch&difficulty=9", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	e := decodeError(t, w)
	if e.Code != CodeValidation {
		t.Errorf("code = %s", e.Code)
	}
	details, _ := e.Details.(map[string]any)
	for _, key := range []string{"meal_type", "difficulty"} {
		if _, ok := details[key]; !ok {
			t.Errorf("details missing %s: %v", key, e.Details)
		}
	}
}

func TestSearchFallsBackWhenQueueUnavailable(t *testing.T) {
	env := newEnv(t, envOptions{closedQueue: true})
	if w := env.do(t, http.MethodPost, "/recipes/crud", pancakes); w.Code != http.StatusOK {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/recipes?ingredients=flour", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res SearchResult
	e := decodeEnvelope(t, w, &res)
	if !e.Fallback {
		t.Error("fallback not set")
	}
	if len(res.Recipes) != 1 || res.Recipes[0].ID != "pancakes" {
		t.Errorf("recipes = %+v", res.Recipes)
	}
}

type noStore struct{}

func (noStore) Acquire(context.Context) (*graph.Store, error) { return nil, apperr.ErrNoStoreLoaded }

func TestSearchDualFailure(t *testing.T) {
	env := newEnv(t, envOptions{closedQueue: true, source: noStore{}})

	w := env.do(t, http.MethodGet, "/recipes", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	e := decodeError(t, w)
	if e.Code != CodeSearchFailed {
		t.Errorf("code = %s", e.Code)
	}
	details, _ := e.Details.(map[string]any)
	if !strings.Contains(details["submit"].(string), "closed") {
		t.Errorf("submit reason = %v", details["submit"])
	}
	if !strings.Contains(details["sync"].(string), "not loaded") {
		t.Errorf("sync reason = %v", details["sync"])
	}
}

func TestUnknownTaskIsPending(t *testing.T) {
	env := newEnv(t, envOptions{})
	w := env.do(t, http.MethodGet, "/recipes/tasks/nope", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st TaskStatus
	decodeEnvelope(t, w, &st)
	if st.State != string(tasks.StatePending) || st.TaskID != "nope" {
		t.Errorf("status = %+v", st)
	}
}

func TestCRUD(t *testing.T) {
	env := newEnv(t, envOptions{})

	if w := env.do(t, http.MethodPost, "/recipes/crud", pancakes); w.Code != http.StatusOK {
		t.Fatalf("create = %d, body = %s", w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodPost, "/recipes/crud", `{"title":"pancakes ","instructions":"Again."}`)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Code != CodeAlreadyExists {
		t.Errorf("duplicate = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPatch, "/recipes/crud/pancakes", `{"time":25,"ingredients":["3 eggs"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/recipes/crud/pancakes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var rec Recipe
	decodeEnvelope(t, w, &rec)
	if rec.Time != 25 || len(rec.Ingredients) != 1 || rec.Ingredients[0] != "3 eggs" {
		t.Errorf("after update = %+v", rec)
	}
	if rec.Author != "Alice" || !rec.Vegetarian {
		t.Errorf("untouched fields changed: %+v", rec)
	}

	if w := env.do(t, http.MethodDelete, "/recipes/crud/pancakes", ""); w.Code != http.StatusOK {
		t.Fatalf("delete = %d, body = %s", w.Code, w.Body.String())
	}
	w = env.do(t, http.MethodGet, "/recipes/crud/pancakes", "")
	if w.Code != http.StatusNotFound || decodeError(t, w).Code != CodeNotFound {
		t.Errorf("get deleted = %d, body = %s", w.Code, w.Body.String())
	}
	if w := env.do(t, http.MethodDelete, "/recipes/crud/pancakes", ""); w.Code != http.StatusNotFound {
		t.Errorf("delete missing = %d", w.Code)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	env := newEnv(t, envOptions{})

	cases := []struct {
		name, body, field string
	}{
		{"no title", `{"instructions":"Mix."}`, "title"},
		{"bad difficulty", `{"title":"Soup","instructions":"Boil.","difficulty":7}`, "difficulty"},
		{"bad meal type", `{"title":"Soup","instructions":"Boil.","meal_type":"Brunch"}`, "meal_type"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/recipes/crud", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
			}
			e := decodeError(t, w)
			details, _ := e.Details.(map[string]any)
			if _, ok := details[tc.field]; !ok {
				t.Errorf("details = %v, want %s", e.Details, tc.field)
			}
		})
	}

	w := env.do(t, http.MethodPost, "/recipes/crud", `{"title":`)
	if w.Code != http.StatusBadRequest || decodeError(t, w).Code != CodeValidation {
		t.Errorf("malformed body = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAsyncCreateAndDelete(t *testing.T) {
	env := newEnv(t, envOptions{})

	id := env.submit(t, http.MethodPost, "/recipes", pancakes)
	st, _ := env.wait(t, id)
	if st.State != string(tasks.StateSuccess) {
		t.Fatalf("create state = %s, error = %s", st.State, st.Error)
	}
	if w := env.do(t, http.MethodGet, "/recipes/crud/pancakes", ""); w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}

	id = env.submit(t, http.MethodPost, "/recipes/crud?async=true", pancakes)
	st, _ = env.wait(t, id)
	if st.State != string(tasks.StateFailure) || st.ErrorKind != string(tasks.KindPermanent) {
		t.Errorf("duplicate create = %+v", st)
	}

	id = env.submit(t, http.MethodDelete, "/recipes/pancakes", "")
	st, _ = env.wait(t, id)
	if st.State != string(tasks.StateSuccess) {
		t.Fatalf("delete state = %s, error = %s", st.State, st.Error)
	}
	if w := env.do(t, http.MethodGet, "/recipes/crud/pancakes", ""); w.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d", w.Code)
	}
}

func TestAsyncCreateValidatesBeforeQueueing(t *testing.T) {
	env := newEnv(t, envOptions{noWorker: true})
	w := env.do(t, http.MethodPost, "/recipes", `{"instructions":"Mix."}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if n := env.queue.Depth(); n != 0 {
		t.Errorf("queued %d tasks", n)
	}
}

func TestAsyncSubmitFailure(t *testing.T) {
	env := newEnv(t, envOptions{closedQueue: true})
	w := env.do(t, http.MethodDelete, "/recipes/pancakes", "")
	if w.Code != http.StatusServiceUnavailable || decodeError(t, w).Code != CodeUnavailable {
		t.Errorf("status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestAuthTokenMode(t *testing.T) {
	env := newEnv(t, envOptions{authToken: "secret"})

	w := env.do(t, http.MethodGet, "/recipes/crud/pancakes", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/recipes/crud/pancakes", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("with token = %d, want 404", rec.Code)
	}

	if w := env.do(t, http.MethodGet, "/health/live", ""); w.Code != http.StatusOK {
		t.Errorf("health behind auth: %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t, envOptions{cors: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/recipes", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestReadiness(t *testing.T) {
	var loaded atomic.Bool
	env := newEnv(t, envOptions{ready: loaded.Load})

	if w := env.do(t, http.MethodGet, "/health/ready", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("not loaded = %d", w.Code)
	}
	loaded.Store(true)
	if w := env.do(t, http.MethodGet, "/health/ready", ""); w.Code != http.StatusOK {
		t.Errorf("loaded = %d", w.Code)
	}
}
