package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSearch(time.Second)
	m.Mutation("create", nil)
	m.Reload(errors.New("x"))
	m.TaskState("recipes.search", "SUCCESS")
	m.CacheLookup(true)
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.Mutation("create", nil)
	m.Mutation("create", errors.New("boom"))
	m.TaskState("recipes.search", "SUCCESS")
	m.CountFallback()

	if got := testutil.ToFloat64(m.mutations.WithLabelValues("create", "error")); got != 1 {
		t.Errorf("create/error = %v", got)
	}
	if got := testutil.ToFloat64(m.countFallbacks); got != 1 {
		t.Errorf("count fallbacks = %v", got)
	}

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `feinschmecker_tasks_total{state="SUCCESS",task="recipes.search"} 1`) {
		t.Errorf("tasks_total missing from exposition")
	}
}
