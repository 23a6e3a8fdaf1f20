package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/complaints/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/complaints/{id}", "418"))
	for _, id := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/complaints/"+id, nil))
		if rr.Code != http.StatusTeapot {
			t.Fatalf("expected 418, got %d", rr.Code)
		}
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/complaints/{id}", "418"))
	if after-before != 2 {
		t.Fatalf("expected 2 requests on the route pattern, got %v", after-before)
	}
}

func TestRecordHelpers(t *testing.T) {
	allow := authorizationDecisions.WithLabelValues("mutate", "allow")
	deny := authorizationDecisions.WithLabelValues("mutate", "deny")
	allowBefore, denyBefore := testutil.ToFloat64(allow), testutil.ToFloat64(deny)

	RecordAuthorizationDecision("mutate", true)
	RecordAuthorizationDecision("mutate", false)
	RecordAuthorizationDecision("mutate", false)

	if got := testutil.ToFloat64(allow) - allowBefore; got != 1 {
		t.Fatalf("expected 1 allow, got %v", got)
	}
	if got := testutil.ToFloat64(deny) - denyBefore; got != 2 {
		t.Fatalf("expected 2 denies, got %v", got)
	}

	failed := eventsPublished.WithLabelValues("complaint.created", "error")
	failedBefore := testutil.ToFloat64(failed)
	RecordEventPublished("complaint.created", errors.New("broker down"))
	if got := testutil.ToFloat64(failed) - failedBefore; got != 1 {
		t.Fatalf("expected 1 failed publish, got %v", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	RecordComplaintCreated("roads")

	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "hazardwatch_complaints_created_total") {
		t.Fatalf("expected complaint counter in exposition")
	}
}
