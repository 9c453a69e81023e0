package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNotificationMetricsExistAndIncrement(t *testing.T) {
	// Use a test label to avoid colliding with other tests
	lbl := "test-host"

	NotificationSent.WithLabelValues(lbl).Inc()
	if v := testutil.ToFloat64(NotificationSent.WithLabelValues(lbl)); v < 1 {
		t.Fatalf("expected NotificationSent >= 1, got %v", v)
	}

	NotificationFailed.WithLabelValues(lbl).Add(2)
	if v := testutil.ToFloat64(NotificationFailed.WithLabelValues(lbl)); v < 2 {
		t.Fatalf("expected NotificationFailed >= 2, got %v", v)
	}

	before := testutil.ToFloat64(NotificationSkipped)
	NotificationSkipped.Inc()
	if v := testutil.ToFloat64(NotificationSkipped); v != before+1 {
		t.Fatalf("expected NotificationSkipped to increase by 1, got %v (before %v)", v, before)
	}
}

func TestPasswordResetRequestsLabelCardinality(t *testing.T) {
	PasswordResetRequests.Reset()
	defer PasswordResetRequests.Reset()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("PasswordResetRequests panicked: %v", r)
		}
	}()

	PasswordResetRequests.WithLabelValues("issued").Inc()
	if v := testutil.ToFloat64(PasswordResetRequests.WithLabelValues("issued")); v != 1 {
		t.Fatalf("expected metric value 1 after increment, got %v", v)
	}
}

func TestAuditEventsLabels(t *testing.T) {
	AuditEvents.WithLabelValues("log", "success").Inc()
	if v := testutil.ToFloat64(AuditEvents.WithLabelValues("log", "success")); v < 1 {
		t.Fatalf("expected AuditEvents >= 1, got %v", v)
	}
}

func TestMetricsHandlerExposesNotificationCounters(t *testing.T) {
	NotificationSent.WithLabelValues("handler-test").Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "retroquest_notification_sent_total") {
		t.Fatal("expected retroquest_notification_sent_total in metrics output")
	}
}
