package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-rfq/internal/domain"
)

func TestCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.OrderSubmitted()
	c.OrderSubmitted()
	c.DuplicateRejected()
	c.OutcomeRecorded(domain.StatusCompleted)
	c.OutcomeRecorded(domain.StatusExpired)
	c.OutcomeRecorded(domain.StatusExpired)
	c.ActiveNegotiations(3)
	c.ObserveActivity("BookOrder", true, 20*time.Millisecond)
	c.ObserveActivity("BookOrder", false, time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(c.submitted), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.duplicates), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.outcomes.WithLabelValues("EXPIRED")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.outcomes.WithLabelValues("COMPLETED")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(c.active), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(c.activities))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.OrderSubmitted()

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "rfq_orders_submitted_total 1")
}
