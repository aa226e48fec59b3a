package freshness_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opendata-tools/freshness/calendar"
	"github.com/opendata-tools/freshness/configs"
	"github.com/opendata-tools/freshness/freshness"
	"github.com/opendata-tools/freshness/metadata"
	"github.com/opendata-tools/freshness/notify"
)

// Wednesday; 2024-06-07 12:00 UTC is exactly three business days earlier.
var (
	testNow          = time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	threeBusinessAgo = time.Date(2024, 6, 7, 12, 0, 0, 0, time.UTC)
)

type fakeClient struct {
	dataset metadata.Dataset
	err     error
	calls   int
}

func (c *fakeClient) Fetch(_ context.Context, id string) (metadata.Dataset, error) {
	c.calls++
	if c.err != nil {
		return metadata.Dataset{}, c.err
	}
	ds := c.dataset
	ds.ID = id
	return ds, nil
}

type delivery struct {
	subject string
	report  string
}

type recorder struct {
	deliveries []delivery
	err        error
}

func (r *recorder) mailer(subject string) notify.Deliverer {
	return notify.DelivererFunc(func(_ context.Context, report string) error {
		r.deliveries = append(r.deliveries, delivery{subject: subject, report: report})
		return r.err
	})
}

func (r *recorder) command() notify.Deliverer {
	return notify.DelivererFunc(func(_ context.Context, report string) error {
		r.deliveries = append(r.deliveries, delivery{report: report})
		return r.err
	})
}

func testConfig(maxDays float64) configs.Config {
	cfg := configs.Default()
	cfg.DatasetID = "abcd-1234"
	cfg.MaxDays = maxDays
	cfg.Location = time.UTC
	return cfg
}

func newChecker(cfg configs.Config, client metadata.Client, rec *recorder, out *bytes.Buffer) *freshness.Checker {
	return freshness.NewChecker(cfg, freshness.Dependencies{
		Client:  client,
		Ages:    freshness.NewAgeCalculator(calendar.New(calendar.NewRegistry(), nil), cfg.Location),
		Mailer:  rec.mailer,
		Command: rec.command(),
		Out:     out,
		Now:     func() time.Time { return testNow },
	})
}

func TestChecker_Current(t *testing.T) {
	t.Parallel()

	// --- given ---
	cfg := testConfig(5)
	cfg.Notify = []string{"a@x.com"}
	client := &fakeClient{dataset: metadata.Dataset{Name: "Streets", LastUpdatedAt: threeBusinessAgo}}
	rec := &recorder{}
	var out bytes.Buffer

	// --- when ---
	res, err := newChecker(cfg, client, rec, &out).Run(context.Background())

	// --- then ---
	require.NoError(t, err)
	assert.Equal(t, freshness.Current, res.Status)
	assert.InDelta(t, 3.0, res.Age.BusinessDays, epsilon)
	assert.InDelta(t, 5.0, res.Age.CalendarDays, epsilon)
	assert.Empty(t, rec.deliveries, "current datasets are not reported")
	assert.Equal(t, "Dataset is CURRENT\n", out.String())
	assert.Equal(t, []string{
		"Dataset Id:     abcd-1234",
		"Dataset URL:    https://data.austintexas.gov/dataset/abcd-1234",
		"Metadata URL:   https://data.austintexas.gov/api/views/abcd-1234",
		"Name:           Streets",
		"Last updated:   2024-06-07 12:00:00 +0000",
		"Dataset age:    3.0 business days / 5.0 calendar days",
		"Max age:        5.0 business days",
		"Dataset status: CURRENT",
	}, res.Report.Lines())
}

func TestChecker_Stale(t *testing.T) {
	t.Parallel()

	// --- given ---
	cfg := testConfig(2)
	cfg.Notify = []string{"a@x.com", "b@y.org"}
	command := "cat > /dev/null"
	cfg.Command = &command
	client := &fakeClient{dataset: metadata.Dataset{Name: "Streets", LastUpdatedAt: threeBusinessAgo}}
	rec := &recorder{}
	var out bytes.Buffer

	// --- when ---
	res, err := newChecker(cfg, client, rec, &out).Run(context.Background())

	// --- then ---
	require.NoError(t, err)
	assert.Equal(t, freshness.Stale, res.Status)
	assert.Equal(t, "Dataset is STALE\nNotifying a@x.com, b@y.org ...\nExecuting cat > /dev/null ...\n", out.String())
	require.Len(t, rec.deliveries, 2)
	assert.Equal(t, "stale dataset report [Streets]", rec.deliveries[0].subject)
	assert.Equal(t, res.Report.String(), rec.deliveries[0].report)
	assert.Equal(t, res.Report.String(), rec.deliveries[1].report)
	assert.Contains(t, res.Report.String(), "Dataset status: STALE\n")
	assert.Contains(t, res.Report.String(), "Max age:        2.0 business days\n")
}

func TestChecker_StaleWithoutDeliveries(t *testing.T) {
	t.Parallel()

	client := &fakeClient{dataset: metadata.Dataset{Name: "Streets", LastUpdatedAt: threeBusinessAgo}}
	rec := &recorder{}
	var out bytes.Buffer

	res, err := newChecker(testConfig(2), client, rec, &out).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, freshness.Stale, res.Status)
	assert.Empty(t, rec.deliveries)
	assert.Equal(t, "Dataset is STALE\n", out.String())
}

func TestChecker_Verbose(t *testing.T) {
	t.Parallel()

	cfg := testConfig(5)
	cfg.Verbose = true
	client := &fakeClient{dataset: metadata.Dataset{Name: "Streets", LastUpdatedAt: threeBusinessAgo}}
	var out bytes.Buffer

	res, err := newChecker(cfg, client, &recorder{}, &out).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, res.Report.String(), out.String(), "verbose echoes the report and skips the summary line")
	assert.NotContains(t, out.String(), "Dataset is")
}

func TestChecker_FetchErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]error{
		"empty metadata":        &metadata.RetrievalError{Err: errors.New("empty metadata object")},
		"missing rowsUpdatedAt": &metadata.MissingFieldError{Field: "rowsUpdatedAt"},
	}
	for name, fetchErr := range tests {
		fetchErr := fetchErr
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(0)
			cfg.Notify = []string{"a@x.com"}
			rec := &recorder{}
			var out bytes.Buffer

			_, err := newChecker(cfg, &fakeClient{err: fetchErr}, rec, &out).Run(context.Background())

			assert.ErrorIs(t, err, fetchErr)
			assert.Empty(t, rec.deliveries)
			assert.Empty(t, out.String(), "no status is reported")
		})
	}
}

func TestChecker_DeliveryFailure(t *testing.T) {
	t.Parallel()

	// --- given ---
	cfg := testConfig(2)
	cfg.Notify = []string{"a@x.com"}
	command := "false"
	cfg.Command = &command
	client := &fakeClient{dataset: metadata.Dataset{Name: "Streets", LastUpdatedAt: threeBusinessAgo}}
	rec := &recorder{err: errors.New("mailer exploded")}
	var out bytes.Buffer

	// --- when ---
	res, err := newChecker(cfg, client, rec, &out).Run(context.Background())

	// --- then ---
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report delivery failed")
	assert.Contains(t, err.Error(), "mailer exploded")
	assert.Len(t, rec.deliveries, 2, "the command still runs after the mailer fails")
	assert.Equal(t, freshness.Stale, res.Status)
	assert.Contains(t, out.String(), "Dataset is STALE\n")
}

func TestChecker_AgeCalculatorWithoutLocation(t *testing.T) {
	t.Parallel()

	// --- given ---
	cfg := testConfig(5)
	client := &fakeClient{dataset: metadata.Dataset{Name: "Streets", LastUpdatedAt: threeBusinessAgo}}
	c := freshness.NewChecker(cfg, freshness.Dependencies{
		Client: client,
		Ages:   &freshness.AgeCalculator{Calendar: calendar.New(calendar.NoHolidays, nil)},
		Now:    func() time.Time { return testNow },
	})

	// --- when ---
	res, err := c.Run(context.Background())

	// --- then ---
	require.NoError(t, err)
	assert.Equal(t, freshness.Current, res.Status)
	assert.Contains(t, res.Report.Lines()[4], threeBusinessAgo.In(time.Local).Format(freshness.TimeLayout))
}
