package freshness

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/opendata-tools/freshness/configs"
	"github.com/opendata-tools/freshness/metadata"
	"github.com/opendata-tools/freshness/notify"
	"github.com/opendata-tools/freshness/report"
	"github.com/opendata-tools/freshness/utils/log"
)

// TimeLayout formats timestamps in the report.
const TimeLayout = "2006-01-02 15:04:05 -0700"

// Dependencies are the collaborators of a Checker.
type Dependencies struct {
	Client metadata.Client
	Ages   *AgeCalculator
	// Mailer builds the deliverer used for notification email. It is only
	// called when the dataset is stale and recipients are configured.
	Mailer func(subject string) notify.Deliverer
	// Command is used when the dataset is stale and a report command is configured.
	Command notify.Deliverer
	// Out receives the operator-facing output.
	Out io.Writer
	Now func() time.Time
}

// Result is the outcome of one run.
type Result struct {
	Dataset metadata.Dataset
	Age     AgeMeasurement
	Status  Status
	Report  *report.Report
}

// Checker performs a single freshness check.
type Checker struct {
	cfg  configs.Config
	deps Dependencies
}

func NewChecker(cfg configs.Config, deps Dependencies) *Checker {
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Checker{cfg: cfg, deps: deps}
}

// Run fetches the dataset metadata, measures its age and reports the status.
// When the dataset is stale the report is handed to the configured
// deliverers. Every configured delivery is attempted; their failures are
// returned together after the status has been reported.
func (c *Checker) Run(ctx context.Context) (Result, error) {
	var echo io.Writer
	if c.cfg.Verbose {
		echo = c.deps.Out
	}
	rep := report.New(echo)

	rep.AddField("Dataset Id", c.cfg.DatasetID)
	rep.AddField("Dataset URL", metadata.DatasetURL(c.cfg.Site, c.cfg.DatasetID))
	rep.AddField("Metadata URL", metadata.EndpointURL(c.cfg.Site, c.cfg.DatasetID))

	ds, err := c.deps.Client.Fetch(ctx, c.cfg.DatasetID)
	if err != nil {
		return Result{}, err
	}
	rep.AddField("Name", ds.Name)
	rep.AddField("Last updated", ds.LastUpdatedAt.In(c.deps.Ages.location()).Format(TimeLayout))

	now := c.deps.Now()
	age := c.deps.Ages.ComputeAge(ds.LastUpdatedAt, now, c.cfg.Jurisdiction)
	status := Evaluate(age, c.cfg.MaxDays)
	log.Debug("[freshness] %s: %.3f business days, %.3f calendar days, threshold %.1f",
		c.cfg.DatasetID, age.BusinessDays, age.CalendarDays, c.cfg.MaxDays)

	rep.AddField("Dataset age", fmt.Sprintf("%.1f business days / %.1f calendar days",
		age.BusinessDays, age.CalendarDays))
	rep.AddField("Max age", fmt.Sprintf("%.1f business days", c.cfg.MaxDays))
	rep.AddField("Dataset status", status)
	if !c.cfg.Verbose {
		_, _ = fmt.Fprintf(c.deps.Out, "Dataset is %s\n", status)
	}

	res := Result{Dataset: ds, Age: age, Status: status, Report: rep}
	if status != Stale {
		return res, nil
	}
	return res, c.deliver(ctx, ds, rep.String())
}

func (c *Checker) deliver(ctx context.Context, ds metadata.Dataset, text string) error {
	var errs error

	if len(c.cfg.Notify) > 0 && c.deps.Mailer != nil {
		_, _ = fmt.Fprintf(c.deps.Out, "Notifying %s ...\n", strings.Join(c.cfg.Notify, ", "))
		mailer := c.deps.Mailer(notify.Subject(ds.Name))
		if err := mailer.Deliver(ctx, text); err != nil {
			log.Error("[freshness] mail delivery failed: %v", err)
			errs = multierr.Append(errs, err)
		}
	}

	if c.cfg.Command != nil && c.deps.Command != nil {
		_, _ = fmt.Fprintf(c.deps.Out, "Executing %s ...\n", *c.cfg.Command)
		if err := c.deps.Command.Deliver(ctx, text); err != nil {
			log.Error("[freshness] report command failed: %v", err)
			errs = multierr.Append(errs, err)
		}
	}

	return errors.Wrap(errs, "report delivery failed")
}
