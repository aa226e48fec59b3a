package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/opendata-tools/freshness/calendar"
	"github.com/opendata-tools/freshness/configs"
	"github.com/opendata-tools/freshness/freshness"
	"github.com/opendata-tools/freshness/metadata"
	"github.com/opendata-tools/freshness/notify"
	"github.com/opendata-tools/freshness/utils/log"
)

const (
	// Command
	// -------------.
	short = "Check whether an open data portal dataset is up to date"
	long  = "Retrieves the metadata of a dataset, measures its age in business days and reports it.\n" +
		"If the dataset is older than the allowed number of business days it is considered stale\n" +
		"and the report is mailed to the --notify recipients and piped into --command."
	example = "freshness --id=abcd-1234 --maxdays=3 --notify=ops@example.org"

	// Flags.
	// -------------
	idFlag      = "id"
	idDesc      = "data set id -- this must be specified"
	siteFlag    = "site"
	siteDesc    = "data portal hostname"
	maxDaysFlag = "maxdays"
	maxDaysDesc = "dataset older than this number of business days considered stale"
	notifyFlag  = "notify"
	notifyDesc  = "if dataset stale, send report to this email address, repeat option for each recipient"
	mailerFlag  = "mailer"
	mailerDesc  = "use this program to send mail"
	commandFlag = "command"
	commandDesc = "pipe report into this command if dataset is stale"
	verboseFlag = "verbose"
	verboseDesc = "display report created during processing"

	jurisdictionFlag    = "jurisdiction"
	holidaysFlag        = "holidays"
	holidaysDesc        = "JSON file listing additional non-business days"
	timezoneFlag        = "timezone"
	timezoneDesc        = "timezone used to decide calendar dates"
	timeoutFlag         = "timeout"
	timeoutDesc         = "metadata request timeout in seconds"
	deliveryTimeoutFlag = "delivery-timeout"
	deliveryTimeoutDesc = "mail and report command timeout in seconds"
	configFlag          = "config"
	configDesc          = "set the path for a YAML configuration file"
	envFileFlag         = "env-file"
	envFileDesc         = "read FRESHNESS_* settings missing from the environment from this dotenv file"
)

// App runs the freshness command. Zero fields are replaced with the
// process's standard streams, environment, HTTP client and clock.
type App struct {
	Name       string
	Stdout     io.Writer
	Stderr     io.Writer
	Getenv     func(string) string
	HTTPClient *http.Client
	Now        func() time.Time
}

// Execute builds the command from the process arguments and runs it,
// returning the exit code. SIGINT and SIGTERM cancel a running check.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := &App{Name: filepath.Base(os.Args[0])}
	return app.Execute(ctx, os.Args[1:])
}

// Execute runs the command with args and returns the exit code: 0 when a
// status was determined and reported, 1 on any error.
func (app *App) Execute(ctx context.Context, args []string) int {
	app.setDefaults()

	c := newCommand(app)
	c.SetArgs(args)
	c.SetOut(app.Stdout)
	c.SetErr(app.Stderr)

	err := c.ExecuteContext(ctx)
	log.Sync()
	if err == nil {
		return 0
	}

	_, _ = fmt.Fprintf(app.Stderr, "%s: %s\n", app.Name, err)
	var usageErr *configs.UsageError
	if errors.As(err, &usageErr) {
		_, _ = fmt.Fprintf(app.Stderr, "%s (try \"--help\" for help)\n", usageLine(app.Name))
	}
	return 1
}

func usageLine(name string) string {
	return fmt.Sprintf("Usage: %s [OPTION ...]", name)
}

func (app *App) setDefaults() {
	if app.Name == "" {
		app.Name = "freshness"
	}
	if app.Stdout == nil {
		app.Stdout = os.Stdout
	}
	if app.Stderr == nil {
		app.Stderr = os.Stderr
	}
	if app.Getenv == nil {
		app.Getenv = os.Getenv
	}
	if app.Now == nil {
		app.Now = time.Now
	}
}

type flagValues struct {
	id, site, maxDays, mailer, command string
	notify                             []string
	verbose                            bool

	jurisdiction, holidays, timezone string
	timeout, deliveryTimeout         int
	configFile, envFile              string
}

func newCommand(app *App) *cobra.Command {
	var fv flagValues

	c := &cobra.Command{
		Use:           app.Name,
		Short:         short,
		Long:          long,
		Example:       example,
		Args:          validateArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.run(cmd.Context(), fv.overrides(cmd.Flags()))
		},
	}
	c.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &configs.UsageError{Msg: err.Error()}
	})

	def := configs.Default()
	flags := c.Flags()
	flags.SortFlags = false
	flags.StringVarP(&fv.id, idFlag, "i", "", idDesc)
	flags.StringVarP(&fv.site, siteFlag, "s", def.Site, siteDesc)
	flags.StringVarP(&fv.maxDays, maxDaysFlag, "m", fmt.Sprint(def.MaxDays), maxDaysDesc)
	flags.StringArrayVarP(&fv.notify, notifyFlag, "n", nil, notifyDesc)
	flags.StringVarP(&fv.mailer, mailerFlag, "M", def.Mailer, mailerDesc)
	flags.StringVarP(&fv.command, commandFlag, "C", "", commandDesc)
	flags.BoolVarP(&fv.verbose, verboseFlag, "v", false, verboseDesc)
	flags.StringVar(&fv.jurisdiction, jurisdictionFlag, def.Jurisdiction,
		"public holiday calendar, one of "+strings.Join(calendar.NewRegistry().Jurisdictions(), ", "))
	flags.StringVar(&fv.holidays, holidaysFlag, "", holidaysDesc)
	flags.StringVar(&fv.timezone, timezoneFlag, "Local", timezoneDesc)
	flags.IntVar(&fv.timeout, timeoutFlag, int(def.HTTPTimeout/time.Second), timeoutDesc)
	flags.IntVar(&fv.deliveryTimeout, deliveryTimeoutFlag, int(def.DeliveryTimeout/time.Second), deliveryTimeoutDesc)
	flags.StringVar(&fv.configFile, configFlag, "", configDesc)
	flags.StringVar(&fv.envFile, envFileFlag, "", envFileDesc)

	return c
}

func validateArgs(_ *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &configs.UsageError{Msg: "unexpected argument(s): " + strings.Join(args, " ")}
	}
	return nil
}

// overrides keeps only the flags given on the command line so that
// defaults do not mask the config file or the environment.
func (fv *flagValues) overrides(fs *pflag.FlagSet) configs.Overrides {
	o := configs.Overrides{
		Notify:     fv.notify,
		Verbose:    fv.verbose,
		ConfigFile: fv.configFile,
		EnvFile:    fv.envFile,
	}
	changed := func(name string, s *string) *string {
		if fs.Changed(name) {
			return s
		}
		return nil
	}
	o.DatasetID = changed(idFlag, &fv.id)
	o.Site = changed(siteFlag, &fv.site)
	o.MaxDays = changed(maxDaysFlag, &fv.maxDays)
	o.Mailer = changed(mailerFlag, &fv.mailer)
	o.Command = changed(commandFlag, &fv.command)
	o.Jurisdiction = changed(jurisdictionFlag, &fv.jurisdiction)
	o.HolidaysFile = changed(holidaysFlag, &fv.holidays)
	o.Timezone = changed(timezoneFlag, &fv.timezone)
	if fs.Changed(timeoutFlag) {
		d := time.Duration(fv.timeout) * time.Second
		o.HTTPTimeout = &d
	}
	if fs.Changed(deliveryTimeoutFlag) {
		d := time.Duration(fv.deliveryTimeout) * time.Second
		o.DeliveryTimeout = &d
	}
	return o
}

func (app *App) run(ctx context.Context, o configs.Overrides) error {
	cfg, err := configs.Build(o, app.Getenv)
	if err != nil {
		return err
	}
	// --verbose never raises a level that is already lower.
	if cfg.Verbose && log.GetLevel() > log.INFO {
		log.SetLevel(log.INFO)
	}

	var closed *calendar.ClosedDays
	if cfg.HolidaysFile != "" {
		closed, err = calendar.LoadClosedDays(cfg.HolidaysFile)
		if err != nil {
			return err
		}
		log.Info("loaded %d closed days from %s", closed.Len(), cfg.HolidaysFile)
	}
	cal := calendar.New(calendar.NewRegistry(), closed)

	deps := freshness.Dependencies{
		Client: metadata.NewClientWithHTTPClient(cfg.Site, app.httpClient(cfg.HTTPTimeout)),
		Ages:   freshness.NewAgeCalculator(cal, cfg.Location),
		Mailer: func(subject string) notify.Deliverer {
			return &notify.MailDeliverer{
				Mailer:     cfg.Mailer,
				Subject:    subject,
				Recipients: cfg.Notify,
				Timeout:    cfg.DeliveryTimeout,
				Stdout:     app.Stdout,
				Stderr:     app.Stderr,
			}
		},
		Out: app.Stdout,
		Now: app.Now,
	}
	if cfg.Command != nil {
		deps.Command = &notify.CommandDeliverer{
			Command: *cfg.Command,
			Timeout: cfg.DeliveryTimeout,
			Stdout:  app.Stdout,
			Stderr:  app.Stderr,
		}
	}

	_, err = freshness.NewChecker(cfg, deps).Run(ctx)
	return err
}

func (app *App) httpClient(timeout time.Duration) *http.Client {
	if app.HTTPClient == nil {
		return &http.Client{Timeout: timeout}
	}
	hc := *app.HTTPClient
	hc.Timeout = timeout
	return &hc
}
