// Package configs builds the immutable run configuration of a freshness
// check. Values are layered, lowest priority first: built-in defaults, the
// YAML config file, environment variables (optionally read from a dotenv
// file) and finally flags given on the command line.
package configs

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/opendata-tools/freshness/calendar"
	"github.com/opendata-tools/freshness/metadata"
	"github.com/opendata-tools/freshness/notify"
)

// DefaultMaxDays is the staleness threshold in business days.
const DefaultMaxDays = 5.0

// Config is the run configuration. It is built once by Build and passed by value.
type Config struct {
	DatasetID string  `validate:"required"`
	Site      string  `validate:"required,hostname|hostname_port"`
	MaxDays   float64 `validate:"gte=0"`
	// Notify lists the recipients of the stale dataset report. Local
	// mailbox names and aliases are passed to the mailer as given.
	Notify []string `validate:"dive,required"`
	Mailer string   `validate:"required"`
	// Command is the report command, nil when none is configured.
	Command *string `validate:"-"`
	Verbose bool

	Jurisdiction string `validate:"required"`
	// HolidaysFile is an optional closed days file, empty when not configured.
	HolidaysFile    string
	Location        *time.Location `validate:"-"`
	HTTPTimeout     time.Duration  `validate:"gt=0"`
	DeliveryTimeout time.Duration  `validate:"gt=0"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Site:            metadata.DefaultSite,
		MaxDays:         DefaultMaxDays,
		Mailer:          notify.DefaultMailer,
		Jurisdiction:    calendar.DefaultJurisdiction,
		Location:        time.Local,
		HTTPTimeout:     metadata.DefaultTimeout,
		DeliveryTimeout: notify.DefaultTimeout,
	}
}

// UsageError is a problem with how the program was invoked.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return e.Msg }

// Overrides are the values given explicitly on the command line. A nil
// pointer means the flag was not given.
type Overrides struct {
	DatasetID    *string
	Site         *string
	MaxDays      *string
	Notify       []string
	Mailer       *string
	Command      *string
	Verbose      bool
	Jurisdiction *string
	HolidaysFile *string
	Timezone     *string
	HTTPTimeout  *time.Duration
	// DeliveryTimeout bounds each mail or report command run.
	DeliveryTimeout *time.Duration

	ConfigFile string
	EnvFile    string
}

// Build layers defaults, the config file, the environment and overrides
// into a validated Config. getenv is usually os.Getenv.
func Build(o Overrides, getenv func(string) string) (Config, error) {
	cfg := Default()

	if o.ConfigFile != "" {
		data, err := os.ReadFile(o.ConfigFile)
		if err != nil {
			return Config{}, errors.Wrap(err, "failed to read configuration file")
		}
		if err := cfg.parseFile(data); err != nil {
			return Config{}, errors.Wrapf(err, "failed to parse configuration file %s", o.ConfigFile)
		}
	}

	lookup, err := envLookup(o.EnvFile, getenv)
	if err != nil {
		return Config{}, err
	}
	if err := envOverride(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.applyOverrides(o); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyOverrides(o Overrides) error {
	if o.DatasetID != nil {
		c.DatasetID = *o.DatasetID
	}
	if o.Site != nil {
		c.Site = *o.Site
	}
	if o.MaxDays != nil {
		days, err := ParseThreshold(*o.MaxDays)
		if err != nil {
			return err
		}
		c.MaxDays = days
	}
	if len(o.Notify) > 0 {
		c.Notify = append([]string(nil), o.Notify...)
	}
	if o.Mailer != nil {
		c.Mailer = *o.Mailer
	}
	if o.Command != nil {
		cmd := *o.Command
		c.Command = &cmd
	}
	if o.Verbose {
		c.Verbose = true
	}
	if o.Jurisdiction != nil {
		c.Jurisdiction = *o.Jurisdiction
	}
	if o.HolidaysFile != nil {
		c.HolidaysFile = *o.HolidaysFile
	}
	if o.Timezone != nil {
		loc, err := ParseLocation(*o.Timezone)
		if err != nil {
			return err
		}
		c.Location = loc
	}
	if o.HTTPTimeout != nil {
		c.HTTPTimeout = *o.HTTPTimeout
	}
	if o.DeliveryTimeout != nil {
		c.DeliveryTimeout = *o.DeliveryTimeout
	}
	return nil
}

// Validate checks the configuration. A missing dataset id is a UsageError.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatasetID) == "" {
		return &UsageError{Msg: "dataset id (--id) not specified"}
	}
	if c.Command != nil && strings.TrimSpace(*c.Command) == "" {
		return errors.New("report command (--command) is empty")
	}
	if c.Location == nil {
		return errors.New("timezone is not set")
	}

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Errorf("invalid %s %q (%s)", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return errors.Wrap(err, "invalid configuration")
	}

	if !holidays.Supports(c.Jurisdiction) {
		return errors.Errorf("unknown jurisdiction %q, expected one of %s",
			c.Jurisdiction, strings.Join(holidays.Jurisdictions(), ", "))
	}
	return nil
}

var (
	validate = validator.New()
	holidays = calendar.NewRegistry()
)

// ParseThreshold parses a staleness threshold in business days. Integer and
// real notations are both accepted; negative and non-finite values are not.
func ParseThreshold(s string) (float64, error) {
	days, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Errorf("invalid max days %q: not a number", s)
	}
	if math.IsNaN(days) || math.IsInf(days, 0) || days < 0 {
		return 0, errors.Errorf("invalid max days %q: must be a non-negative number", s)
	}
	return days, nil
}

// ParseLocation resolves a timezone name. "Local" and "" mean the
// process's local timezone.
func ParseLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(strings.TrimSpace(name))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timezone %q", name)
	}
	return loc, nil
}

// parseFile applies a YAML config file:
//
//	site: data.austintexas.gov
//	max_days: 5
//	notify: [ops@example.org]
//	mailer: mail
//	command: logger -t freshness
//	jurisdiction: us
//	holidays: /etc/freshness/closed.json
//	timezone: America/Chicago
//	http_timeout: 30       # seconds
//	delivery_timeout: 60   # seconds
func (c *Config) parseFile(data []byte) error {
	var aux struct {
		Site            string   `yaml:"site"`
		MaxDays         *float64 `yaml:"max_days"`
		Notify          []string `yaml:"notify"`
		Mailer          string   `yaml:"mailer"`
		Command         *string  `yaml:"command"`
		Verbose         bool     `yaml:"verbose"`
		Jurisdiction    string   `yaml:"jurisdiction"`
		Holidays        string   `yaml:"holidays"`
		Timezone        string   `yaml:"timezone"`
		HTTPTimeout     int      `yaml:"http_timeout"`
		DeliveryTimeout int      `yaml:"delivery_timeout"`
	}
	if err := yaml.UnmarshalStrict(data, &aux); err != nil {
		return err
	}

	if aux.Site != "" {
		c.Site = aux.Site
	}
	if aux.MaxDays != nil {
		days, err := ParseThreshold(strconv.FormatFloat(*aux.MaxDays, 'f', -1, 64))
		if err != nil {
			return err
		}
		c.MaxDays = days
	}
	if len(aux.Notify) > 0 {
		c.Notify = aux.Notify
	}
	if aux.Mailer != "" {
		c.Mailer = aux.Mailer
	}
	if aux.Command != nil {
		c.Command = aux.Command
	}
	c.Verbose = c.Verbose || aux.Verbose
	if aux.Jurisdiction != "" {
		c.Jurisdiction = aux.Jurisdiction
	}
	if aux.Holidays != "" {
		c.HolidaysFile = aux.Holidays
	}
	if aux.Timezone != "" {
		loc, err := ParseLocation(aux.Timezone)
		if err != nil {
			return err
		}
		c.Location = loc
	}
	if aux.HTTPTimeout > 0 {
		c.HTTPTimeout = time.Duration(aux.HTTPTimeout) * time.Second
	}
	if aux.DeliveryTimeout > 0 {
		c.DeliveryTimeout = time.Duration(aux.DeliveryTimeout) * time.Second
	}
	return nil
}
