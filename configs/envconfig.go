package configs

import (
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Settings that differ between hosts (portal, mail program, holiday
// jurisdiction) can be overridden by environment variables so the same
// config file can be shared. Variables missing from the process environment
// are looked up in the dotenv file, if one is given.
const (
	EnvSite            = "FRESHNESS_SITE"
	EnvMaxDays         = "FRESHNESS_MAX_DAYS"
	EnvMailer          = "FRESHNESS_MAILER"
	EnvJurisdiction    = "FRESHNESS_JURISDICTION"
	EnvHolidays        = "FRESHNESS_HOLIDAYS"
	EnvTimezone        = "FRESHNESS_TIMEZONE"
	EnvHTTPTimeout     = "FRESHNESS_HTTP_TIMEOUT"
	EnvDeliveryTimeout = "FRESHNESS_DELIVERY_TIMEOUT"
)

func envLookup(envFile string, getenv func(string) string) (func(string) string, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	if envFile == "" {
		return getenv, nil
	}

	dotenv, err := godotenv.Read(envFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read env file %s", envFile)
	}
	return func(key string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}, nil
}

// envOverride updates some configs by environment variables.
func envOverride(config *Config, getenv func(string) string) error {
	if site := getenv(EnvSite); site != "" {
		config.Site = site
	}

	if maxDays := getenv(EnvMaxDays); maxDays != "" {
		days, err := ParseThreshold(maxDays)
		if err != nil {
			return errors.Wrap(err, EnvMaxDays)
		}
		config.MaxDays = days
	}

	if mailer := getenv(EnvMailer); mailer != "" {
		config.Mailer = mailer
	}

	if jurisdiction := getenv(EnvJurisdiction); jurisdiction != "" {
		config.Jurisdiction = jurisdiction
	}

	if holidays := getenv(EnvHolidays); holidays != "" {
		config.HolidaysFile = holidays
	}

	if tz := getenv(EnvTimezone); tz != "" {
		loc, err := ParseLocation(tz)
		if err != nil {
			return errors.Wrap(err, EnvTimezone)
		}
		config.Location = loc
	}

	if timeout := getenv(EnvHTTPTimeout); timeout != "" {
		d, err := parseSeconds(timeout)
		if err != nil {
			return errors.Wrap(err, EnvHTTPTimeout)
		}
		config.HTTPTimeout = d
	}

	if timeout := getenv(EnvDeliveryTimeout); timeout != "" {
		d, err := parseSeconds(timeout)
		if err != nil {
			return errors.Wrap(err, EnvDeliveryTimeout)
		}
		config.DeliveryTimeout = d
	}

	return nil
}

// parseSeconds accepts either a number of seconds or a Go duration string.
func parseSeconds(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errors.Errorf("invalid timeout %q", s)
	}
	return d, nil
}
