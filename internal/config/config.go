// Package config loads izposoja's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Missing fee data policies.
const (
	MissingFeeAllow = "allow"
	MissingFeeDeny  = "deny"
)

// Config is the full application configuration.
type Config struct {
	DB          string      `yaml:"db"`
	Addr        string      `yaml:"addr"`
	Log         string      `yaml:"log"`
	AdminUser   string      `yaml:"admin_user"`
	Circulation Circulation `yaml:"circulation"`
	Reminders   Reminders   `yaml:"reminders"`
}

// Circulation holds the lending policy.
type Circulation struct {
	DefaultLoanDays    int     `yaml:"default_loan_days"`
	MaxLoanDays        int     `yaml:"max_loan_days"`
	DefaultRenewalDays int     `yaml:"default_renewal_days"`
	DailyFineRate      float64 `yaml:"daily_fine_rate"`

	// FeeCheck disables the fee eligibility step entirely when false.
	FeeCheck bool `yaml:"fee_check"`
	// FeeThreshold is the fraction of dues that must be paid to borrow.
	FeeThreshold float64 `yaml:"fee_threshold"`
	// FeePeriod selects the fee period to check. Empty means the latest one.
	FeePeriod string `yaml:"fee_period"`
	// OnMissingFeeData decides requests from borrowers with no fee record,
	// and whether an unreachable fee ledger fails open. "allow" or "deny".
	OnMissingFeeData   string `yaml:"on_missing_fee_data"`
	BlockOnUnpaidFines bool   `yaml:"block_on_unpaid_fines"`

	ReminderLeadDays int `yaml:"reminder_lead_days"`

	DefaultClass string                 `yaml:"default_class"`
	Classes      map[string]ClassLimits `yaml:"classes"`
}

// ClassLimits are the per-borrower-class limits.
type ClassLimits struct {
	MaxActiveLoans int `yaml:"max_active_loans"`
	MaxRenewals    int `yaml:"max_renewals"`
	// LoanDays overrides DefaultLoanDays for the class when non-zero.
	LoanDays int `yaml:"loan_days"`
}

// Reminders configures reminder delivery.
type Reminders struct {
	// WebhookURL receives reminders as JSON. Empty logs them instead.
	WebhookURL string        `yaml:"webhook_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DB:        "izposoja.sqlite3",
		Addr:      ":8080",
		AdminUser: "Admin",
		Circulation: Circulation{
			DefaultLoanDays:    14,
			MaxLoanDays:        60,
			DefaultRenewalDays: 7,
			DailyFineRate:      0.5,
			FeeCheck:           true,
			FeeThreshold:       0.5,
			OnMissingFeeData:   MissingFeeAllow,
			ReminderLeadDays:   2,
			DefaultClass:       "student",
			Classes: map[string]ClassLimits{
				"student": {MaxActiveLoans: 3, MaxRenewals: 1},
				"staff":   {MaxActiveLoans: 5, MaxRenewals: 2, LoanDays: 28},
			},
		},
		Reminders: Reminders{Timeout: 5 * time.Second},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	// A file that lists classes replaces the built-in ones entirely.
	defaults := cfg.Circulation.Classes
	cfg.Circulation.Classes = nil
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if len(cfg.Circulation.Classes) == 0 {
		cfg.Circulation.Classes = defaults
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	return c.Circulation.Validate()
}

// Validate rejects nonsensical circulation policies.
func (c Circulation) Validate() error {
	var errs []error

	if c.DefaultLoanDays <= 0 {
		errs = append(errs, errors.New("default_loan_days must be positive"))
	}
	if c.MaxLoanDays < c.DefaultLoanDays {
		errs = append(errs, errors.New("max_loan_days must be at least default_loan_days"))
	}
	if c.DefaultRenewalDays <= 0 {
		errs = append(errs, errors.New("default_renewal_days must be positive"))
	}
	if c.DailyFineRate < 0 {
		errs = append(errs, errors.New("daily_fine_rate must not be negative"))
	}
	if c.FeeThreshold < 0 || c.FeeThreshold > 1 {
		errs = append(errs, errors.New("fee_threshold must be between 0 and 1"))
	}
	if c.OnMissingFeeData != MissingFeeAllow && c.OnMissingFeeData != MissingFeeDeny {
		errs = append(errs, fmt.Errorf("on_missing_fee_data must be %q or %q", MissingFeeAllow, MissingFeeDeny))
	}
	if c.ReminderLeadDays < 0 {
		errs = append(errs, errors.New("reminder_lead_days must not be negative"))
	}
	if _, ok := c.Classes[c.DefaultClass]; !ok {
		errs = append(errs, fmt.Errorf("default_class %q has no limits", c.DefaultClass))
	}
	for name, l := range c.Classes {
		if l.MaxActiveLoans <= 0 {
			errs = append(errs, fmt.Errorf("class %s: max_active_loans must be positive", name))
		}
		if l.MaxRenewals < 0 {
			errs = append(errs, fmt.Errorf("class %s: max_renewals must not be negative", name))
		}
		if l.LoanDays < 0 || l.LoanDays > c.MaxLoanDays {
			errs = append(errs, fmt.Errorf("class %s: loan_days must be between 0 and max_loan_days", name))
		}
	}

	return errors.Join(errs...)
}

// Limits returns the limits for class, falling back to the default class
// for unknown or empty class names.
func (c Circulation) Limits(class string) ClassLimits {
	if l, ok := c.Classes[class]; ok {
		return l
	}
	return c.Classes[c.DefaultClass]
}

// LoanDays returns the standard loan period for class.
func (c Circulation) LoanDays(class string) int {
	if d := c.Limits(class).LoanDays; d > 0 {
		return d
	}
	return c.DefaultLoanDays
}
