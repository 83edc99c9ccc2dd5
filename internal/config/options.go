package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mmr-tortoise/solo-cook/internal/model"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. SOLO_COOK_IDENTITY_FILE for --identity-file.
const EnvPrefix = "SOLO_COOK"

// LocalConfigFile is an optional per-kitchen defaults file.
const LocalConfigFile = ".solo-cook.yaml"

// Options is the resolved set of cook command settings.
// Precedence, highest first: command-line flag, SOLO_COOK_* environment
// variable, <kitchen>/.solo-cook.yaml, flag default.
type Options struct {
	Kitchen string `mapstructure:"kitchen" validate:"required,dir"`

	SkipChefCheck bool   `mapstructure:"skip-chef-check"`
	SyncOnly      bool   `mapstructure:"sync-only"`
	WhyRun        bool   `mapstructure:"why-run"`
	NodeName      string `mapstructure:"node-name"`
	Verbosity     int    `mapstructure:"verbose" validate:"gte=0"`

	RunList        []string `mapstructure:"run-list" validate:"dive,required"`
	JSONAttributes string   `mapstructure:"json-attributes" validate:"omitempty,json"`

	IdentityFile    string `mapstructure:"identity-file" validate:"omitempty,file"`
	SSHPort         int    `mapstructure:"ssh-port" validate:"gte=0,lte=65535"`
	SSHConfigFile   string `mapstructure:"ssh-config-file" validate:"omitempty,file"`
	SSHPassword     string `mapstructure:"ssh-password"`
	NoHostKeyVerify bool   `mapstructure:"no-host-key-verify"`

	TraceFile string `mapstructure:"trace-file"`
}

// RunOptions returns the pipeline's immutable option snapshot.
func (o Options) RunOptions() model.RunOptions {
	return model.RunOptions{
		SkipVersionCheck: o.SkipChefCheck,
		SyncOnly:         o.SyncOnly,
		WhyRun:           o.WhyRun,
		NodeName:         o.NodeName,
		Verbosity:        o.Verbosity,
	}
}

// LoadOptions layers flags, environment and the kitchen's .solo-cook.yaml
// into Options and validates the result.
func LoadOptions(flags *pflag.FlagSet) (Options, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := bindFlags(flags, v); err != nil {
		return Options{}, errors.Wrap(err, "failed to bind flags")
	}

	// The kitchen location decides where the defaults file lives, so it is
	// resolved from flags and environment before the file is read.
	kitchen := v.GetString("kitchen")
	if kitchen == "" {
		kitchen = "."
	}
	localConfig := filepath.Join(kitchen, LocalConfigFile)
	if _, err := os.Stat(localConfig); err == nil {
		v.SetConfigFile(localConfig)
		if err := v.ReadInConfig(); err != nil {
			return Options{}, errors.Wrapf(err, "failed to read %s", localConfig)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, errors.Wrap(err, "failed to decode options")
	}
	if opts.Kitchen == "" {
		opts.Kitchen = kitchen
	}

	if err := validator.New().Struct(opts); err != nil {
		return Options{}, errors.Wrap(err, "invalid options")
	}
	return opts, nil
}

// bindFlags binds every flag on the set to the viper instance,
// collecting all binding failures instead of stopping at the first.
func bindFlags(flags *pflag.FlagSet, v *viper.Viper) error {
	var result error
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			result = multierror.Append(result, err)
		}
	})
	return result
}
