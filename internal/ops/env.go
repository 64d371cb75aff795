package ops

import (
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/yanun0323/errors"

	"paperdesk/pkg/conn"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PAPER_"

type envOverrides struct {
	PostgresDSN string `env:"POSTGRES_DSN"`
}

// ApplyEnv overlays PAPER_* variables on l. When envFile is set it is read
// on every call and merged under the process environment, so real variables
// win over the file. Only variables that are present override l; the result
// is validated.
func ApplyEnv(l *Loaded, envFile string) error {
	vars := env.ToMap(os.Environ())
	if envFile != "" {
		fileVars, err := godotenv.Read(envFile)
		if err != nil {
			return errors.Wrap(err, "read env file").With("path", envFile)
		}
		for k, v := range fileVars {
			if _, ok := vars[k]; !ok {
				vars[k] = v
			}
		}
	}

	opts := env.Options{Prefix: EnvPrefix, Environment: vars}
	if err := env.ParseWithOptions(&l.Venue.Risk, opts); err != nil {
		return errors.Wrap(err, "parse venue risk env")
	}

	var extra envOverrides
	if err := env.ParseWithOptions(&extra, opts); err != nil {
		return errors.Wrap(err, "parse env")
	}
	if extra.PostgresDSN != "" {
		if l.Feature.Postgres == nil {
			l.Feature.Postgres = &conn.Option{}
		}
		l.Feature.Postgres.ConnString = extra.PostgresDSN
	}
	return l.Validate()
}

// LoadAll resolves defaults, then the config file when path is set, then
// the environment.
func LoadAll(path, envFile string) (Loaded, error) {
	loaded := Default()
	if path != "" {
		var err error
		if loaded, err = Load(path); err != nil {
			return Loaded{}, err
		}
	}
	if err := ApplyEnv(&loaded, envFile); err != nil {
		return Loaded{}, err
	}
	return loaded, nil
}
