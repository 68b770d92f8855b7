/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

// Package wrds holds the connection settings and canned queries for the WRDS Postgres
// service.
package wrds

import (
	"errors"
	"fmt"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Config is everything needed to open a connection. It is loaded once at startup and
// passed explicitly to the remote source.
type Config struct {
	Host     string `env:"WRDS_HOST" envDefault:"wrds-pgdata.wharton.upenn.edu" validate:"required,hostname_rfc1123|ip"`
	Port     int    `env:"WRDS_PORT" envDefault:"9737" validate:"required,min=1,max=65535"`
	User     string `env:"WRDS_USER" validate:"required"`
	Password string `env:"WRDS_PASSWORD" validate:"required"`
	DBName   string `env:"WRDS_DBNAME" envDefault:"wrds" validate:"required"`
	SSLMode  string `env:"WRDS_SSLMODE" envDefault:"require" validate:"oneof=disable allow prefer require verify-ca verify-full"`
}

// LoadConfig reads the existing files among envFiles into the environment without
// overriding variables already set, then parses WRDS_* variables.
func LoadConfig(envFiles ...string) (Config, error) {
	existing := make([]string, 0, len(envFiles))
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return Config{}, fmt.Errorf("failed to load %s: %w", strings.Join(existing, ", "), err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse WRDS environment: %w", err)
	}
	return cfg, nil
}

// ConfigFromMap parses a config from vars instead of the process environment.
func ConfigFromMap(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("failed to parse WRDS environment: %w", err)
	}
	return cfg, nil
}

// WithUserinfo fills the user and password from ui where they are unset.
func (c Config) WithUserinfo(ui *url.Userinfo) Config {
	if ui == nil {
		return c
	}
	if c.User == "" {
		c.User = ui.Username()
	}
	if p, ok := ui.Password(); ok && c.Password == "" {
		c.Password = p
	}
	return c
}

var validate = validator.New()

// Validate reports every missing or malformed field at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("invalid WRDS config: %w", err)
	}
	problems := make([]string, 0, len(ves))
	for _, fe := range ves {
		problems = append(problems, fmt.Sprintf("%s (%s)", envName(fe.StructField()), fe.Tag()))
	}
	return fmt.Errorf("invalid WRDS config: %s", strings.Join(problems, ", "))
}

func envName(field string) string {
	switch field {
	case "DBName":
		return "WRDS_DBNAME"
	case "SSLMode":
		return "WRDS_SSLMODE"
	default:
		return "WRDS_" + strings.ToUpper(field)
	}
}

// ConnString returns a postgres URL for pgx.
func (c Config) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Redacted is ConnString without the password, for logging.
func (c Config) Redacted() string {
	u, err := url.Parse(c.ConnString())
	if err != nil {
		return c.Host
	}
	return u.Redacted()
}
