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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"github.com/ajjensen13/config"
	"github.com/ajjensen13/gke"
	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ajjensen13/crsppanel/internal/extract"
	"github.com/ajjensen13/crsppanel/internal/panel"
	"github.com/ajjensen13/crsppanel/internal/runlog"
	"github.com/ajjensen13/crsppanel/internal/wrds"
)

const (
	dbSecretName  = "crsppanel-db-secret.json"
	appConfigName = "crsppanel-config-cm.json"
)

const (
	sourceRemote  = "remote"
	sourceParquet = "parquet"
)

type appConfig struct {
	Directory          string   `json:"directory"`
	SampleStart        string   `json:"sample_start"`
	SampleEnd          string   `json:"sample_end"`
	DomComEq           *bool    `json:"dom_com_eq"`
	Granularity        string   `json:"granularity"`
	Variables          []string `json:"variables"`
	Workers            int      `json:"workers"`
	Source             string   `json:"source"`
	EnvFiles           []string `json:"env_files"`
	LedgerPath         string   `json:"ledger_path"`
	MigrationSourceURL string   `json:"migration_source_url"`
}

type (
	workDir         string
	sourceKind      string
	envFiles        []string
	ledgerPath      string
	migrationSource string
)

func (c *appConfig) setDefaults() {
	if c.Directory == "" {
		c.Directory = "."
	}
	if c.SampleStart == "" {
		c.SampleStart = "1926-01-01"
	}
	if c.DomComEq == nil {
		domComEq := true
		c.DomComEq = &domComEq
	}
	if c.Granularity == "" {
		c.Granularity = "month"
	}
	if len(c.Variables) == 0 {
		c.Variables = append([]string(nil), panel.DefaultVariables...)
	}
	if c.Source == "" {
		c.Source = sourceRemote
	}
	if len(c.EnvFiles) == 0 {
		c.EnvFiles = []string{".env"}
	}
	if c.MigrationSourceURL == "" {
		c.MigrationSourceURL = "file://migrations"
	}
}

// provideAppConfig reads the app config map. Running without one is allowed.
func provideAppConfig() (*appConfig, error) {
	var result appConfig
	err := config.InterfaceJson(appConfigName, &result)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", appConfigName, err)
	}
	result.setDefaults()
	return &result, nil
}

func provideWorkDir(cfg *appConfig) workDir {
	return workDir(cfg.Directory)
}

func provideSourceKind(cfg *appConfig) sourceKind {
	return sourceKind(cfg.Source)
}

func provideEnvFiles(cfg *appConfig) envFiles {
	return envFiles(cfg.EnvFiles)
}

func provideLedgerPath(cfg *appConfig, dir workDir) ledgerPath {
	if cfg.LedgerPath != "" {
		return ledgerPath(cfg.LedgerPath)
	}
	return ledgerPath(filepath.Join(string(dir), "data", "crsppanel.db"))
}

func provideMigrationSource(cfg *appConfig) migrationSource {
	return migrationSource(cfg.MigrationSourceURL)
}

// provideDbSecrets reads WRDS credentials from the secret mount, if there is one.
func provideDbSecrets() (*url.Userinfo, error) {
	ui, err := config.Userinfo(dbSecretName)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dbSecretName, err)
	}
	return ui, nil
}

func provideWrdsConfig(files envFiles, ui *url.Userinfo) (wrds.Config, error) {
	cfg, err := wrds.LoadConfig(files...)
	if err != nil {
		return wrds.Config{}, err
	}
	cfg = cfg.WithUserinfo(ui)
	if err := cfg.Validate(); err != nil {
		return wrds.Config{}, err
	}
	return cfg, nil
}

func provideBackoff() backoff.BackOff {
	result := backoff.NewExponentialBackOff()
	result.InitialInterval = time.Second
	result.MaxElapsedTime = 5 * time.Minute
	return result
}

func provideBackoffNotifier(lg gke.Logger) backoff.Notify {
	return func(err error, duration time.Duration) {
		lg.Warning(gke.NewFmtMsgData("request failed, waiting %v before retrying: %v", duration, err))
	}
}

func provideRemote(ctx context.Context, lg gke.Logger, cfg wrds.Config, bo backoff.BackOff, bon backoff.Notify) (*extract.Remote, func(), error) {
	lg.Defaultf("connecting to %s", cfg.Redacted())
	r, err := extract.Dial(ctx, cfg, bo, bon)
	if err != nil {
		return nil, func() {}, err
	}
	return r, r.Close, nil
}

// provideSource picks the remote service or the local parquet mirror. Credentials are only
// required for the remote service.
func provideSource(ctx context.Context, lg gke.Logger, kind sourceKind, dir workDir, files envFiles, ui *url.Userinfo, bo backoff.BackOff, bon backoff.Notify) (extract.Source, func(), error) {
	switch kind {
	case sourceParquet:
		lg.Defaultf("reading tables from parquet mirror under %s", dir)
		return extract.Parquet{Root: string(dir)}, func() {}, nil
	case sourceRemote:
		cfg, err := provideWrdsConfig(files, ui)
		if err != nil {
			return nil, func() {}, err
		}
		return provideRemote(ctx, lg, cfg, bo, bon)
	default:
		return nil, func() {}, fmt.Errorf("unknown source %q: expected %s or %s", kind, sourceRemote, sourceParquet)
	}
}

func provideLogger() (lg gke.Logger, cleanup func()) {
	lg, cleanup, err := gke.NewLogger(context.Background())
	if err != nil {
		panic(err)
	}

	gke.LogEnv(lg)
	gke.LogMetadata(lg)

	return lg, cleanup
}

func provideMigrator(lg gke.Logger, source migrationSource, path ledgerPath) (m *migrate.Migrate, cleanup func(), err error) {
	m, err = runlog.Migrator(string(source), string(path))
	if err != nil {
		return nil, func() {}, err
	}
	m.Log = migrationLogger{lg}
	return m, func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			lg.Warningf("failed to close migration source: %v", srcErr)
		}
		if dbErr != nil {
			lg.Warningf("failed to close migration database: %v", dbErr)
		}
	}, nil
}

// provideLedger opens the run ledger, migrating it first.
func provideLedger(ctx context.Context, lg gke.Logger, m *migrate.Migrate, path ledgerPath) (*runlog.Ledger, func(), error) {
	if err := runlog.MigrateUp(m); err != nil {
		return nil, func() {}, fmt.Errorf("failed to migrate run ledger %s: %w", path, err)
	}
	l, err := runlog.Open(ctx, string(path))
	if err != nil {
		return nil, func() {}, err
	}
	return l, func() {
		if err := l.Close(); err != nil {
			lg.Warningf("failed to close run ledger: %v", err)
		}
	}, nil
}

type migrationLogger struct {
	gke.Logger
}

func (m migrationLogger) Printf(format string, v ...interface{}) {
	m.Defaultf(format, v...)
}

func (m migrationLogger) Verbose() bool {
	return false
}
