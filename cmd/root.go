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
	"fmt"
	"github.com/ajjensen13/gke"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajjensen13/crsppanel/internal/util"
)

var rootCmd = &cobra.Command{
	Use:   "crsppanel",
	Short: "Build point-in-time CRSP panels and pivot them into entity by period matrices",
	Long: `crsppanel fetches CRSP tables from WRDS or from local parquet mirrors, joins
observations to their point-in-time exchange listings, and writes every requested
variable as a dense permno by period matrix under <dir>/data/crsp.`,
}

var rootFlags struct {
	dir      string
	envFiles []string
}

// Execute runs the command named on the command line.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.dir, "dir", "", "working directory root; outputs go to <dir>/data/crsp (default from app config, else .)")
	rootCmd.PersistentFlags().StringSliceVar(&rootFlags.envFiles, "env-file", []string{".env"}, "dotenv files holding WRDS_* variables, loaded when present")
}

// commandContext carries lg and is cancelled on interrupt.
func commandContext(lg gke.Logger) (context.Context, context.CancelFunc) {
	ctx := util.WithLogger(context.Background(), lg)
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// settings reads the app config and overlays the root flags set on the command line.
func settings(cmd *cobra.Command) (*appConfig, error) {
	cfg, err := appSettings()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("dir") {
		cfg.Directory = rootFlags.dir
	}
	if cmd.Flags().Changed("env-file") {
		cfg.EnvFiles = rootFlags.envFiles
	}
	return cfg, nil
}

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// sampleRange parses the configured sample. An empty end means today.
func sampleRange(cfg *appConfig) (start, end time.Time, err error) {
	start, err = parseDate(cfg.SampleStart)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if cfg.SampleEnd == "" {
		now := time.Now().UTC()
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	} else if end, err = parseDate(cfg.SampleEnd); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("sample end %s is before sample start %s", end.Format(dateLayout), start.Format(dateLayout))
	}
	return start, end, nil
}
