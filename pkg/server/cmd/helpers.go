/* Copyright 2025 Fieldsync Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package cmd

import (
	"flag"
	"fmt"

	"github.com/custodial/fieldsync/pkg/clock"
	"github.com/custodial/fieldsync/pkg/server/app"
	"github.com/custodial/fieldsync/pkg/server/config"
	"github.com/custodial/fieldsync/pkg/server/database"
	"github.com/pkg/errors"
)

func initApp(cfg config.Config) (app.App, error) {
	db, err := database.Setup(cfg.DBPath)
	if err != nil {
		return app.App{}, errors.Wrap(err, "initializing the database")
	}

	return app.App{
		DB:             db,
		Clock:          clock.New(),
		CSRFKey:        cfg.CSRFKey,
		MaxUploadBytes: cfg.MaxUploadBytes,
		SecureCookies:  cfg.IsProd(),
	}, nil
}

// printFlags prints flags with -- prefix for consistency with the agent CLI
func printFlags(fs *flag.FlagSet) {
	fs.VisitAll(func(f *flag.Flag) {
		fmt.Printf("  --%s", f.Name)

		// Print type hint for non-boolean flags
		name, usage := flag.UnquoteUsage(f)
		if name != "" {
			fmt.Printf(" %s", name)
		}
		fmt.Println()

		if usage != "" {
			fmt.Printf("    \t%s", usage)
			if f.DefValue != "" && f.DefValue != "false" {
				fmt.Printf(" (default: %s)", f.DefValue)
			}
			fmt.Println()
		}
	})
}

// setupFlagSet creates a FlagSet with standard usage format
func setupFlagSet(name, usageCmd string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Printf(`Usage:
  %s [flags]

Flags:
`, usageCmd)
		printFlags(fs)
	}
	return fs
}
