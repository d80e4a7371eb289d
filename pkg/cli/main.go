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

package main

import (
	"os"
	"strings"

	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/pkg/errors"

	// commands
	"github.com/custodial/fieldsync/pkg/cli/cmd/capture"
	"github.com/custodial/fieldsync/pkg/cli/cmd/cleanup"
	"github.com/custodial/fieldsync/pkg/cli/cmd/daemon"
	"github.com/custodial/fieldsync/pkg/cli/cmd/export"
	"github.com/custodial/fieldsync/pkg/cli/cmd/ls"
	"github.com/custodial/fieldsync/pkg/cli/cmd/recover"
	"github.com/custodial/fieldsync/pkg/cli/cmd/remove"
	"github.com/custodial/fieldsync/pkg/cli/cmd/root"
	"github.com/custodial/fieldsync/pkg/cli/cmd/status"
	"github.com/custodial/fieldsync/pkg/cli/cmd/sync"
	"github.com/custodial/fieldsync/pkg/cli/cmd/version"
)

// apiEndpoint and versionTag are populated during link time
var apiEndpoint string
var versionTag = "master"

// parseFlag extracts the value of a persistent flag from the command line
// arguments regardless of where it appears (before or after the subcommand).
// Returns empty string if not found.
func parseFlag(args []string, name string) string {
	flag := "--" + name

	for i, arg := range args {
		if strings.HasPrefix(arg, flag+"=") {
			return strings.TrimPrefix(arg, flag+"=")
		}
		if arg == flag && i+1 < len(args) {
			return args[i+1]
		}
	}

	return ""
}

func main() {
	// The context is built before cobra parses the flags, so the persistent
	// flags that shape it are read by hand.
	dbPath := parseFlag(os.Args[1:], "dbPath")

	ctx, err := infra.Init(versionTag, apiEndpoint, dbPath)
	if err != nil {
		panic(errors.Wrap(err, "initializing context"))
	}
	defer ctx.DB.Close()

	if endpoint := parseFlag(os.Args[1:], "apiEndpoint"); endpoint != "" {
		ctx.Config.APIEndpoint = endpoint
	}

	root.Register(capture.NewCmd(*ctx))
	root.Register(sync.NewCmd(*ctx))
	root.Register(status.NewCmd(*ctx))
	root.Register(recover.NewCmd(*ctx))
	root.Register(ls.NewCmd(*ctx))
	root.Register(remove.NewCmd(*ctx))
	root.Register(cleanup.NewCmd(*ctx))
	root.Register(export.NewCmd(*ctx))
	root.Register(daemon.NewCmd(*ctx))
	root.Register(version.NewCmd(*ctx))

	if err := root.Execute(); err != nil {
		log.Errorf("%s\n", err.Error())
		ctx.DB.Close()
		os.Exit(1)
	}
}
