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

package daemon

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/custodial/fieldsync/pkg/cli/consts"
	fcontext "github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/daemon"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/netwatch"
	"github.com/spf13/cobra"
)

var example = `
 * Run in the foreground, logging to the console and the log file
 fieldsync daemon

 * Capture photos copied to a directory
 fieldsync daemon --inbox ~/DCIM`

var inboxFlag string

// NewCmd returns a new daemon command
func NewCmd(ctx fcontext.FieldCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Short:   "Sync in the background whenever the server is reachable",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVar(&inboxFlag, "inbox", "", "a directory to capture photos from (defaults to inboxDir in config)")

	return cmd
}

func getLogPath(ctx fcontext.FieldCtx) string {
	if ctx.Config.LogFile != "" {
		return ctx.Config.LogFile
	}

	return filepath.Join(ctx.Paths.StateDir(), consts.LogFileName)
}

func newRun(ctx fcontext.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		logFile := log.ToFile(log.FileOptions{
			Path:       getLogPath(ctx),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		})
		defer logFile.Close()

		cf := ctx.Config
		if inboxFlag != "" {
			cf.InboxDir = inboxFlag
		}

		d := daemon.New(daemon.Params{
			Services: infra.NewServices(ctx),
			Config:   cf,
			Prober: netwatch.HTTPProber{
				Endpoint:   cf.APIEndpoint,
				HTTPClient: ctx.HTTPClient,
			},
			Clock: ctx.Clock,
		})

		c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Infof("fieldsync %s syncing to %s\n", ctx.Version, cf.APIEndpoint)

		return d.Run(c)
	}
}
