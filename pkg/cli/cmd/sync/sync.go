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

package sync

import (
	"context"
	"os"
	"os/signal"

	fcontext "github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/events"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/output"
	"github.com/custodial/fieldsync/pkg/cli/syncer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
  fieldsync sync

  * Also retry items that exhausted their retries
  fieldsync sync --force`

var forceFlag bool

// NewCmd returns a new sync command
func NewCmd(ctx fcontext.FieldCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"s"},
		Short:   "Upload the queued items to the server",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&forceFlag, "force", "f", false, "retry failed items regardless of their retry count")

	return cmd
}

// Run uploads the queue with the given services, printing progress. An
// interrupt stops the run after the item in flight.
func Run(s *infra.Services, force bool) (syncer.Result, error) {
	info, err := s.Recovery.CheckRecovery()
	if err != nil {
		log.Errorf("checking for an interrupted sync: %s\n", err.Error())
	}
	if info.NeedsRecovery {
		log.Warnf("resuming an interrupted sync\n")
	}

	unsubscribe := s.Bus.Subscribe(events.ListenerFunc(output.Event))
	defer unsubscribe()

	c, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var result syncer.Result
	if force {
		result, err = s.Engine.ForceSyncAll(c)
	} else {
		result, err = s.Engine.SyncPendingItems(c)
	}
	if errors.Cause(err) == syncer.ErrConcurrentSync {
		return result, errors.Wrap(err, "another sync is running")
	}
	if err != nil {
		return result, errors.Wrap(err, "syncing")
	}

	if result.Stopped {
		log.Warnf("sync stopped after %d uploaded. The rest stays queued\n", len(result.SucceededItems))
	}

	return result, nil
}

func newRun(ctx fcontext.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		s := infra.NewServices(ctx)

		result, err := Run(s, forceFlag)
		if err != nil {
			return err
		}

		if len(result.FailedItems) > 0 {
			return errors.Errorf("%d items failed to upload", len(result.FailedItems))
		}

		return nil
	}
}
