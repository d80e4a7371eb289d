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

package recover

import (
	"context"

	fcontext "github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/events"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/output"
	"github.com/custodial/fieldsync/pkg/cli/recovery"
	"github.com/custodial/fieldsync/pkg/cli/syncer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * Check for an interrupted sync
 fieldsync recover

 * Resume it
 fieldsync recover --resume

 * Forget it. The items stay queued
 fieldsync recover --dismiss`

var resumeFlag bool
var dismissFlag bool

func preRun(cmd *cobra.Command, args []string) error {
	if resumeFlag && dismissFlag {
		return errors.New("--resume and --dismiss cannot be used together")
	}

	return nil
}

// NewCmd returns a new recover command
func NewCmd(ctx fcontext.FieldCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recover",
		Short:   "Resume or dismiss an interrupted sync",
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&resumeFlag, "resume", "r", false, "resume the interrupted sync")
	f.BoolVarP(&dismissFlag, "dismiss", "d", false, "dismiss the interrupted sync")

	return cmd
}

func newRun(ctx fcontext.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		s := infra.NewServices(ctx)

		info, err := s.Recovery.CheckRecovery()
		if err != nil {
			return errors.Wrap(err, "checking for an interrupted sync")
		}
		if !info.NeedsRecovery {
			log.Info("no interrupted sync\n")
			return nil
		}

		switch {
		case resumeFlag:
			unsubscribe := s.Bus.Subscribe(events.ListenerFunc(output.Event))
			defer unsubscribe()

			_, err := s.Recovery.Retry(context.Background())
			if errors.Cause(err) == syncer.ErrConcurrentSync {
				return errors.Wrap(err, "another sync is running")
			}
			if err != nil {
				return err
			}
		case dismissFlag:
			err := s.Recovery.Dismiss()
			if errors.Cause(err) == recovery.ErrSyncActive {
				return errors.Wrap(err, "cannot dismiss")
			}
			if err != nil {
				return err
			}
			log.Success("dismissed the interrupted sync\n")
		default:
			output.RecoveryBanner(info)
		}

		return nil
	}
}
