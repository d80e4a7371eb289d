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

package status

import (
	"encoding/json"
	"os"

	"github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/output"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var jsonFlag bool

// NewCmd returns a new status command
func NewCmd(ctx context.FieldCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the queue and the storage usage",
		RunE:  newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVar(&jsonFlag, "json", false, "print the status as JSON")

	return cmd
}

func newRun(ctx context.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		s := store.New(ctx.DB, ctx.Clock, nil, ctx.Config.QuotaBytes)

		stats, err := s.Stats()
		if err != nil {
			return errors.Wrap(err, "getting the stats")
		}

		if jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		output.Stats(stats)

		info, err := infra.NewServices(ctx).Recovery.CheckRecovery()
		if err != nil {
			return errors.Wrap(err, "checking for an interrupted sync")
		}
		output.RecoveryBanner(info)

		return nil
	}
}
