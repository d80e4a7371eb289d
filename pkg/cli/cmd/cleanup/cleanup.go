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

package cleanup

import (
	"time"

	"github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/custodial/fieldsync/pkg/cli/utils"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * Remove items synced longer ago than the configured retention
 fieldsync cleanup

 * Remove every synced item
 fieldsync cleanup --older-than 0s`

var olderThanFlag time.Duration

// NewCmd returns a new cleanup command
func NewCmd(ctx context.FieldCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cleanup",
		Short:   "Remove uploaded items to free space",
		Long:    "Remove uploaded items to free space. Pending and failed items are never removed.",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.DurationVar(&olderThanFlag, "older-than", -1, "remove items synced longer ago than this (defaults to syncedRetention in config)")

	return cmd
}

func newRun(ctx context.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		olderThan := olderThanFlag
		if olderThan < 0 {
			olderThan = ctx.Config.SyncedRetention
		}

		s := store.New(ctx.DB, ctx.Clock, nil, ctx.Config.QuotaBytes)

		n, err := s.CleanupSynced(olderThan)
		if err != nil {
			return errors.Wrap(err, "cleaning up")
		}

		log.Successf("removed %d synced %s\n", n, utils.Plural(n, "item", "items"))

		return nil
	}
}
