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

package ls

import (
	"github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/output"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * List all items
 fieldsync ls

 * List failed photos
 fieldsync ls --status failed --kind photo`

var statusFlag string
var kindFlag string

func preRun(cmd *cobra.Command, args []string) error {
	switch store.Status(statusFlag) {
	case "", store.StatusPending, store.StatusSyncing, store.StatusSynced, store.StatusFailed:
	default:
		return errors.Errorf("unknown status '%s'", statusFlag)
	}

	if kindFlag != "" && !store.Kind(kindFlag).Valid() {
		return errors.Errorf("unknown kind '%s'", kindFlag)
	}

	return nil
}

// NewCmd returns a new ls command
func NewCmd(ctx context.FieldCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"l"},
		Short:   "List the captured items, newest first",
		Example: example,
		PreRunE: preRun,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVar(&statusFlag, "status", "", "only list items with the status (pending, syncing, synced, failed)")
	f.StringVar(&kindFlag, "kind", "", "only list items of the kind (photo, form)")

	return cmd
}

func newRun(ctx context.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		s := store.New(ctx.DB, ctx.Clock, nil, ctx.Config.QuotaBytes)

		items, err := s.List(store.Filter{
			Status: store.Status(statusFlag),
			Kind:   store.Kind(kindFlag),
		})
		if err != nil {
			return errors.Wrap(err, "listing items")
		}

		if len(items) == 0 {
			log.Info("no items\n")
			return nil
		}

		for _, item := range items {
			output.ItemRow(item)
		}

		return nil
	}
}
