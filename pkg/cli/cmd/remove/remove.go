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

package remove

import (
	"github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/output"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/custodial/fieldsync/pkg/cli/ui"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * Remove an item
 fieldsync remove 1e1ad4ad-8be7-4d41-8a80-f4c7e3a1b6c2

 * Skip the confirmation
 fieldsync remove -y 1e1ad4ad-8be7-4d41-8a80-f4c7e3a1b6c2`

var yesFlag bool

// NewCmd returns a new remove command
func NewCmd(ctx context.FieldCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "remove <item id>",
		Short:   "Remove an item from the queue without uploading it",
		Aliases: []string{"rm", "d"},
		Example: example,
		Args:    cobra.ExactArgs(1),
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.BoolVarP(&yesFlag, "yes", "y", false, "remove without confirmation")

	return cmd
}

func newRun(ctx context.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		s := store.New(ctx.DB, ctx.Clock, nil, ctx.Config.QuotaBytes)
		id := args[0]

		item, err := s.Get(id)
		if errors.Cause(err) == store.ErrNotFound {
			return errors.Errorf("item %s not found", id)
		}
		if err != nil {
			return errors.Wrap(err, "finding the item")
		}

		output.ItemInfo(item)

		if !yesFlag {
			question := "remove this item?"
			if item.Status == store.StatusPending || item.Status == store.StatusFailed {
				question = "remove this item? It was not uploaded"
			}

			ok, err := ui.Confirm(question, false)
			if err != nil {
				return errors.Wrap(err, "getting confirmation")
			}
			if !ok {
				log.Warnf("aborted by user\n")
				return nil
			}
		}

		if err := s.Delete(id); err != nil {
			return errors.Wrap(err, "removing the item")
		}

		log.Successf("removed %s\n", id)

		return nil
	}
}
