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

package export

import (
	"io"
	"os"

	"github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 fieldsync export > queue.json
 fieldsync export -o queue.json`

var outputFlag string

// NewCmd returns a new export command
func NewCmd(ctx context.FieldCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "export",
		Short:   "Write the queue, without payloads, as a JSON document",
		Example: example,
		RunE:    newRun(ctx),
	}

	f := cmd.Flags()
	f.StringVarP(&outputFlag, "output", "o", "", "the file to write (defaults to stdout)")

	return cmd
}

func newRun(ctx context.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		s := store.New(ctx.DB, ctx.Clock, nil, ctx.Config.QuotaBytes)

		var w io.Writer = os.Stdout
		if outputFlag != "" {
			f, err := os.Create(outputFlag)
			if err != nil {
				return errors.Wrapf(err, "creating %s", outputFlag)
			}
			defer f.Close()
			w = f
		}

		if err := s.Export(w); err != nil {
			return errors.Wrap(err, "exporting")
		}

		if outputFlag != "" {
			log.Successf("exported to %s\n", outputFlag)
		}

		return nil
	}
}
