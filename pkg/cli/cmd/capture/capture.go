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

package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	fcontext "github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/inbox"
	"github.com/custodial/fieldsync/pkg/cli/infra"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/output"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/custodial/fieldsync/pkg/cli/ui"
	"github.com/custodial/fieldsync/pkg/cli/validate"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var example = `
 * Capture a photo for an inspection
 fieldsync capture photo ./IMG_0042.jpg --inspection insp-42

 * Capture a custodial note from a file
 fieldsync capture form --inspection insp-42 --file note.json

 * Pipe a note
 echo '{"room": "101", "condition": "clean"}' | fieldsync capture form

 * Open an editor to write the note
 fieldsync capture form --inspection insp-42`

var inspectionFlag string
var metaFlags []string
var contentFlag string
var fileFlag string
var syncFlag bool

// formTemplate seeds the editor
const formTemplate = "{\n}\n"

// NewCmd returns a new capture command
func NewCmd(ctx fcontext.FieldCtx) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "capture",
		Aliases: []string{"c"},
		Short:   "Save a photo or a custodial note for upload",
		Example: example,
	}

	photo := &cobra.Command{
		Use:   "photo <file>",
		Short: "Save a photo",
		Args:  cobra.ExactArgs(1),
		RunE:  newPhotoRun(ctx),
	}
	form := &cobra.Command{
		Use:     "form",
		Aliases: []string{"note"},
		Short:   "Save a custodial note form",
		Args:    cobra.NoArgs,
		RunE:    newFormRun(ctx),
	}

	for _, c := range []*cobra.Command{photo, form} {
		f := c.Flags()
		f.StringVarP(&inspectionFlag, "inspection", "i", "", "the inspection the item belongs to")
		f.StringArrayVarP(&metaFlags, "meta", "m", nil, "metadata in the key=value form. Can be repeated")
		f.BoolVarP(&syncFlag, "sync", "s", false, "upload the queue right after saving")
	}
	form.Flags().StringVarP(&contentFlag, "content", "c", "", "the JSON content of the note")
	form.Flags().StringVarP(&fileFlag, "file", "f", "", "a file holding the JSON content of the note")

	cmd.AddCommand(photo, form)

	return cmd
}

func getMetadata() (map[string]string, error) {
	ret := map[string]string{}

	for _, pair := range metaFlags {
		key, val, err := validate.MetadataPair(pair)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid metadata '%s'", pair)
		}
		ret[key] = val
	}

	if inspectionFlag != "" {
		if err := validate.InspectionID(inspectionFlag); err != nil {
			return nil, errors.Wrap(err, "invalid inspection id")
		}
		ret["inspectionId"] = inspectionFlag
	}

	return ret, nil
}

func getFormContent(ctx fcontext.FieldCtx) (string, error) {
	if contentFlag != "" {
		return contentFlag, nil
	}

	if fileFlag != "" {
		b, err := os.ReadFile(fileFlag)
		if err != nil {
			return "", errors.Wrapf(err, "reading %s", fileFlag)
		}
		return string(b), nil
	}

	if ui.IsPiped() {
		c, err := ui.ReadStdInput()
		if err != nil {
			return "", errors.Wrap(err, "Failed to get piped input")
		}
		return c, nil
	}

	fpath, err := ui.GetTmpContentPath(ctx)
	if err != nil {
		return "", errors.Wrap(err, "getting temporarily content file path")
	}

	c, err := ui.GetEditorInput(ctx, fpath, formTemplate)
	if err != nil {
		return "", errors.Wrap(err, "Failed to get editor input")
	}

	return c, nil
}

func save(ctx fcontext.FieldCtx, item store.Item) error {
	s := infra.NewServices(ctx)

	id, err := s.Store.Save(item)
	if errors.Cause(err) == store.ErrStorageFull {
		return errors.Wrap(err, "Free space or run 'fieldsync cleanup'")
	}
	if err != nil {
		return errors.Wrap(err, "saving the item")
	}

	log.Successf("saved %s %s\n", item.Kind, id)

	saved, err := s.Store.Get(id)
	if err != nil {
		return err
	}
	output.ItemInfo(saved)

	if !syncFlag {
		return nil
	}

	result, err := s.Engine.SyncPendingItems(context.Background())
	if err != nil {
		return errors.Wrap(err, "syncing")
	}
	output.SyncResult(result)

	return nil
}

func newPhotoRun(ctx fcontext.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		path := args[0]

		contentType := inbox.ContentType(path)
		if contentType == "" {
			return errors.Errorf("unsupported photo type '%s'", filepath.Ext(path))
		}

		payload, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}

		metadata, err := getMetadata()
		if err != nil {
			return err
		}
		metadata["filename"] = filepath.Base(path)
		metadata["contentType"] = contentType

		return save(ctx, store.Item{
			Kind:     store.KindPhoto,
			Payload:  payload,
			Metadata: metadata,
		})
	}
}

func newFormRun(ctx fcontext.FieldCtx) infra.RunEFunc {
	return func(cmd *cobra.Command, args []string) error {
		metadata, err := getMetadata()
		if err != nil {
			return err
		}

		content, err := getFormContent(ctx)
		if err != nil {
			return errors.Wrap(err, "getting content")
		}
		if strings.TrimSpace(content) == "" {
			return errors.New("Empty content")
		}

		err = save(ctx, store.Item{
			Kind:     store.KindForm,
			Payload:  []byte(content),
			Metadata: metadata,
		})
		if errors.Cause(err) == store.ErrInvalidPayload {
			return errors.Wrap(err, "the note must be a JSON document")
		}

		return err
	}
}
