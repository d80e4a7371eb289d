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

// Package inbox captures photos dropped into a directory, for example by a
// camera sync tool, as photo items
package inbox

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/consts"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/custodial/fieldsync/pkg/cli/utils"
	"github.com/pkg/errors"
	"github.com/radovskyb/watcher"
)

// DefaultPollInterval is how often the inbox directory is polled for new files
const DefaultPollInterval = time.Second

var contentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".heic": "image/heic",
	".webp": "image/webp",
}

// ContentType returns the content type of a supported image file, or an
// empty string if the file is not a supported image
func ContentType(path string) string {
	return contentTypes[strings.ToLower(filepath.Ext(path))]
}

// Store persists capture items
type Store interface {
	Save(item store.Item) (string, error)
	Delete(id string) error
}

// Inbox ingests image files from a directory. Ingested files are moved under
// the processed directory so that they are not captured twice.
type Inbox struct {
	dir          string
	processedDir string
	store        Store
	settle       *settler

	mu sync.Mutex
	w  *watcher.Watcher
	wg sync.WaitGroup
}

// New returns an inbox for the given directory
func New(dir string, s Store) *Inbox {
	// the watcher reports absolute paths
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	return &Inbox{
		dir:          dir,
		processedDir: filepath.Join(dir, consts.ProcessedDirName),
		store:        s,
		settle:       newSettler(0),
	}
}

// ProcessedDir returns the directory receiving ingested files
func (in *Inbox) ProcessedDir() string {
	return in.processedDir
}

// inspectionID is the name of the subdirectory holding the file, if any
func (in *Inbox) inspectionID(path string) string {
	rel, err := filepath.Rel(in.dir, filepath.Dir(path))
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}

	return filepath.Base(rel)
}

// Ingest saves the file at path as a photo item and moves it to the processed
// directory. The file is left in place, and nothing is captured, if it could
// not be saved or moved.
func (in *Inbox) Ingest(path string) (string, error) {
	contentType := ContentType(path)
	if contentType == "" {
		return "", errors.Errorf("unsupported file type %s", filepath.Ext(path))
	}

	payload, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}

	metadata := map[string]string{
		"filename":    filepath.Base(path),
		"contentType": contentType,
	}
	inspectionID := in.inspectionID(path)
	if inspectionID != "" {
		metadata["inspectionId"] = inspectionID
	}

	id, err := in.store.Save(store.Item{
		Kind:     store.KindPhoto,
		Payload:  payload,
		Metadata: metadata,
	})
	if err != nil {
		return "", errors.Wrapf(err, "capturing %s", path)
	}

	destDir := in.processedDir
	if inspectionID != "" {
		destDir = filepath.Join(destDir, inspectionID)
	}
	if _, err := utils.MoveFile(path, destDir); err != nil {
		// a file left in the inbox is captured again by the next scan
		if dErr := in.store.Delete(id); dErr != nil {
			log.Errorf("discarding %s after a failed move: %s\n", id, dErr.Error())
		}

		return "", errors.Wrapf(err, "moving %s to the processed directory", path)
	}

	log.Debug("captured %s as %s\n", path, id)

	return id, nil
}

func (in *Inbox) ingestAndLog(path string) {
	id, err := in.Ingest(path)
	if err != nil {
		if errors.Cause(err) == store.ErrStorageFull {
			log.Errorf("storage is full, leaving %s in the inbox. Free space or run 'fieldsync cleanup'\n", path)
			return
		}

		log.Errorf("%s\n", err.Error())
		return
	}

	log.Successf("captured %s (%s)\n", filepath.Base(path), id)
}

// Scan ingests every complete supported file currently in the inbox and
// returns the number of captured files. A file modified within the settle age
// is left for the watcher to pick up once it stops changing.
func (in *Inbox) Scan() (int, error) {
	var paths []string

	err := filepath.Walk(in.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path == in.processedDir {
				return filepath.SkipDir
			}
			return nil
		}
		if ContentType(path) != "" {
			paths = append(paths, path)
		}

		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "scanning %s", in.dir)
	}

	count := 0
	for _, path := range paths {
		if !in.settle.ready(path) {
			continue
		}
		if _, err := in.Ingest(path); err != nil {
			if errors.Cause(err) == store.ErrStorageFull {
				return count, err
			}

			log.Errorf("%s\n", err.Error())
			continue
		}
		count++
	}

	return count, nil
}

// Start captures the files already in the inbox and then watches it for new
// ones, polling every interval. A new file is captured once its size and
// modification time are unchanged across two polls, or it has not been
// modified for a whole interval. It returns once the watcher is running.
func (in *Inbox) Start(interval time.Duration) error {
	if interval < time.Millisecond {
		interval = DefaultPollInterval
	}
	in.settle.setAge(interval)

	if err := utils.EnsureDir(in.processedDir); err != nil {
		return errors.Wrap(err, "preparing the inbox")
	}

	if _, err := in.Scan(); err != nil {
		log.Errorf("scanning the inbox: %s\n", err.Error())
	}

	w := watcher.New()
	w.FilterOps(watcher.Create, watcher.Write, watcher.Move, watcher.Rename)
	if err := w.Ignore(in.processedDir); err != nil {
		return errors.Wrap(err, "ignoring the processed directory")
	}
	if err := w.AddRecursive(in.dir); err != nil {
		return errors.Wrapf(err, "watching %s", in.dir)
	}

	in.mu.Lock()
	in.w = w
	in.mu.Unlock()

	in.wg.Add(2)
	go func() {
		defer in.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case e := <-w.Event:
				if e.IsDir() || ContentType(e.Path) == "" {
					continue
				}
				if strings.HasPrefix(e.Path, in.processedDir+string(filepath.Separator)) {
					continue
				}
				in.settle.track(e.Path)
			case <-ticker.C:
				for _, path := range in.settle.pending() {
					if in.settle.ready(path) {
						in.ingestAndLog(path)
					}
				}
			case err := <-w.Error:
				log.Errorf("watching the inbox: %s\n", err.Error())
			case <-w.Closed:
				return
			}
		}
	}()

	go func() {
		defer in.wg.Done()

		if err := w.Start(interval); err != nil {
			log.Errorf("starting the inbox watcher: %s\n", err.Error())
		}
	}()

	w.Wait()
	log.Debug("watching %s\n", in.dir)

	return nil
}

// Close stops watching and waits for the file being ingested, if any
func (in *Inbox) Close() {
	in.mu.Lock()
	w := in.w
	in.w = nil
	in.mu.Unlock()

	if w == nil {
		return
	}

	w.Close()
	in.wg.Wait()
}
