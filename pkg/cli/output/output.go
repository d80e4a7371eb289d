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

// Package output provides functions to print informations on the terminal
// in a consistent manner
package output

import (
	"fmt"
	"sort"
	"time"

	"github.com/custodial/fieldsync/pkg/cli/events"
	"github.com/custodial/fieldsync/pkg/cli/log"
	"github.com/custodial/fieldsync/pkg/cli/recovery"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/custodial/fieldsync/pkg/cli/syncer"
	"github.com/custodial/fieldsync/pkg/cli/utils"
)

const timeLayout = "Jan 2, 2006 3:04pm (MST)"

// FormatSize formats a byte count for humans
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}

// ItemInfo prints the details of an item
func ItemInfo(item store.Item) {
	log.Infof("item id: %s\n", item.ID)
	log.Infof("kind: %s\n", item.Kind)
	log.Infof("status: %s\n", item.Status)
	log.Infof("size: %s\n", FormatSize(item.Size))
	log.Infof("captured at: %s\n", item.CreatedAt.Local().Format(timeLayout))
	if item.RetryCount > 0 {
		log.Infof("failed attempts: %d\n", item.RetryCount)
	}
	if item.LastError != "" {
		log.Infof("last error: %s\n", item.LastError)
	}

	keys := make([]string, 0, len(item.Metadata))
	for k := range item.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		log.Plainf("%s: %s\n", k, item.Metadata[k])
	}
}

// ItemRow prints an item on a single line
func ItemRow(item store.Item) {
	status := string(item.Status)
	switch item.Status {
	case store.StatusFailed:
		status = log.ColorRed.Sprint(status)
	case store.StatusSynced:
		status = log.ColorGreen.Sprint(status)
	case store.StatusSyncing:
		status = log.ColorYellow.Sprint(status)
	}

	fmt.Printf("%s %-5s %-8s %10s  %s\n", log.ColorYellow.Sprint(item.ID), item.Kind, status,
		FormatSize(item.Size), item.CreatedAt.Local().Format(time.RFC3339))
}

// Stats prints the queue summary and the storage usage
func Stats(s store.Stats) {
	log.Infof("pending: %d\n", s.Pending)
	if s.Syncing > 0 {
		log.Infof("syncing: %d\n", s.Syncing)
	}
	log.Infof("synced: %d\n", s.Synced)
	if s.Failed > 0 {
		log.Warnf("failed: %d. Run 'fieldsync sync --force' to retry them\n", s.Failed)
	} else {
		log.Infof("failed: 0\n")
	}

	if s.QuotaBytes > 0 {
		msg := fmt.Sprintf("storage: %s of %s used (%.1f%%)\n", FormatSize(s.UsedBytes), FormatSize(s.QuotaBytes), s.Percentage)
		switch {
		case s.Critical:
			log.Errorf("%s", msg)
		case s.Warning:
			log.Warnf("%s", msg)
		default:
			log.Infof("%s", msg)
		}
	} else {
		log.Infof("storage: %s used\n", FormatSize(s.UsedBytes))
	}

	if s.LastSyncAt.IsZero() {
		log.Infof("last sync: never\n")
	} else {
		log.Infof("last sync: %s\n", s.LastSyncAt.Local().Format(timeLayout))
	}
}

// SyncResult prints the outcome of a sync run
func SyncResult(r syncer.Result) {
	if r.Stopped {
		log.Warnf("sync stopped after %d uploaded\n", len(r.SucceededItems))
		return
	}

	total := len(r.SucceededItems) + len(r.FailedItems)
	if total == 0 {
		log.Info("nothing to sync\n")
		return
	}

	if len(r.SucceededItems) > 0 {
		log.Successf("uploaded %d %s\n", len(r.SucceededItems), utils.Plural(len(r.SucceededItems), "item", "items"))
	}
	for _, f := range r.FailedItems {
		log.Errorf("%s: %s\n", f.ID, f.Error)
	}
}

// RecoveryBanner prints the notice of an interrupted sync
func RecoveryBanner(info recovery.Info) {
	if !info.NeedsRecovery {
		return
	}

	log.Warnf("%s\n", info.Message)
	if info.InterruptedItem != nil {
		log.Plainf("interrupted %s: %s\n", info.InterruptedItem.Kind, info.InterruptedItem.ID)
	}
	log.Plainf("run 'fieldsync recover --resume' to continue or 'fieldsync recover --dismiss' to ignore\n")
}

// Event prints a capture or sync event as a log line
func Event(e events.Event) {
	switch e.Name {
	case events.PhotoSaved, events.FormSaved:
		log.Successf("saved %s %s\n", e.Kind, e.ItemID)
	case events.PhotoSynced, events.FormSynced:
		log.Successf("uploaded %s %s\n", e.Kind, e.ItemID)
	case events.PhotoSyncFailed, events.FormSyncFailed:
		msg := "upload failed"
		if e.Err != nil {
			msg = e.Err.Error()
		}
		log.Errorf("%s %s: %s\n", e.Kind, e.ItemID, msg)
	case events.SyncStarted:
		log.Info("sync started\n")
	case events.SyncCompleted:
		log.Infof("sync completed: %d uploaded, %d failed\n", e.Succeeded, e.Failed)
	case events.SyncError:
		log.Errorf("sync aborted: %v\n", e.Err)
	case events.Online:
		log.Info("server is reachable\n")
	case events.Offline:
		log.Warnf("server is unreachable, items are kept until it is back\n")
	case events.StorageWarning:
		log.Warnf("storage is nearly full. Run 'fieldsync cleanup' to free space\n")
	default:
		log.Debug("event %s\n", e.Name)
	}
}
