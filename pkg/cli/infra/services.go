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

package infra

import (
	"github.com/custodial/fieldsync/pkg/cli/client"
	"github.com/custodial/fieldsync/pkg/cli/context"
	"github.com/custodial/fieldsync/pkg/cli/events"
	"github.com/custodial/fieldsync/pkg/cli/recovery"
	"github.com/custodial/fieldsync/pkg/cli/store"
	"github.com/custodial/fieldsync/pkg/cli/syncer"
	"github.com/custodial/fieldsync/pkg/cli/tracker"
)

// Services are the components shared by the commands and the daemon. They
// are built once per process around the same database and event bus.
type Services struct {
	Bus      *events.Bus
	Store    *store.Store
	Tracker  *tracker.Tracker
	Tokens   *client.CSRFProvider
	Engine   *syncer.Engine
	Recovery *recovery.Detector
}

// NewServices builds the services uploading with the HTTP uploader
func NewServices(ctx context.FieldCtx) *Services {
	tokens := client.NewCSRFProvider(ctx.Config.APIEndpoint, ctx.HTTPClient, ctx.Clock)
	uploader := client.NewHTTPUploader(ctx.Config.APIEndpoint, ctx.Version, ctx.HTTPClient, tokens)

	s := NewServicesWithUploader(ctx, uploader)
	s.Tokens = tokens

	return s
}

// NewServicesWithUploader builds the services around the given uploader
func NewServicesWithUploader(ctx context.FieldCtx, uploader client.Uploader) *Services {
	bus := events.NewBus()
	st := store.New(ctx.DB, ctx.Clock, bus, ctx.Config.QuotaBytes)
	tr := tracker.New(ctx.DB, ctx.Clock, ctx.SessionID)

	engine := syncer.New(syncer.Params{
		Store:         st,
		Tracker:       tr,
		Uploader:      uploader,
		Bus:           bus,
		Clock:         ctx.Clock,
		MaxRetries:    ctx.Config.MaxRetries,
		DeleteOnSync:  ctx.Config.DeleteOnSync,
		UploadTimeout: ctx.Config.UploadTimeout,
	})

	return &Services{
		Bus:      bus,
		Store:    st,
		Tracker:  tr,
		Engine:   engine,
		Recovery: recovery.New(tr, engine, ctx.SessionID),
	}
}
