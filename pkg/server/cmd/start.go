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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodial/fieldsync/pkg/server/buildinfo"
	"github.com/custodial/fieldsync/pkg/server/config"
	"github.com/custodial/fieldsync/pkg/server/controllers"
	"github.com/custodial/fieldsync/pkg/server/database"
	"github.com/custodial/fieldsync/pkg/server/log"
	"github.com/pkg/errors"
)

// shutdownTimeout bounds the wait for requests in flight on shutdown
const shutdownTimeout = 30 * time.Second

func startCmd(args []string) {
	fs := setupFlagSet("start", "fieldsync-intake start")

	appEnv := fs.String("appEnv", "", "Application environment (env: APP_ENV, default: PRODUCTION)")
	port := fs.String("port", "", "Server port (env: PORT, default: 3001)")
	dbPath := fs.String("dbPath", "", "Path to SQLite database file or a postgres:// URL (env: DBPath, default: $XDG_DATA_HOME/fieldsync/intake.db)")
	csrfKey := fs.String("csrfKey", "", "Hex encoded 32 byte key signing CSRF tokens (env: CSRF_KEY, required in production)")
	maxUploadBytes := fs.String("maxUploadBytes", "", "Maximum size of an upload request in bytes (env: MAX_UPLOAD_BYTES, default: 33554432)")
	logLevel := fs.String("logLevel", "", "Log level: debug, info, warn, or error (env: LOG_LEVEL, default: info)")

	fs.Parse(args)

	cfg, err := config.New(config.Params{
		AppEnv:         *appEnv,
		Port:           *port,
		DBPath:         *dbPath,
		CSRFKey:        *csrfKey,
		MaxUploadBytes: *maxUploadBytes,
		LogLevel:       *logLevel,
	})
	if err != nil {
		fmt.Printf("Error: %s\n\n", err)
		fs.Usage()
		os.Exit(1)
	}

	log.SetLevel(cfg.LogLevel)

	if err := run(cfg); err != nil {
		log.ErrorWrap(err, "server failed")
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer database.Close(a.DB)

	stopMaintenance, err := database.StartMaintenance(a.DB, cfg.DBPath)
	if err != nil {
		return errors.Wrap(err, "starting database maintenance")
	}
	defer stopMaintenance()

	ctl := controllers.New(&a)
	rc := controllers.RouteConfig{
		WebRoutes:   controllers.NewWebRoutes(&a, ctl),
		APIRoutes:   controllers.NewAPIRoutes(&a, ctl),
		Controllers: ctl,
	}

	r, err := controllers.NewRouter(&a, rc)
	if err != nil {
		return errors.Wrap(err, "initializing router")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.WithFields(log.Fields{
		"version":  buildinfo.Version,
		"port":     cfg.Port,
		"postgres": database.IsPostgresDSN(cfg.DBPath),
	}).Info("Intake server starting")

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "listening")
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Intake server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down")
	}

	return nil
}

func versionCmd() {
	fmt.Printf("fieldsync-intake-%s\n", buildinfo.Version)
}
