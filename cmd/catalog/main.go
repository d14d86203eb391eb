package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cbodonnell/gameportal/pkg/catalog"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/repositories"
	"github.com/cbodonnell/gameportal/pkg/store"
	"github.com/cbodonnell/gameportal/pkg/version"
)

// catalog imports game specs from a JSON file into the catalog database
// named by GAMEPORTAL_CATALOG_URL, or into the Firebase store when it is
// unset.
func main() {
	file := flag.String("file", "games.json", "JSON array of game specs to import")
	logLevel := flag.String("log-level", "info", "Log level")
	migrationsDir := flag.String("migrations", "./migrations", "directory of catalog database migrations")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}
	log.SetDefaultLogger(log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel))
	log.Info("Starting catalog import version %s", version.Get())
	ctx := context.Background()

	var dst catalog.Sink
	if catalogURL := os.Getenv("GAMEPORTAL_CATALOG_URL"); catalogURL != "" {
		repository, err := repositories.Open(ctx, catalogURL, *migrationsDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open catalog repository: %v", err))
		}
		defer repository.Close(ctx)
		dst = catalog.NewRepositorySource(repository)
	} else {
		projectID := os.Getenv("GAMEPORTAL_FIREBASE_PROJECT_ID")
		databaseURL := os.Getenv("GAMEPORTAL_FIREBASE_DATABASE_URL")
		if projectID == "" || databaseURL == "" {
			panic("GAMEPORTAL_CATALOG_URL or GAMEPORTAL_FIREBASE_PROJECT_ID and GAMEPORTAL_FIREBASE_DATABASE_URL must be set")
		}
		client, err := store.NewFirebaseDatabaseClient(ctx, store.FirebaseDatabaseOptions{
			ProjectID:       projectID,
			DatabaseURL:     databaseURL,
			CredentialsFile: os.Getenv("GAMEPORTAL_FIREBASE_CREDENTIALS"),
		})
		if err != nil {
			panic(fmt.Sprintf("Failed to create Firebase database client: %v", err))
		}
		dst = catalog.NewStoreSource(store.NewFirebaseStore(store.NewFirebaseStoreOptions{Client: client}))
	}

	n, err := catalog.Import(ctx, catalog.NewFileSource(*file), dst)
	if err != nil {
		panic(fmt.Sprintf("Imported %d games before failing: %v", n, err))
	}
	log.Info("Imported %d games from %s", n, *file)
}
