package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firebase.google.com/go/db"
	"github.com/cbodonnell/gameportal/pkg/api"
	authproviders "github.com/cbodonnell/gameportal/pkg/auth/providers"
	"github.com/cbodonnell/gameportal/pkg/catalog"
	"github.com/cbodonnell/gameportal/pkg/log"
	"github.com/cbodonnell/gameportal/pkg/messages"
	"github.com/cbodonnell/gameportal/pkg/models"
	"github.com/cbodonnell/gameportal/pkg/network"
	"github.com/cbodonnell/gameportal/pkg/repositories"
	"github.com/cbodonnell/gameportal/pkg/signals"
	"github.com/cbodonnell/gameportal/pkg/store"
	"github.com/cbodonnell/gameportal/pkg/version"
	"github.com/cbodonnell/gameportal/pkg/workers"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	logLevel := flag.String("log-level", "info", "Log level")
	storeMode := flag.String("store", "memory", "store backend: memory or firebase")
	pollInterval := flag.Duration("poll-interval", store.DefaultPollInterval, "how often firebase watches poll")
	staleness := flag.Duration("signal-staleness", signals.DefaultStaleness, "age after which received signals are dropped")
	migrationsDir := flag.String("migrations", "./migrations", "directory of catalog database migrations")
	gamesFile := flag.String("games", "", "JSON file of game specs added to the catalog at startup")
	catalogRefresh := flag.Duration("catalog-refresh", time.Minute, "how often the catalog is reloaded, 0 disables")
	flag.Parse()

	parsedLogLevel, err := log.ParseLogLevel(*logLevel)
	if err != nil {
		panic(fmt.Sprintf("Failed to parse log level: %v", err))
	}

	logger := log.New(os.Stdout, "", log.DefaultLoggerFlag, parsedLogLevel)
	log.SetDefaultLogger(logger)
	log.Info("Log level set to %s", parsedLogLevel)

	log.Info("Starting gameportal server version %s", version.Get())
	ctx := context.Background()

	var (
		connect      network.StoreConnector
		authProvider authproviders.AuthProvider
	)
	switch *storeMode {
	case "memory":
		log.Warn("Using the in-memory store with static auth, data is lost on exit")
		database := store.NewInMemoryDatabase(store.NewInMemoryDatabaseOptions{})
		connect = func() store.Store { return database.Connect() }
		authProvider = authproviders.NewStaticAuthProvider()
	case "firebase":
		client, provider := mustFirebase(ctx)
		connect = func() store.Store {
			return store.NewFirebaseStore(store.NewFirebaseStoreOptions{
				Client:       client,
				PollInterval: *pollInterval,
			})
		}
		authProvider = provider
	default:
		panic(fmt.Sprintf("Unknown store %s", *storeMode))
	}

	var source catalog.Source
	if catalogURL := os.Getenv("GAMEPORTAL_CATALOG_URL"); catalogURL != "" {
		repository, err := repositories.Open(ctx, catalogURL, *migrationsDir)
		if err != nil {
			panic(fmt.Sprintf("Failed to open catalog repository: %v", err))
		}
		defer repository.Close(ctx)
		source = catalog.NewRepositorySource(repository)
	} else {
		source = catalog.NewStoreSource(connect())
	}

	games := catalog.New()
	if err := games.Load(ctx, source); err != nil {
		if !store.IsMissingData(err) {
			panic(fmt.Sprintf("Failed to load game catalog: %v", err))
		}
		log.Warn("Game catalog is empty: %v", err)
	}
	if *gamesFile != "" {
		specs, err := catalog.NewFileSource(*gamesFile).LoadGameSpecs(ctx)
		if err != nil {
			panic(fmt.Sprintf("Failed to read games file: %v", err))
		}
		for _, spec := range specs {
			if err := games.Put(spec); err != nil {
				panic(fmt.Sprintf("Invalid game %s: %v", spec.GameSpecID, err))
			}
		}
	}
	log.Info("Loaded %d games", games.Len())

	networkManager := network.NewNetworkManager(network.NewNetworkManagerOptions{
		AuthProvider:    authProvider,
		Connect:         connect,
		Catalog:         games,
		CatalogSource:   source,
		SignalStaleness: *staleness,
		Logger:          logger,
	})

	if *catalogRefresh > 0 {
		broadcastMessageChan := make(chan workers.BroadcastMessage, 16)
		refreshWorker := workers.NewCatalogRefreshWorker(workers.NewCatalogRefreshWorkerOptions{
			Catalog:  games,
			Source:   source,
			Interval: *catalogRefresh,
			OnChange: func(list []*models.GameSpec) {
				broadcastMessageChan <- workers.BroadcastMessage{Type: messages.MessageTypeGamesList, Message: list}
			},
		})
		broadcastWorker := workers.NewBroadcastMessageWorker(workers.NewBroadcastMessageWorkerOptions{
			Broadcaster:          networkManager,
			BroadcastMessageChan: broadcastMessageChan,
		})
		go refreshWorker.Start(ctx)
		go broadcastWorker.Start(ctx)
	}

	apiServerOpts := api.NewAPIServerOptions{
		Port:         *port,
		AuthProvider: authProvider,
		Catalog:      games,
		Network:      networkManager,
	}
	tlsCertFile := os.Getenv("GAMEPORTAL_TLS_CERT_FILE")
	tlsKeyFile := os.Getenv("GAMEPORTAL_TLS_KEY_FILE")
	if tlsCertFile != "" && tlsKeyFile != "" {
		apiServerOpts.TLS = &api.TLSConfig{
			CertFile: tlsCertFile,
			KeyFile:  tlsKeyFile,
		}
	}
	server := api.NewAPIServer(apiServerOpts)
	go server.Start()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		log.Error("Failed to stop server: %v", err)
	}
}

func mustFirebase(ctx context.Context) (*db.Client, *authproviders.FirebaseAuthProvider) {
	projectID := os.Getenv("GAMEPORTAL_FIREBASE_PROJECT_ID")
	if projectID == "" {
		panic("GAMEPORTAL_FIREBASE_PROJECT_ID environment variable must be set")
	}
	databaseURL := os.Getenv("GAMEPORTAL_FIREBASE_DATABASE_URL")
	if databaseURL == "" {
		panic("GAMEPORTAL_FIREBASE_DATABASE_URL environment variable must be set")
	}
	credentials := os.Getenv("GAMEPORTAL_FIREBASE_CREDENTIALS")

	client, err := store.NewFirebaseDatabaseClient(ctx, store.FirebaseDatabaseOptions{
		ProjectID:       projectID,
		DatabaseURL:     databaseURL,
		CredentialsFile: credentials,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create Firebase database client: %v", err))
	}
	provider, err := authproviders.NewFirebaseAuthProvider(ctx, authproviders.NewFirebaseAuthProviderOptions{
		ProjectID:       projectID,
		CredentialsFile: credentials,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to create Firebase auth provider: %v", err))
	}
	return client, provider
}
