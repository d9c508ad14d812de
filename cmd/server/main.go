package main

import (
	"context"
	"log"

	"github.com/haatos/pipewright/internal"
	"github.com/haatos/pipewright/internal/handler"
	"github.com/haatos/pipewright/internal/security"
	"github.com/haatos/pipewright/internal/service"
	"github.com/haatos/pipewright/internal/settings"
	"github.com/haatos/pipewright/internal/store"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func main() {
	internal.InitializeConfiguration()
	settings.ReadDotenv(internal.DotEnvPath)
	settings.Settings = settings.NewSettings()
	hashKey := security.EnsureHashKey()

	rdb := store.InitDatabase(true)
	defer rdb.Close()
	rwdb := store.InitDatabase(false)
	defer rwdb.Close()
	store.RunMigrations(rwdb, migrationDialect())

	scheduler := service.NewScheduler()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			log.Println("err shutting down scheduler:", err)
		}
	}()

	credentialStore := store.NewCredentialSQLiteStore(rdb, rwdb)
	agentStore := store.NewAgentSQLiteStore(rdb, rwdb)
	pipelineStore := store.NewPipelineSQLiteStore(rdb, rwdb)
	runStore := store.NewRunSQLiteStore(rdb, rwdb)
	jobResultStore := store.NewJobResultSQLiteStore(rdb, rwdb)
	apiKeyStore := store.NewAPIKeySQLiteStore(rdb, rwdb)
	aesEncrypter := security.NewAESEncrypter(hashKey)

	credentialSvc := service.NewCredentialService(credentialStore, aesEncrypter)
	agentSvc := service.NewAgentService(agentStore, credentialSvc)
	if _, err := agentStore.CreateControllerAgent(context.Background()); err != nil {
		log.Fatal("err creating controller agent: ", err)
	}
	apiKeySvc := service.NewAPIKeyService(apiKeyStore, service.NewUUIDGen())

	jobRunner := service.NewJobRunner(
		service.NewPredicateGate(),
		service.NewEnvironmentProvisioner(internal.Config.ProvisionTimeout.Duration()),
		service.NewStepExecutor(
			internal.Config.MaxStepOutputBytes,
			internal.Config.DefaultStepTimeout.Duration(),
		),
	)
	pipelineSvc := service.NewPipelineService(
		pipelineStore,
		runStore,
		jobResultStore,
		agentStore,
		scheduler,
		aesEncrypter,
		jobRunner,
	)
	if err := pipelineSvc.InitializeRunQueues(context.Background()); err != nil {
		log.Fatal(err)
	}
	defer pipelineSvc.ShutdownAll()
	if err := pipelineSvc.InitializeSchedules(context.Background()); err != nil {
		log.Fatal(err)
	}
	scheduler.Start()

	e := setupEcho()
	api := e.Group("/api", handler.APIKeyAuth(apiKeySvc))
	handler.SetupEventRoutes(api, pipelineSvc)
	handler.SetupPipelineRoutes(api, pipelineSvc)
	handler.SetupAgentRoutes(api, agentSvc)
	handler.SetupCredentialRoutes(api, credentialSvc)
	handler.SetupAPIKeyRoutes(api, apiKeySvc)

	internal.GracefulShutdown(e, settings.Settings.Port)
}

func setupEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(
		middleware.CORSWithConfig(internal.GetCORSConfig()),
		middleware.RateLimiterWithConfig(internal.GetRateLimiterConfig()),
	)
	return e
}

func migrationDialect() string {
	if settings.Settings.DatabaseDriver == "postgres" {
		return "postgres"
	}
	return "sqlite3"
}
