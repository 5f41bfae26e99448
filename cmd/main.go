package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/flow-authz/internal/cosign"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/blockchain"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/firebase"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/middleware"
	"github.com/kollektive-hackathon/flow-authz/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/flow-authz/pkg/fcl/address"
	"github.com/onflow/flow-go-sdk/crypto/cloudkms"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	setupViper()
	setupZerolog()
	pubsub.InitPubSub()
	db := setupDb()
	kmsClient := setupKms()
	checkAccessNode()

	defer func() { pubsub.CloseClient() }()

	firebase.InitFirebaseSdk()

	apiRouter := setupApiRouter(db, kmsClient)

	port := viper.GetString("PORT")
	server := &http.Server{
		Addr:         port,
		Handler:      apiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Info().Msg("Listening on " + port)
	if err := server.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func setupDb() *gorm.DB {
	dbUrl := viper.GetString("DB_URL")

	db, err := gorm.Open(postgres.Open(dbUrl), &gorm.Config{})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	sqlDb, _ := db.DB()

	sqlDb.SetMaxOpenConns(50)
	sqlDb.SetConnMaxLifetime(time.Minute * 10)

	return db
}

func setupKms() *cloudkms.Client {
	kmsClient, err := cloudkms.NewClient(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize KMS client")
	}
	return kmsClient
}

func checkAccessNode() {
	client, err := blockchain.NewAccessClient()
	if err != nil {
		log.Warn().Err(err).Msg("Flow access node unavailable")
		return
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Flow access node did not answer ping")
	}
}

func setupApiRouter(db *gorm.DB, kmsClient *cloudkms.Client) *gin.Engine {
	apiRouter := gin.Default()
	routerGroup := apiRouter.Group("/flow-authz-api")

	middleware.RegisterGlobalMiddleware(apiRouter)

	registry := address.NewRegistry(blockchain.ChainID())
	cosign.RegisterRoutesAndSubscriptions(routerGroup, db, kmsClient, registry)

	return apiRouter
}

func setupViper() {
	viper.AutomaticEnv()
	viper.SetConfigFile("./.env")
	if err := viper.ReadInConfig(); err != nil {
		log.Debug().Err(err).Msg("No .env file, using environment only")
	}
}

func setupZerolog() {
	zerolog.LevelFieldName = "severity"
	zerolog.TimestampFieldName = "time"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
