package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"chatwork-bot/chatwork"
	"chatwork-bot/commands"
	"chatwork-bot/db"
	"chatwork-bot/gemini"
	"chatwork-bot/handlers"
	"chatwork-bot/moderation"
	"chatwork-bot/persistence"
	"chatwork-bot/ranking"
	"chatwork-bot/utils"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	conf, err := utils.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("loading configuration failed")
	}

	dbManager, err := db.NewMySQLManager(conf.Database.GetDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("connecting to MySQL failed")
	}
	defer dbManager.Close()

	if err := dbManager.InitTables(); err != nil {
		log.Fatal().Err(err).Msg("initializing tables failed")
	}

	dedup, err := persistence.NewDedupStore(conf.DedupPath)
	if err != nil {
		log.Fatal().Err(err).Msg("opening dedup store failed")
	}
	defer dedup.Close()

	chatClient := chatwork.NewClient(conf.ChatworkToken)
	aiClient := gemini.NewClient(conf.GeminiAPIKey)
	engine := ranking.NewEngine(chatClient, dbManager, conf.ExcludedRoomIDs)

	moderator := moderation.NewModerator(chatClient, conf.AdminAccountID)
	moderator.Start()
	defer moderator.Stop()

	dispatcher := commands.NewDispatcher(chatClient, dbManager, engine, aiClient, conf.BotAccountID)

	timeReport := handlers.NewTimeReportService(chatClient, dbManager)
	timeReport.Start()
	defer timeReport.Stop()

	hub := handlers.NewHub()
	webhook := handlers.NewWebhookHandler(dbManager, moderator, dispatcher, dedup, hub, conf.BotAccountID)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/webhook", webhook.HandleWebhook)
	router.GET("/webhook", webhook.HandleLiveness)
	router.GET("/ws", hub.HandleWS)

	addr := fmt.Sprintf(":%d", conf.Server.Port)
	go func() {
		log.Info().Str("addr", addr).Msg("webhook server listening")
		if err := router.Run(addr); err != nil {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Info().Msg("shutting down")
}
