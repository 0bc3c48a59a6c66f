package main

import (
	"context"
	"os"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/phishguard/internal/adapters/llm/gemini"
	"github.com/iamwavecut/phishguard/internal/adapters/llm/openai"
	"github.com/iamwavecut/phishguard/internal/bot"
	"github.com/iamwavecut/phishguard/internal/classifier"
	"github.com/iamwavecut/phishguard/internal/config"
	"github.com/iamwavecut/phishguard/internal/db/sqlite"
	"github.com/iamwavecut/phishguard/internal/handlers/chat"
	"github.com/iamwavecut/phishguard/internal/infra"
	"github.com/iamwavecut/phishguard/internal/infrastructure/telegram"
	"github.com/iamwavecut/phishguard/internal/lifecycle"
	"github.com/iamwavecut/phishguard/internal/moderation"
	"github.com/iamwavecut/phishguard/internal/observability"
)

func main() {
	cfg := config.Get()
	log.SetFormatter(&config.PgFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	infra.GoRecoverable(-1, "main", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if err := observability.Init(ctx); err != nil {
			log.WithError(err).Errorln("cant initialize observability")
		}

		botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
		if err != nil {
			log.WithError(err).Errorln("cant initialize bot api")
			time.Sleep(1 * time.Second)
			log.Fatalln("exiting")
		}
		if log.Level(cfg.LogLevel) == log.TraceLevel {
			botAPI.Debug = true
		}
		defer botAPI.StopReceivingUpdates()

		dbClient, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(), "bot.db")
		if err != nil {
			log.WithError(err).Fatalln("cant initialize storage")
		}
		defer dbClient.Close()

		model, err := newClassifierModel(ctx, cfg)
		if err != nil {
			log.WithError(err).Fatalln("cant initialize classifier")
		}
		gateway := classifier.NewGateway(model)

		dispatcher := moderation.NewDispatcher(telegram.NewOperations(botAPI), dbClient)
		engine := moderation.NewEngine(dbClient, gateway, dispatcher, moderation.ParseResetPolicy(cfg.Moderation.ResetPolicy))

		service := bot.NewService(botAPI, dbClient)
		moderator := chat.NewModerator(service, engine, cfg.Moderation)
		bot.RegisterUpdateHandler("moderator", moderator)

		runtime := lifecycle.NewRuntime(
			observability.NewMetricsServer(cfg.Observability.MetricsListenAddr),
			moderator,
		)
		if err := runtime.Start(ctx); err != nil {
			log.WithError(err).Fatalln("cant start runtime")
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := runtime.Stop(stopCtx); err != nil {
				log.WithError(err).Errorln("cant stop runtime cleanly")
			}
		}()

		updateConfig := api.NewUpdate(0)
		updateConfig.Timeout = 60
		updateProcessor := bot.NewUpdateProcessor(service)
		updateChan, errorChan := bot.GetUpdatesChans(botAPI, updateConfig)

		g, gCtx := errgroup.WithContext(ctx)
		g.Go(func() error {
			for {
				select {
				case err := <-errorChan:
					return err
				case update := <-updateChan:
					if err := updateProcessor.Process(gCtx, &update); err != nil {
						log.WithError(err).Errorln("cant process update")
					}
				case <-gCtx.Done():
					return gCtx.Err()
				}
			}
		})
		g.Go(func() error {
			select {
			case <-infra.MonitorExecutable(gCtx):
				log.Errorln("executable file was modified")
				cancel()
			case <-gCtx.Done():
			}
			return gCtx.Err()
		})

		if err := g.Wait(); err != nil && err != context.Canceled {
			log.WithError(err).Errorln("no more updates")
		}
	})
	os.Exit(0)
}

func newClassifierModel(ctx context.Context, cfg config.Config) (classifier.Model, error) {
	switch cfg.Classifier.Type {
	case "openai":
		backend := openai.NewOpenAI(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, log.WithField("object", "OpenAI"))
		return classifier.NewLLMModel(backend), nil
	case "gemini":
		backend, err := gemini.NewGemini(ctx, cfg.LLM.APIKey, cfg.LLM.Model, log.WithField("object", "Gemini"))
		if err != nil {
			return nil, err
		}
		return classifier.NewLLMModel(backend), nil
	default:
		return classifier.NewLocalModel(infra.GetWorkDir(cfg.Classifier.ModelsDir), cfg.Classifier.ModelName)
	}
}
