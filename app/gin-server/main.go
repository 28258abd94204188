package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yooscribe/config"
	"github.com/yoockh/yooscribe/internal/api/handlers"
	"github.com/yoockh/yooscribe/internal/api/middleware"
	"github.com/yoockh/yooscribe/internal/api/routes"
	"github.com/yoockh/yooscribe/internal/audio"
	"github.com/yoockh/yooscribe/internal/cache"
	"github.com/yoockh/yooscribe/internal/events"
	"github.com/yoockh/yooscribe/internal/logger"
	"github.com/yoockh/yooscribe/internal/models"
	"github.com/yoockh/yooscribe/internal/providers/asr"
	"github.com/yoockh/yooscribe/internal/providers/diarize"
	"github.com/yoockh/yooscribe/internal/providers/llm"
	mongorepo "github.com/yoockh/yooscribe/internal/repositories/mongo"
	"github.com/yoockh/yooscribe/internal/repositories/postgres"
	"github.com/yoockh/yooscribe/internal/services"
	"github.com/yoockh/yooscribe/internal/storage"
	"github.com/yoockh/yooscribe/internal/workers"
)

func main() {
	_ = godotenv.Load()
	log := logger.New()

	if err := config.InitPostgres(); err != nil {
		log.WithError(err).Fatal("postgres init failed")
	}
	log.Info("postgres connected")

	if err := config.InitMongo(); err != nil {
		log.WithError(err).Fatal("mongo init failed")
	}
	if err := config.EnsureMongoIndexes(); err != nil {
		log.WithError(err).Fatal("mongo index setup failed")
	}
	log.Info("mongo connected")

	if err := config.InitRedis(); err != nil {
		log.WithError(err).Fatal("redis init failed")
	}
	log.Info("redis connected")

	if err := config.PostgresDB.AutoMigrate(&models.Conversation{}, &models.Chunk{}); err != nil {
		log.WithError(err).Fatal("postgres migration failed")
	}

	store, err := buildStore(log)
	if err != nil {
		log.WithError(err).Fatal("storage init failed")
	}

	chunkRepo := postgres.NewChunkRepo(config.PostgresDB)
	convRepo := postgres.NewConversationRepo(config.PostgresDB)

	mongoDB := os.Getenv("MONGO_DB")
	if mongoDB == "" {
		mongoDB = "yooscribe"
	}
	eventRepo := mongorepo.NewEventRepo(config.MongoClient.Database(mongoDB), 0)

	redisCache := cache.NewRedisCache(config.RedisClient)
	publisher := events.NewRedisPublisher(config.RedisClient, log)

	engine := buildASR(log)
	diarEngine := buildDiarizer(log)
	assistantLLM := buildLLM(log)

	convService := services.NewConversationService(convRepo, chunkRepo, store, redisCache, publisher, log)
	pipeline := services.NewPipelineService(
		chunkRepo, audio.NewConditioner(log), engine, diarEngine,
		store, redisCache, publisher, eventRepo, convService, log,
	)
	dispatcher := workers.NewDispatcher(pipeline, 0, log)
	chunkService := services.NewChunkService(chunkRepo, convRepo, store, redisCache, publisher, dispatcher, convService, eventRepo, log)
	assistant := services.NewAssistantService(assistantLLM, convRepo, 0, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Chunk:        handlers.NewChunkHandler(chunkService),
		Conversation: handlers.NewConversationHandler(convService),
		Assistant:    handlers.NewAssistantHandler(assistant),
		Meta:         handlers.NewMetaHandler(diarEngine != nil, assistantLLM != nil),
		WS:           handlers.NewWSHandler(convService, chunkService, config.RedisClient),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.WithField("port", port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	// let in-flight chunk tasks drain
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("pipeline shutdown incomplete, chunks stay claimable via retry")
	}
	if err := engine.Close(); err != nil {
		log.WithError(err).Warn("asr engine close failed")
	}
	if diarEngine != nil {
		_ = diarEngine.Close()
	}
	if assistantLLM != nil {
		_ = assistantLLM.Close()
	}
}

// buildStore wires local disk storage, optionally decorated with GCS
// archival when a bucket is configured.
func buildStore(log *logrus.Logger) (storage.Store, error) {
	audioDir := os.Getenv("AUDIO_DIR")
	if audioDir == "" {
		audioDir = "data/audio"
	}
	transcriptDir := os.Getenv("TRANSCRIPT_DIR")
	if transcriptDir == "" {
		transcriptDir = "data/transcripts"
	}

	disk, err := storage.NewDiskStore(audioDir, transcriptDir)
	if err != nil {
		return nil, err
	}

	bucket := os.Getenv("GCS_BUCKET")
	if bucket == "" {
		return disk, nil
	}
	uploader, err := storage.NewGCSUploader(context.Background(), bucket)
	if err != nil {
		return nil, err
	}
	log.WithField("bucket", bucket).Info("gcs archival enabled")
	return storage.NewArchivingStore(disk, uploader, log), nil
}

// buildASR prefers a whisperd sidecar and falls back to Google Speech.
// Construction is lazy either way so startup does not pay for warmup.
func buildASR(log *logrus.Logger) asr.Engine {
	if url := os.Getenv("WHISPERD_URL"); url != "" {
		log.WithField("url", url).Info("using whisperd for recognition")
		return asr.NewLazy(func(ctx context.Context) (asr.Engine, error) {
			return asr.NewWhisperd(url), nil
		})
	}
	log.Info("using google speech for recognition")
	return asr.NewLazy(func(ctx context.Context) (asr.Engine, error) {
		return asr.NewGoogleSpeech(ctx)
	})
}

func buildDiarizer(log *logrus.Logger) diarize.Engine {
	url := os.Getenv("PYANNOTED_URL")
	if url == "" {
		log.Info("diarization disabled")
		return nil
	}
	log.WithField("url", url).Info("using pyannoted for diarization")
	return diarize.NewLazy(func(ctx context.Context) (diarize.Engine, error) {
		return diarize.NewPyannoted(url), nil
	})
}

func buildLLM(log *logrus.Logger) llm.Provider {
	if project := os.Getenv("GCP_PROJECT"); project != "" {
		location := os.Getenv("GCP_LOCATION")
		if location == "" {
			location = "us-central1"
		}
		model := os.Getenv("GEMINI_MODEL")
		if model == "" {
			model = "gemini-1.5-flash"
		}
		p, err := llm.NewVertexGemini(context.Background(), project, location, model)
		if err != nil {
			log.WithError(err).Warn("vertex init failed, assistant disabled")
			return nil
		}
		log.WithField("model", model).Info("assistant backed by vertex gemini")
		return p
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		log.WithField("url", url).Info("assistant backed by ollama")
		return llm.NewOllama(url, os.Getenv("OLLAMA_MODEL"))
	}
	log.Info("assistant disabled")
	return nil
}
