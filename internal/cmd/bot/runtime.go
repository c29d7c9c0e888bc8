package bot

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	discordadapter "github.com/ashgrove-games/talespinner/internal/guildsync/discord"
	"github.com/ashgrove-games/talespinner/internal/guildsync/outbox"
	"github.com/ashgrove-games/talespinner/internal/guildsync/reconcile"
	guildsqlite "github.com/ashgrove-games/talespinner/internal/guildsync/storage/sqlite"
)

const defaultBotPort = 8091

// runRuntime starts bot runtime dependencies and the outbox drain loop: the
// SQLite store, the Discord gateway session, the reconciler stack, a gRPC
// health endpoint, and the poll loop that bridges web writes to Discord.
func runRuntime(ctx context.Context, cfg Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultBotPort
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create bot storage dir: %w", err)
		}
	}

	store, err := guildsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open bot sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close bot sqlite store: %v", closeErr)
		}
	}()

	session, err := discordgo.New("Bot " + cfg.BotToken)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	if err := session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			log.Printf("close discord session: %v", closeErr)
		}
	}()
	if session.State == nil || session.State.User == nil {
		return fmt.Errorf("discord session has no bot user")
	}

	adapter := discordadapter.NewAdapter(session, session.State.User.ID)
	session.AddHandler(func(_ *discordgo.Session, update *discordgo.GuildRoleUpdate) {
		adapter.InvalidateRoles(update.GuildID)
	})
	session.AddHandler(func(_ *discordgo.Session, create *discordgo.GuildRoleCreate) {
		adapter.InvalidateRoles(create.GuildID)
	})
	session.AddHandler(func(_ *discordgo.Session, deleted *discordgo.GuildRoleDelete) {
		adapter.InvalidateRoles(deleted.GuildID)
	})

	var pacer *rate.Limiter
	if cfg.PaceInterval > 0 {
		pacer = rate.NewLimiter(rate.Every(cfg.PaceInterval), 1)
	}
	reconciler := reconcile.NewReconciler(adapter, pacer)
	orchestrator := reconcile.NewOrchestrator(store, adapter, reconciler)

	consumer := outbox.NewConsumer(store, store, orchestrator, cfg.OutboxTarget)
	if cfg.MaxAttempts > 0 {
		consumer.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.RetryBackoff > 0 {
		consumer.RetryBackoff = cfg.RetryBackoff
	}
	if cfg.RetryMaxDelay > 0 {
		consumer.RetryMaxDelay = cfg.RetryMaxDelay
	}
	if cfg.BatchSize > 0 {
		consumer.BatchSize = cfg.BatchSize
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on bot port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("bot.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("bot server listening at %v", listener.Addr())
	return outbox.Loop(ctx, consumer, cfg.PollInterval)
}
