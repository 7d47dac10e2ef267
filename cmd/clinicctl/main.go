package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Manage clinic members and appointments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(patientCmd())
	rootCmd.AddCommand(physicianCmd())
	rootCmd.AddCommand(bookCmd())
	rootCmd.AddCommand(statusCmd("cancel", "Cancel a scheduled appointment", (*appointment.Service).Cancel))
	rootCmd.AddCommand(statusCmd("complete", "Mark a scheduled appointment as completed", (*appointment.Service).Complete))
	rootCmd.AddCommand(membersCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// backend holds the connections a command opened.
type backend struct {
	svc   *appointment.Service
	pool  *pgxpool.Pool
	redis *redis.Client
}

func (b *backend) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// openBackend builds the service from the same environment as api-server.
// The in-memory store is refused since nothing would survive the command.
func openBackend(ctx context.Context) (*backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.Store != config.StorePostgres {
		return nil, fmt.Errorf("clinicctl needs STORE=%s, got %q", config.StorePostgres, cfg.Store)
	}

	b := &backend{}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	b.pool, err = db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{MaxConns: 4})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, b.pool); err != nil {
			b.Close()
			return nil, err
		}
	}

	var locker redisclient.Locker = redisclient.NewLocalLocker()
	if cfg.LockBackend == config.LockRedis {
		b.redis, err = redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		locker = redisclient.NewRedisPhysicianLocker(b.redis, cfg.LockTTL)
	}

	b.svc = appointment.NewService(appointment.NewPgRepository(b.pool), locker)
	return b, nil
}

// withService opens the backend for the duration of fn.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc *appointment.Service) error) error {
	ctx := cmd.Context()
	b, err := openBackend(ctx)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b.svc)
}
