package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"fintrack/internal/domain/transaction"
	"fintrack/internal/infrastructure/firebase"
	"fintrack/internal/infrastructure/firestoredb"
	"fintrack/internal/infrastructure/mongodb"
	"fintrack/internal/infrastructure/postgres"
	"fintrack/internal/shared/auth"
	"fintrack/internal/shared/config"
	"fintrack/internal/shared/logging"
)

const usage = `fintrack admin CLI - Management commands for the fintrack API

Usage:
  admin <command> [options]

Commands:
  issue-token   Sign a development bearer token (AUTH_PROVIDER=hmac)
  migrate       Create the tables and indexes the configured store needs
  list          Print the transactions owned by one or more emails

Examples:
  # Token valid for one day
  admin issue-token --email=a@x.com --ttl=24h

  # Prepare the configured store
  STORAGE_DRIVER=postgres admin migrate

  # Dump transactions for several owners
  admin list --email=a@x.com,b@x.com --workers=4
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if err := config.LoadDotEnv(); err != nil {
		logrus.WithError(err).Fatal("Failed to load .env")
	}

	command := os.Args[1]

	var err error
	switch command {
	case "issue-token":
		err = runIssueToken(os.Args[2:])
	case "migrate":
		err = runMigrate(os.Args[2:])
	case "list":
		err = runList(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	if err != nil {
		logrus.WithError(err).WithField("command", command).Fatal("Command failed")
	}
}

func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runIssueToken(args []string) error {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
	email := fs.String("email", "", "Email claim of the token")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	fs.Usage = func() {
		fmt.Println("Usage: admin issue-token --email=<email> [--ttl=1h]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	token, err := issueToken(cfg.Auth, *email, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func issueToken(cfg config.AuthConfig, email string, ttl time.Duration) (string, error) {
	if cfg.Provider != config.AuthHMAC {
		return "", fmt.Errorf("issue-token requires AUTH_PROVIDER=hmac, got %q", cfg.Provider)
	}
	return auth.IssueHMACToken(cfg.HMACSecret, email, cfg.Issuer, cfg.Audience, ttl)
}

func runMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	timeout := fs.Duration("timeout", time.Minute, "Timeout for the operation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			return err
		}

	case config.StorageMongo:
		client, err := mongodb.Connect(ctx, cfg.Storage.Mongo.URI)
		if err != nil {
			return err
		}
		defer client.Disconnect(context.Background())
		coll := client.Database(cfg.Storage.Mongo.Database).Collection(cfg.Storage.Mongo.Collection)
		if err := mongodb.EnsureIndexes(ctx, coll); err != nil {
			return err
		}

	default:
		log.WithField("driver", cfg.Storage.Driver).Info("Nothing to migrate")
		return nil
	}

	log.WithField("driver", cfg.Storage.Driver).Info("Migration complete")
	return nil
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	emails := fs.String("email", "", "Owner email(s) (comma-separated for multiple)")
	workers := fs.Int("workers", 4, "Number of concurrent workers")
	timeout := fs.Duration("timeout", 5*time.Minute, "Timeout for the operation")
	fs.Usage = func() {
		fmt.Println("Usage: admin list --email=<email>[,<email>...] [options]")
		fmt.Println("\nOptions:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	owners := splitEmails(*emails)
	if len(owners) == 0 {
		fs.Usage()
		return fmt.Errorf("must specify --email")
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	start := time.Now()
	results, err := listOwners(ctx, repo, owners, *workers, log)
	if err != nil {
		return err
	}
	if err := printOwners(os.Stdout, owners, results); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"owners":  len(owners),
		"elapsed": time.Since(start),
	}).Info("List completed")
	return nil
}

// listOwners fetches each owner's records through the transaction service,
// running at most workers lookups at once. The first failure cancels the rest.
func listOwners(ctx context.Context, repo transaction.Repository, owners []string, workers int, log logrus.FieldLogger) (map[string][]*transaction.Transaction, error) {
	svc := transaction.NewService(repo, log.WithField("component", "transactions"))

	results := make(map[string][]*transaction.Transaction, len(owners))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, owner := range owners {
		g.Go(func() error {
			list, err := svc.List(gctx, owner, owner)
			if err != nil {
				return fmt.Errorf("list %s: %w", owner, err)
			}
			mu.Lock()
			results[owner] = list
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func printOwners(w io.Writer, owners []string, results map[string][]*transaction.Transaction) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, owner := range owners {
		fmt.Fprintf(w, "=== %s (%d) ===\n", owner, len(results[owner]))
		if err := enc.Encode(results[owner]); err != nil {
			return err
		}
	}
	return nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*postgres.DB, error) {
	dbCfg := cfg.Storage.Database
	return postgres.New(ctx, dbCfg.ConnectionString(), postgres.PoolConfig{
		MaxOpenConns:    dbCfg.MaxOpenConns,
		MaxIdleConns:    dbCfg.MaxIdleConns,
		ConnMaxLifetime: dbCfg.ConnMaxLifetime,
	})
}

func openRepository(ctx context.Context, cfg *config.Config) (transaction.Repository, func(), error) {
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewTransactionStore(db), func() { db.Close() }, nil

	case config.StorageMongo:
		client, err := mongodb.Connect(ctx, cfg.Storage.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		coll := client.Database(cfg.Storage.Mongo.Database).Collection(cfg.Storage.Mongo.Collection)
		return mongodb.NewTransactionStore(coll), func() { client.Disconnect(context.Background()) }, nil

	case config.StorageFirestore:
		app, err := firebase.NewApp(ctx, cfg.Auth.Firebase.CredentialsFile, cfg.Auth.Firebase.ProjectID)
		if err != nil {
			return nil, nil, err
		}
		client, err := firebase.Firestore(ctx, app)
		if err != nil {
			return nil, nil, err
		}
		return firestoredb.NewTransactionStore(client, cfg.Storage.Firestore.Collection), func() { client.Close() }, nil
	}
	return nil, nil, fmt.Errorf("list is not supported for storage driver %q", cfg.Storage.Driver)
}

func splitEmails(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
