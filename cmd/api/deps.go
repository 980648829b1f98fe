package main

import (
	"context"
	"fmt"

	firebasesdk "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"

	"fintrack/internal/domain/transaction"
	"fintrack/internal/infrastructure/firebase"
	"fintrack/internal/infrastructure/firestoredb"
	"fintrack/internal/infrastructure/memory"
	"fintrack/internal/infrastructure/mongodb"
	"fintrack/internal/infrastructure/postgres"
	"fintrack/internal/infrastructure/postgres/listener"
	httphandlers "fintrack/internal/interfaces/http"
	"fintrack/internal/shared/auth"
	"fintrack/internal/shared/config"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	Verifier           auth.Verifier
	TransactionHandler *httphandlers.TransactionHandler

	log     logrus.FieldLogger
	closers []func(context.Context) error
}

// NewDependencies initializes the identity provider and the transaction
// store. A provider that fails to start leaves Verifier nil so protected
// routes answer 503; a store that fails to start is a startup error.
func NewDependencies(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Dependencies, error) {
	deps := &Dependencies{log: log}

	var app *firebasesdk.App
	if cfg.Auth.Provider == config.AuthFirebase || cfg.Storage.Driver == config.StorageFirestore {
		var err error
		app, err = firebase.NewApp(ctx, cfg.Auth.Firebase.CredentialsFile, cfg.Auth.Firebase.ProjectID)
		if err != nil {
			log.WithError(err).Error("Firebase initialization failed")
		}
	}

	deps.Verifier = newVerifier(ctx, cfg, app, log, deps)

	repo, err := newRepository(ctx, cfg, app, log, deps)
	if err != nil {
		deps.Close(ctx)
		return nil, err
	}

	service := transaction.NewService(repo, log.WithField("component", "transactions"))
	deps.TransactionHandler = httphandlers.NewTransactionHandler(service, log.WithField("component", "http"))

	return deps, nil
}

func newVerifier(ctx context.Context, cfg *config.Config, app *firebasesdk.App, log *logrus.Logger, deps *Dependencies) auth.Verifier {
	switch cfg.Auth.Provider {
	case config.AuthFirebase:
		if app == nil {
			return nil
		}
		client, err := firebase.NewClient(ctx, app)
		if err != nil {
			log.WithError(err).Error("Firebase auth unavailable; protected routes will answer 503")
			return nil
		}
		log.Info("Verifying tokens with Firebase Authentication")
		return client

	case config.AuthJWKS:
		verifier, err := auth.NewJWKSVerifier(cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience, log)
		if err != nil {
			log.WithError(err).Error("JWKS unavailable; protected routes will answer 503")
			return nil
		}
		deps.closers = append(deps.closers, func(context.Context) error {
			verifier.Close()
			return nil
		})
		log.WithField("jwks_url", cfg.Auth.JWKSURL).Info("Verifying tokens against JWKS")
		return verifier

	case config.AuthHMAC:
		log.Warn("Verifying tokens with a shared HMAC secret; use for development only")
		return auth.NewHMACVerifier(cfg.Auth.HMACSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	}
	return nil
}

func newRepository(ctx context.Context, cfg *config.Config, app *firebasesdk.App, log *logrus.Logger, deps *Dependencies) (transaction.Repository, error) {
	switch cfg.Storage.Driver {
	case config.StorageMongo:
		client, err := mongodb.Connect(ctx, cfg.Storage.Mongo.URI)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, client.Disconnect)

		coll := client.Database(cfg.Storage.Mongo.Database).Collection(cfg.Storage.Mongo.Collection)
		if cfg.Storage.Migrate {
			if err := mongodb.EnsureIndexes(ctx, coll); err != nil {
				return nil, err
			}
		}
		log.WithFields(logrus.Fields{
			"database":   cfg.Storage.Mongo.Database,
			"collection": cfg.Storage.Mongo.Collection,
		}).Info("Connected to MongoDB")
		return mongodb.NewTransactionStore(coll), nil

	case config.StorageFirestore:
		if app == nil {
			return nil, fmt.Errorf("firestore storage requires a working firebase app")
		}
		client, err := firebase.Firestore(ctx, app)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func(context.Context) error { return client.Close() })
		log.WithField("collection", cfg.Storage.Firestore.Collection).Info("Connected to Firestore")
		return firestoredb.NewTransactionStore(client, cfg.Storage.Firestore.Collection), nil

	case config.StoragePostgres:
		dbCfg := cfg.Storage.Database
		db, err := postgres.New(ctx, dbCfg.ConnectionString(), postgres.PoolConfig{
			MaxOpenConns:    dbCfg.MaxOpenConns,
			MaxIdleConns:    dbCfg.MaxIdleConns,
			ConnMaxLifetime: dbCfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, func(context.Context) error { return db.Close() })

		if cfg.Storage.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, err
			}
		}
		if dbCfg.ListenChanges {
			startChangeListener(ctx, dbCfg.ConnectionString(), log, deps)
		}
		log.WithField("database", dbCfg.DBName).Info("Connected to PostgreSQL")
		return postgres.NewTransactionStore(db), nil

	case config.StorageMemory:
		log.Warn("Using in-memory transaction store; data is lost on restart")
		return memory.NewTransactionStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func startChangeListener(ctx context.Context, connStr string, log *logrus.Logger, deps *Dependencies) {
	changes := log.WithField("component", "changes")
	l := listener.NewChangeListener(connStr, postgres.ChangeChannel, func(c listener.Change) {
		changes.WithFields(logrus.Fields{
			"op":    c.Op,
			"id":    c.ID,
			"email": c.Email,
		}).Info("Transaction changed")
	}, changes)
	l.Start(ctx)
	deps.closers = append(deps.closers, func(context.Context) error {
		l.Stop()
		return nil
	})
}

// Close releases all resources held by dependencies, newest first.
func (d *Dependencies) Close(ctx context.Context) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](ctx); err != nil {
			d.log.WithError(err).Warn("Error releasing dependency")
		}
	}
	d.closers = nil
}
