package main

import (
	"context"
	"time"

	"github.com/couchbase/gocbcore/v9"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	transactions "github.com/geodata/featuretxn"
	"github.com/geodata/featuretxn/api"
	"github.com/geodata/featuretxn/cbstore"
	"github.com/geodata/featuretxn/featurestore"
	"github.com/geodata/featuretxn/internal/config"
)

const agentReadyTimeout = 30 * time.Second

// recordBackend bundles the record stores of the configured backend with
// the read side served by the api.
type recordBackend struct {
	provider transactions.RecordStoreProviderFn
	features api.FeatureReader
	agent    *gocbcore.Agent
	lg       *zap.Logger
}

func newRecordBackend(cfg *config.Config, lg *zap.Logger) (*recordBackend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return newMemoryBackend(cfg, lg)
	case config.BackendCouchbase:
		return newCouchbaseBackend(cfg, lg)
	}

	return nil, errors.Errorf("unknown backend %q", cfg.Backend)
}

func newMemoryBackend(cfg *config.Config, lg *zap.Logger) (*recordBackend, error) {
	store := featurestore.New(lg.Named("features"))
	for _, col := range cfg.Collections {
		if _, err := store.CreateCollection(col.ID, col.Versioned); err != nil {
			return nil, err
		}
	}

	return &recordBackend{
		provider: store.Provider(),
		features: store,
		lg:       lg,
	}, nil
}

func newCouchbaseBackend(cfg *config.Config, lg *zap.Logger) (*recordBackend, error) {
	agent, err := connectAgent(cfg.Couchbase, lg)
	if err != nil {
		return nil, err
	}

	durabilityLevel, err := cbstore.DurabilityLevelFromString(cfg.Couchbase.DurabilityLevel)
	if err != nil {
		_ = agent.Close()
		return nil, err
	}

	store := cbstore.New(agent, cbstore.Config{
		ScopeName:        cfg.Couchbase.Scope,
		CollectionName:   cfg.Couchbase.Collection,
		DurabilityLevel:  durabilityLevel,
		OperationTimeout: cfg.OperationTimeout.Duration,
		Logger:           lg.Named("cbstore"),
	})

	ctx, cancel := context.WithTimeout(context.Background(), agentReadyTimeout)
	defer cancel()
	for _, col := range cfg.Collections {
		err := store.CreateCollection(ctx, col.ID, col.Versioned)
		if err != nil && !errors.Is(err, gocbcore.ErrDocumentExists) {
			_ = agent.Close()
			return nil, err
		}
	}

	return &recordBackend{
		provider: store.Provider(),
		features: store,
		agent:    agent,
		lg:       lg,
	}, nil
}

func connectAgent(cfg config.CouchbaseConfig, lg *zap.Logger) (*gocbcore.Agent, error) {
	agentConfig := &gocbcore.AgentConfig{
		UserAgent:      "featuretxnd",
		BucketName:     cfg.Bucket,
		UseCollections: cfg.Scope != "" || cfg.Collection != "",
		Auth: gocbcore.PasswordAuthProvider{
			Username: cfg.Username,
			Password: cfg.Password,
		},
	}
	if err := agentConfig.FromConnStr(cfg.ConnStr); err != nil {
		return nil, errors.Wrap(err, "invalid couchbase connection string")
	}

	agent, err := gocbcore.CreateAgent(agentConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create couchbase agent")
	}

	waitCh := make(chan error, 1)
	_, err = agent.WaitUntilReady(time.Now().Add(agentReadyTimeout), gocbcore.WaitUntilReadyOptions{},
		func(res *gocbcore.WaitUntilReadyResult, err error) {
			waitCh <- err
		})
	if err == nil {
		err = <-waitCh
	}
	if err != nil {
		_ = agent.Close()
		return nil, errors.Wrap(err, "couchbase agent not ready")
	}

	lg.Info("connected to couchbase", zap.String("bucket", cfg.Bucket))

	return agent, nil
}

func (b *recordBackend) Close() {
	if b.agent == nil {
		return
	}
	if err := b.agent.Close(); err != nil {
		b.lg.Warn("failed to close couchbase agent", zap.Error(err))
	}
}
