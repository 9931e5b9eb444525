// Package cbstore implements transactions.RecordStore on a Couchbase bucket
// through gocbcore.
//
// Each collection owns three kinds of documents, all prefixed with the
// collection id:
//
//	<id>::meta          {"versioned": bool, "epoch": int}
//	<id>::seq           counter used to allocate feature ids
//	<id>::feature::<n>  {"vid": int, "geom": ..., "fields": {...}}
package cbstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchbase/gocbcore/v9"
	"github.com/couchbase/gocbcore/v9/memd"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	transactions "github.com/geodata/featuretxn"
	"github.com/geodata/featuretxn/featurestore"
)

// DurabilityLevel specifies the durability level to use for a mutation.
type DurabilityLevel int

const (
	// DurabilityLevelNone indicates that no durability is needed.
	DurabilityLevelNone = DurabilityLevel(0)

	// DurabilityLevelMajority indicates the operation must be replicated to the majority.
	DurabilityLevelMajority = DurabilityLevel(1)

	// DurabilityLevelMajorityAndPersistToActive indicates the operation must be replicated
	// to the majority and persisted to the active server.
	DurabilityLevelMajorityAndPersistToActive = DurabilityLevel(2)

	// DurabilityLevelPersistToMajority indicates the operation must be persisted to the active server.
	DurabilityLevelPersistToMajority = DurabilityLevel(3)
)

// DurabilityLevelFromString parses the config spelling of a durability level.
func DurabilityLevelFromString(level string) (DurabilityLevel, error) {
	switch level {
	case "", "none":
		return DurabilityLevelNone, nil
	case "majority":
		return DurabilityLevelMajority, nil
	case "majority_and_persist_to_active":
		return DurabilityLevelMajorityAndPersistToActive, nil
	case "persist_to_majority":
		return DurabilityLevelPersistToMajority, nil
	}
	return DurabilityLevelNone, fmt.Errorf("unknown durability level %q", level)
}

func durabilityLevelToMemd(durabilityLevel DurabilityLevel) memd.DurabilityLevel {
	switch durabilityLevel {
	case DurabilityLevelNone:
		return memd.DurabilityLevel(0)
	case DurabilityLevelMajority:
		return memd.DurabilityLevelMajority
	case DurabilityLevelMajorityAndPersistToActive:
		return memd.DurabilityLevelMajorityAndPersistOnMaster
	case DurabilityLevelPersistToMajority:
		return memd.DurabilityLevelPersistToMajority
	default:
		panic("unexpected durability level")
	}
}

// Config specifies where the collections live in the bucket.
type Config struct {
	ScopeName        string
	CollectionName   string
	DurabilityLevel  DurabilityLevel
	OperationTimeout time.Duration
	Logger           *zap.Logger
}

type jsonMeta struct {
	Versioned bool               `json:"versioned"`
	Epoch     transactions.Epoch `json:"epoch"`
}

type jsonFeature struct {
	Version transactions.Version   `json:"vid"`
	Geom    *string                `json:"geom,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Store resolves collections stored in a single bucket.
type Store struct {
	agent  KVAgent
	config Config
}

// New returns a Store using agent for all KV operations.
func New(agent KVAgent, config Config) *Store {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.OperationTimeout == 0 {
		config.OperationTimeout = 2500 * time.Millisecond
	}

	return &Store{
		agent:  agent,
		config: config,
	}
}

// Collection returns the record store of a collection. The collection is
// not checked for existence until it is used.
func (s *Store) Collection(id string) *Collection {
	return &Collection{
		agent:           s.agent,
		id:              id,
		scopeName:       s.config.ScopeName,
		collectionName:  s.config.CollectionName,
		durabilityLevel: durabilityLevelToMemd(s.config.DurabilityLevel),
		opTimeout:       s.config.OperationTimeout,
		logger:          s.config.Logger,
	}
}

// Provider returns a RecordStoreProviderFn resolving collections of s.
func (s *Store) Provider() transactions.RecordStoreProviderFn {
	return func(collectionID string) (transactions.RecordStore, error) {
		return s.Collection(collectionID), nil
	}
}

// CreateCollection writes the meta document of a new collection.
func (s *Store) CreateCollection(ctx context.Context, id string, versioned bool) error {
	c := s.Collection(id)

	meta := jsonMeta{Versioned: versioned}
	if versioned {
		meta.Epoch = 1
	}
	value, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	if _, err := c.blkAdd(ctx, c.metaKey(), value); err != nil {
		return errors.Wrapf(err, "failed to create collection %s", id)
	}

	c.logger.Info("collection created",
		zap.String("collection", id),
		zap.Bool("versioned", versioned))

	return nil
}

// Collection is a transactions.RecordStore backed by documents of a bucket.
type Collection struct {
	agent           KVAgent
	id              string
	scopeName       string
	collectionName  string
	durabilityLevel memd.DurabilityLevel
	opTimeout       time.Duration
	logger          *zap.Logger
}

var _ transactions.RecordStore = &Collection{}

func (c *Collection) metaKey() []byte {
	return []byte(c.id + "::meta")
}

func (c *Collection) seqKey() []byte {
	return []byte(c.id + "::seq")
}

func (c *Collection) featureKey(id transactions.RecordID) []byte {
	return []byte(fmt.Sprintf("%s::feature::%d", c.id, id))
}

// Versioning implements transactions.RecordStore.
func (c *Collection) Versioning(ctx context.Context) (transactions.Epoch, bool, error) {
	res, err := c.blkGet(ctx, c.metaKey())
	if err != nil {
		if errors.Is(err, gocbcore.ErrDocumentNotFound) {
			return 0, false, errors.Wrapf(transactions.ErrCollectionNotFound, "collection %s", c.id)
		}
		return 0, false, err
	}

	var meta jsonMeta
	if err := json.Unmarshal(res.Value, &meta); err != nil {
		return 0, false, errors.Wrapf(err, "invalid meta document of collection %s", c.id)
	}

	return meta.Epoch, meta.Versioned, nil
}

// Create implements transactions.RecordStore.
func (c *Collection) Create(ctx context.Context, record transactions.Record) (transactions.RecordID, transactions.Version, error) {
	value, err := json.Marshal(jsonFeature{
		Version: 1,
		Geom:    record.Geom,
		Fields:  record.Fields,
	})
	if err != nil {
		return 0, 0, errors.Wrap(transactions.ErrRecordInvalid, err.Error())
	}

	seq, err := c.blkIncrement(ctx, c.seqKey(), 1)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to allocate feature id")
	}
	id := transactions.RecordID(seq)

	if _, err := c.blkAdd(ctx, c.featureKey(id), value); err != nil {
		return 0, 0, err
	}

	return id, 1, nil
}

func (c *Collection) getFeature(ctx context.Context, id transactions.RecordID) (*jsonFeature, gocbcore.Cas, error) {
	res, err := c.blkGet(ctx, c.featureKey(id))
	if err != nil {
		if errors.Is(err, gocbcore.ErrDocumentNotFound) {
			return nil, 0, errors.Wrapf(transactions.ErrRecordNotFound, "feature %d", id)
		}
		return nil, 0, err
	}

	var feature jsonFeature
	if err := json.Unmarshal(res.Value, &feature); err != nil {
		return nil, 0, errors.Wrapf(err, "invalid document of feature %d", id)
	}

	return &feature, res.Cas, nil
}

// CurrentVersion implements transactions.RecordStore.
func (c *Collection) CurrentVersion(ctx context.Context, id transactions.RecordID) (transactions.Version, error) {
	feature, _, err := c.getFeature(ctx, id)
	if err != nil {
		return 0, err
	}

	return feature.Version, nil
}

// Update implements transactions.RecordStore. A write racing with another
// writer is reported as a record conflict.
func (c *Collection) Update(ctx context.Context, id transactions.RecordID, record transactions.Record) (transactions.Version, error) {
	feature, cas, err := c.getFeature(ctx, id)
	if err != nil {
		return 0, err
	}

	merged := transactions.Record{Geom: feature.Geom, Fields: feature.Fields}.Merge(record)
	value, err := json.Marshal(jsonFeature{
		Version: feature.Version + 1,
		Geom:    merged.Geom,
		Fields:  merged.Fields,
	})
	if err != nil {
		return 0, errors.Wrap(transactions.ErrRecordInvalid, err.Error())
	}

	if _, err := c.blkReplace(ctx, c.featureKey(id), value, cas); err != nil {
		return 0, c.mutationError(id, err)
	}

	return feature.Version + 1, nil
}

// Delete implements transactions.RecordStore.
func (c *Collection) Delete(ctx context.Context, id transactions.RecordID) error {
	if err := c.blkDelete(ctx, c.featureKey(id), 0); err != nil {
		return c.mutationError(id, err)
	}

	return nil
}

func (c *Collection) mutationError(id transactions.RecordID, err error) error {
	switch {
	case errors.Is(err, gocbcore.ErrDocumentNotFound):
		return errors.Wrapf(transactions.ErrRecordNotFound, "feature %d", id)
	case errors.Is(err, gocbcore.ErrCasMismatch):
		return errors.Wrapf(transactions.ErrRecordConflict, "feature %d was modified concurrently", id)
	case errors.Is(err, gocbcore.ErrValueTooLarge):
		return errors.Wrapf(transactions.ErrRecordInvalid, "feature %d is too large", id)
	}

	c.logger.Warn("feature mutation failed",
		zap.String("collection", c.id),
		zap.Int64("fid", int64(id)),
		zap.Error(err))

	return err
}

// Feature returns a single feature of a collection.
func (s *Store) Feature(ctx context.Context, collectionID string, id transactions.RecordID) (featurestore.Feature, error) {
	c := s.Collection(collectionID)
	_, versioned, err := c.Versioning(ctx)
	if err != nil {
		return featurestore.Feature{}, err
	}

	doc, _, err := c.getFeature(ctx, id)
	if err != nil {
		return featurestore.Feature{}, err
	}

	return doc.feature(id, versioned), nil
}

// Features returns every feature of a collection ordered by id. Ids are
// probed up to the current value of the sequence counter.
func (s *Store) Features(ctx context.Context, collectionID string) ([]featurestore.Feature, error) {
	c := s.Collection(collectionID)
	_, versioned, err := c.Versioning(ctx)
	if err != nil {
		return nil, err
	}

	last, err := c.blkIncrement(ctx, c.seqKey(), 0)
	if err != nil {
		return nil, err
	}

	features := make([]featurestore.Feature, 0, last)
	for id := transactions.RecordID(1); id <= transactions.RecordID(last); id++ {
		doc, _, err := c.getFeature(ctx, id)
		if errors.Is(err, transactions.ErrRecordNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		features = append(features, doc.feature(id, versioned))
	}

	return features, nil
}

func (f *jsonFeature) feature(id transactions.RecordID, versioned bool) featurestore.Feature {
	feature := featurestore.Feature{
		ID:     id,
		Geom:   f.Geom,
		Fields: f.Fields,
	}
	if versioned {
		version := f.Version
		feature.Version = &version
	}
	if feature.Fields == nil {
		feature.Fields = map[string]interface{}{}
	}

	return feature
}
