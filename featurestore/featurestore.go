// Package featurestore implements in-memory feature collections which can
// back the transaction engine.
package featurestore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	transactions "github.com/geodata/featuretxn"
)

// ErrCollectionExists is returned when creating a collection whose id is taken.
var ErrCollectionExists = errors.New("collection already exists")

const btreeDegree = 32

// Feature is a stored record of a collection.
type Feature struct {
	ID      transactions.RecordID  `json:"id"`
	Version *transactions.Version  `json:"vid,omitempty"`
	Geom    *string                `json:"geom"`
	Fields  map[string]interface{} `json:"fields"`
}

type featureItem struct {
	id      transactions.RecordID
	version transactions.Version
	record  transactions.Record
}

var _ btree.Item = &featureItem{}

// Less orders features by id.
func (f *featureItem) Less(other btree.Item) bool {
	return f.id < other.(*featureItem).id
}

// Store holds a set of collections keyed by id.
type Store struct {
	lock        sync.RWMutex
	collections map[string]*Collection
	logger      *zap.Logger
}

// New returns an empty Store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		collections: make(map[string]*Collection),
		logger:      logger,
	}
}

// CreateCollection adds an empty collection.
func (s *Store) CreateCollection(id string, versioned bool) (*Collection, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.collections[id]; ok {
		return nil, errors.Wrapf(ErrCollectionExists, "collection %s", id)
	}

	c := &Collection{
		id:        id,
		versioned: versioned,
		tree:      btree.New(btreeDegree),
	}
	if versioned {
		c.epoch = 1
	}
	s.collections[id] = c

	s.logger.Info("collection created",
		zap.String("collection", id),
		zap.Bool("versioned", versioned))

	return c, nil
}

// Collection returns the collection with the given id.
func (s *Store) Collection(id string) (*Collection, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	c, ok := s.collections[id]
	if !ok {
		return nil, errors.Wrapf(transactions.ErrCollectionNotFound, "collection %s", id)
	}

	return c, nil
}

// Provider returns a RecordStoreProviderFn resolving collections of s.
func (s *Store) Provider() transactions.RecordStoreProviderFn {
	return func(collectionID string) (transactions.RecordStore, error) {
		return s.Collection(collectionID)
	}
}

// Feature returns a single feature of a collection.
func (s *Store) Feature(ctx context.Context, collectionID string, id transactions.RecordID) (Feature, error) {
	c, err := s.Collection(collectionID)
	if err != nil {
		return Feature{}, err
	}

	return c.Get(ctx, id)
}

// Features returns every feature of a collection ordered by id.
func (s *Store) Features(ctx context.Context, collectionID string) ([]Feature, error) {
	c, err := s.Collection(collectionID)
	if err != nil {
		return nil, err
	}

	return c.List(ctx), nil
}

// Collection is an ordered set of features. It implements
// transactions.RecordStore.
type Collection struct {
	lock      sync.RWMutex
	id        string
	versioned bool
	epoch     transactions.Epoch
	tree      *btree.BTree
	lastID    transactions.RecordID
}

var _ transactions.RecordStore = &Collection{}

// ID returns the id of the collection.
func (c *Collection) ID() string {
	return c.id
}

// Versioning implements transactions.RecordStore.
func (c *Collection) Versioning(ctx context.Context) (transactions.Epoch, bool, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.epoch, c.versioned, nil
}

// ResetEpoch starts a new versioning lineage. Transactions created under
// the previous epoch can no longer commit.
func (c *Collection) ResetEpoch() transactions.Epoch {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.versioned {
		c.epoch++
	}
	return c.epoch
}

// Create implements transactions.RecordStore.
func (c *Collection) Create(ctx context.Context, record transactions.Record) (transactions.RecordID, transactions.Version, error) {
	if err := validateRecord(record); err != nil {
		return 0, 0, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	c.lastID++
	item := &featureItem{
		id:      c.lastID,
		version: 1,
		record:  transactions.Record{}.Merge(record),
	}
	c.tree.ReplaceOrInsert(item)

	return item.id, item.version, nil
}

// CurrentVersion implements transactions.RecordStore.
func (c *Collection) CurrentVersion(ctx context.Context, id transactions.RecordID) (transactions.Version, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	item, err := c.get(id)
	if err != nil {
		return 0, err
	}

	return item.version, nil
}

// Update implements transactions.RecordStore.
func (c *Collection) Update(ctx context.Context, id transactions.RecordID, record transactions.Record) (transactions.Version, error) {
	if err := validateRecord(record); err != nil {
		return 0, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()

	item, err := c.get(id)
	if err != nil {
		return 0, err
	}

	item.record = item.record.Merge(record)
	item.version++

	return item.version, nil
}

// Delete implements transactions.RecordStore.
func (c *Collection) Delete(ctx context.Context, id transactions.RecordID) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.tree.Delete(&featureItem{id: id}) == nil {
		return errors.Wrapf(transactions.ErrRecordNotFound, "feature %d", id)
	}

	return nil
}

// Get returns a single feature.
func (c *Collection) Get(ctx context.Context, id transactions.RecordID) (Feature, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	item, err := c.get(id)
	if err != nil {
		return Feature{}, err
	}

	return c.feature(item), nil
}

// List returns every feature ordered by id.
func (c *Collection) List(ctx context.Context) []Feature {
	c.lock.RLock()
	defer c.lock.RUnlock()

	features := make([]Feature, 0, c.tree.Len())
	c.tree.Ascend(func(i btree.Item) bool {
		features = append(features, c.feature(i.(*featureItem)))
		return true
	})

	return features
}

// Len returns the number of features.
func (c *Collection) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.tree.Len()
}

func (c *Collection) get(id transactions.RecordID) (*featureItem, error) {
	i := c.tree.Get(&featureItem{id: id})
	if i == nil {
		return nil, errors.Wrapf(transactions.ErrRecordNotFound, "feature %d", id)
	}

	return i.(*featureItem), nil
}

func (c *Collection) feature(item *featureItem) Feature {
	f := Feature{
		ID:     item.id,
		Geom:   item.record.Geom,
		Fields: make(map[string]interface{}, len(item.record.Fields)),
	}
	for k, v := range item.record.Fields {
		f.Fields[k] = v
	}
	if c.versioned {
		version := item.version
		f.Version = &version
	}

	return f
}

// validateRecord accepts scalar field values only.
func validateRecord(record transactions.Record) error {
	if record.Geom != nil && *record.Geom == "" {
		return errors.Wrap(transactions.ErrRecordInvalid, "empty geometry")
	}

	for k, v := range record.Fields {
		switch v.(type) {
		case nil, string, bool, float64, int, int64, json.Number:
		default:
			return errors.Wrapf(transactions.ErrRecordInvalid, "field %s has a non-scalar value", k)
		}
	}

	return nil
}
