package chunkstore

import (
	"context"
	"encoding/json"
	"path/filepath"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	dslvl "github.com/ipfs/go-ds-leveldb"

	"github.com/babylonpiles/storaged/core/model"
)

// MetadataStore persists object records in an embedded leveldb store.
// One record per object name holds the full ordered chunk list, so a
// single Put is the atomic commit point for object visibility.
type MetadataStore struct {
	objects *dslvl.Datastore
}

func NewMetadataStore(dsPath string) (*MetadataStore, error) {
	store, err := dslvl.NewDatastore(filepath.Join(dsPath, "objects"), nil)
	if err != nil {
		return nil, err
	}

	return &MetadataStore{
		objects: store,
	}, nil
}

func (m *MetadataStore) Get(ctx context.Context, name string) (*model.ObjectMetadata, error) {
	b, err := m.objects.Get(ctx, ds.NewKey(name))
	if err != nil {
		if err == ds.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var object model.ObjectMetadata
	err = json.Unmarshal(b, &object)
	if err != nil {
		return nil, err
	}

	return &object, nil
}

func (m *MetadataStore) Has(ctx context.Context, name string) (bool, error) {
	return m.objects.Has(ctx, ds.NewKey(name))
}

func (m *MetadataStore) Put(ctx context.Context, object model.ObjectMetadata) error {
	b, err := json.Marshal(object)
	if err != nil {
		return err
	}

	if err := m.objects.Put(ctx, ds.NewKey(object.Name), b); err != nil {
		return err
	}

	return m.objects.Sync(ctx, ds.NewKey(object.Name))
}

func (m *MetadataStore) Delete(ctx context.Context, name string) error {
	return m.objects.Delete(ctx, ds.NewKey(name))
}

func (m *MetadataStore) All(ctx context.Context) ([]*model.ObjectMetadata, error) {
	objects := make([]*model.ObjectMetadata, 0)

	res, err := m.objects.Query(ctx, dsq.Query{})
	if err != nil {
		return objects, err
	}
	defer res.Close()

	for {
		r, hasNext := res.NextSync()
		if !hasNext {
			break
		}
		if r.Error != nil {
			return objects, r.Error
		}

		var object model.ObjectMetadata
		err = json.Unmarshal(r.Value, &object)
		if err != nil {
			return objects, err
		}
		objects = append(objects, &object)
	}

	return objects, nil
}

func (m *MetadataStore) Close() error {
	return m.objects.Close()
}
