// Package testutil provides in-memory fakes for emailguard's external
// dependencies: mutex-guarded maps implementing the real interfaces
// directly, rather than a generated mocking framework.
package testutil

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/oonrumail/emailguard/model"
)

// FakeResolver is an in-memory DNS TXT resolver for tests.
type FakeResolver struct {
	mu  sync.RWMutex
	txt map[string][]string
	err error
}

// NewFakeResolver creates an empty FakeResolver.
func NewFakeResolver() *FakeResolver {
	return &FakeResolver{txt: make(map[string][]string)}
}

// SetTXT registers the TXT records name should resolve to.
func (f *FakeResolver) SetTXT(name string, records ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txt[name] = records
}

// SetError makes every subsequent lookup fail with err.
func (f *FakeResolver) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// LookupTXT implements dkim.Resolver/arc.Resolver/dmarc.Resolver/spf.Resolver.
func (f *FakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.txt[name], nil
}

// ErrNotFound mirrors repository.ErrNotFound without importing the
// pgxpool-backed package into test code.
var ErrNotFound = errors.New("record not found")

// FakeCatalog is an in-memory Catalog for tests.
type FakeCatalog struct {
	mu      sync.RWMutex
	records map[string]*model.AuditRecord
}

// NewFakeCatalog creates an empty FakeCatalog.
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{records: make(map[string]*model.AuditRecord)}
}

func (c *FakeCatalog) Store(_ context.Context, rec *model.AuditRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *rec
	c.records[rec.ID] = &cp
	return nil
}

func (c *FakeCatalog) Get(_ context.Context, id string) (*model.AuditRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rec, ok := c.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (c *FakeCatalog) Delete(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.records, id)
	return nil
}

func (c *FakeCatalog) List(_ context.Context, filter model.ListFilter) ([]*model.AuditRecord, int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var matched []*model.AuditRecord
	for _, rec := range c.records {
		if filter.Domain != "" && rec.FromDomain != filter.Domain {
			continue
		}
		if filter.Search != "" &&
			!strings.Contains(rec.SubjectPreview, filter.Search) &&
			!strings.Contains(rec.FromDomain, filter.Search) &&
			!strings.Contains(rec.ID, filter.Search) &&
			!strings.Contains(rec.HashSHA256, filter.Search) {
			continue
		}
		if filter.HashPrefix != "" && !strings.HasPrefix(rec.HashSHA256, filter.HashPrefix) {
			continue
		}
		if filter.From != nil && rec.StoredAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && rec.StoredAt.After(*filter.To) {
			continue
		}
		cp := *rec
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		if filter.Descending {
			return matched[i].StoredAt.After(matched[j].StoredAt)
		}
		return matched[i].StoredAt.Before(matched[j].StoredAt)
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = model.DefaultLimit
	}
	offset := filter.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

// FakeObjectStore is an in-memory ObjectStore for tests.
type FakeObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewFakeObjectStore creates an empty FakeObjectStore.
func NewFakeObjectStore() *FakeObjectStore {
	return &FakeObjectStore{objects: make(map[string][]byte)}
}

// ErrObjectNotFound mirrors objectstore.ErrNotFound.
var ErrObjectNotFound = errors.New("object not found")

func (o *FakeObjectStore) Put(_ context.Context, key string, data []byte, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	o.objects[key] = cp
	return nil
}

func (o *FakeObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (o *FakeObjectStore) Delete(_ context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}
