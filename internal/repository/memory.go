package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"anoncart/internal/model"
	"anoncart/pkg/utils"
)

// MemoryDB in-process implementation of the four identity stores. Transactions
// are serialized and roll back by restoring a snapshot.
type MemoryDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	anonCarts *memCartTable[string]
	userCarts *memCartTable[uint64]
	anonPrefs *memPrefTable[string]
	userPrefs *memPrefTable[uint64]
}

type memCartTable[ID model.OwnerID] struct {
	nextID uint64
	rows   map[uint64]model.CartItem[ID]
}

type memPrefTable[ID model.OwnerID] struct {
	nextID uint64
	rows   map[ID]model.Preference[ID]
}

// NewMemoryDB creates an empty in-memory database
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		anonCarts: &memCartTable[string]{rows: make(map[uint64]model.CartItem[string])},
		userCarts: &memCartTable[uint64]{rows: make(map[uint64]model.CartItem[uint64])},
		anonPrefs: &memPrefTable[string]{rows: make(map[string]model.Preference[string])},
		userPrefs: &memPrefTable[uint64]{rows: make(map[uint64]model.Preference[uint64])},
	}
}

// Stores returns the stores backed by this database
func (db *MemoryDB) Stores() *Stores {
	return &Stores{
		AnonCarts:       &memoryCartRepository[string]{db: db, table: db.anonCarts},
		UserCarts:       &memoryCartRepository[uint64]{db: db, table: db.userCarts},
		AnonPreferences: &memoryPreferenceRepository[string]{db: db, table: db.anonPrefs},
		UserPreferences: &memoryPreferenceRepository[uint64]{db: db, table: db.userPrefs},
	}
}

// UnitOfWork returns a unit of work over this database
func (db *MemoryDB) UnitOfWork() UnitOfWork {
	return &memoryUnitOfWork{db: db}
}

type memorySnapshot struct {
	anonCarts memCartTable[string]
	userCarts memCartTable[uint64]
	anonPrefs memPrefTable[string]
	userPrefs memPrefTable[uint64]
}

func cloneCarts[ID model.OwnerID](t *memCartTable[ID]) memCartTable[ID] {
	rows := make(map[uint64]model.CartItem[ID], len(t.rows))
	for k, v := range t.rows {
		rows[k] = v
	}
	return memCartTable[ID]{nextID: t.nextID, rows: rows}
}

func clonePrefs[ID model.OwnerID](t *memPrefTable[ID]) memPrefTable[ID] {
	rows := make(map[ID]model.Preference[ID], len(t.rows))
	for k, v := range t.rows {
		rows[k] = v
	}
	return memPrefTable[ID]{nextID: t.nextID, rows: rows}
}

func (db *MemoryDB) snapshot() memorySnapshot {
	db.mu.Lock()
	defer db.mu.Unlock()

	return memorySnapshot{
		anonCarts: cloneCarts(db.anonCarts),
		userCarts: cloneCarts(db.userCarts),
		anonPrefs: clonePrefs(db.anonPrefs),
		userPrefs: clonePrefs(db.userPrefs),
	}
}

func (db *MemoryDB) restore(s memorySnapshot) {
	db.mu.Lock()
	defer db.mu.Unlock()

	*db.anonCarts = s.anonCarts
	*db.userCarts = s.userCarts
	*db.anonPrefs = s.anonPrefs
	*db.userPrefs = s.userPrefs
}

type memoryUnitOfWork struct {
	db *MemoryDB
}

// Do runs fn with every other transaction excluded, undoing its writes on error
func (u *memoryUnitOfWork) Do(ctx context.Context, fn func(stores *Stores) error) error {
	u.db.txMu.Lock()
	defer u.db.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	before := u.db.snapshot()
	if err := fn(u.db.Stores()); err != nil {
		u.db.restore(before)
		return err
	}
	return nil
}

type memoryCartRepository[ID model.OwnerID] struct {
	db    *MemoryDB
	table *memCartTable[ID]
}

func (r *memoryCartRepository[ID]) List(ctx context.Context, ownerID ID) ([]*model.CartItem[ID], error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var items []*model.CartItem[ID]
	for _, row := range r.table.rows {
		if row.OwnerID == ownerID {
			item := row
			items = append(items, &item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].AddedAt.Before(items[j].AddedAt)
	})
	return items, nil
}

func (r *memoryCartRepository[ID]) ListForUpdate(ctx context.Context, ownerID ID) ([]*model.CartItem[ID], error) {
	return r.List(ctx, ownerID)
}

func (r *memoryCartRepository[ID]) GetByID(ctx context.Context, ownerID ID, itemID uint64) (*model.CartItem[ID], error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	row, ok := r.table.rows[itemID]
	if !ok || row.OwnerID != ownerID {
		return nil, utils.ErrCartItemNotFound
	}
	return &row, nil
}

func (r *memoryCartRepository[ID]) GetByOffering(ctx context.Context, ownerID ID, shopID, serviceID uint64) (*model.CartItem[ID], error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if row, ok := r.findLocked(ownerID, shopID, serviceID); ok {
		return &row, nil
	}
	return nil, utils.ErrCartItemNotFound
}

func (r *memoryCartRepository[ID]) findLocked(ownerID ID, shopID, serviceID uint64) (model.CartItem[ID], bool) {
	for _, row := range r.table.rows {
		if row.OwnerID == ownerID && row.SameOffering(shopID, serviceID) {
			return row, true
		}
	}
	return model.CartItem[ID]{}, false
}

func (r *memoryCartRepository[ID]) Upsert(ctx context.Context, item *model.CartItem[ID]) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if row, ok := r.findLocked(item.OwnerID, item.ShopID, item.ServiceID); ok {
		row.Quantity += item.Quantity
		row.UpdatedAt = item.UpdatedAt
		r.table.rows[row.ID] = row
		return nil
	}
	r.insertLocked(item)
	return nil
}

func (r *memoryCartRepository[ID]) Create(ctx context.Context, item *model.CartItem[ID]) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.findLocked(item.OwnerID, item.ShopID, item.ServiceID); ok {
		return utils.NewError(utils.CodeDatabaseError, "duplicate cart line")
	}
	r.insertLocked(item)
	return nil
}

func (r *memoryCartRepository[ID]) insertLocked(item *model.CartItem[ID]) {
	r.table.nextID++
	item.ID = r.table.nextID
	r.table.rows[item.ID] = *item
}

func (r *memoryCartRepository[ID]) SetQuantity(ctx context.Context, ownerID ID, itemID uint64, quantity int, at time.Time) error {
	return r.update(ownerID, itemID, func(row *model.CartItem[ID]) {
		row.Quantity = quantity
		row.UpdatedAt = at
	})
}

func (r *memoryCartRepository[ID]) AddQuantity(ctx context.Context, ownerID ID, itemID uint64, delta int, at time.Time) error {
	return r.update(ownerID, itemID, func(row *model.CartItem[ID]) {
		row.Quantity += delta
		row.UpdatedAt = at
	})
}

func (r *memoryCartRepository[ID]) update(ownerID ID, itemID uint64, fn func(row *model.CartItem[ID])) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	row, ok := r.table.rows[itemID]
	if !ok || row.OwnerID != ownerID {
		return utils.ErrCartItemNotFound
	}
	fn(&row)
	r.table.rows[itemID] = row
	return nil
}

func (r *memoryCartRepository[ID]) Delete(ctx context.Context, ownerID ID, itemID uint64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	row, ok := r.table.rows[itemID]
	if !ok || row.OwnerID != ownerID {
		return utils.ErrCartItemNotFound
	}
	delete(r.table.rows, itemID)
	return nil
}

func (r *memoryCartRepository[ID]) DeleteAll(ctx context.Context, ownerID ID) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for id, row := range r.table.rows {
		if row.OwnerID == ownerID {
			delete(r.table.rows, id)
			n++
		}
	}
	return n, nil
}

type memoryPreferenceRepository[ID model.OwnerID] struct {
	db    *MemoryDB
	table *memPrefTable[ID]
}

func (r *memoryPreferenceRepository[ID]) Get(ctx context.Context, ownerID ID) (*model.Preference[ID], error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	row, ok := r.table.rows[ownerID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (r *memoryPreferenceRepository[ID]) GetForUpdate(ctx context.Context, ownerID ID) (*model.Preference[ID], error) {
	return r.Get(ctx, ownerID)
}

func (r *memoryPreferenceRepository[ID]) SaveLocation(ctx context.Context, ownerID ID, loc model.Location, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	row, ok := r.table.rows[ownerID]
	if !ok {
		r.table.nextID++
		row = model.Preference[ID]{ID: r.table.nextID, OwnerID: ownerID, CreatedAt: at}
	}
	row.ApplyLocation(loc)
	row.UpdatedAt = at
	r.table.rows[ownerID] = row
	return nil
}

func (r *memoryPreferenceRepository[ID]) Delete(ctx context.Context, ownerID ID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.table.rows[ownerID]; !ok {
		return false, nil
	}
	delete(r.table.rows, ownerID)
	return true, nil
}
