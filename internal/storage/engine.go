// Package storage bootstraps the system catalog and exposes the public
// table CRUD surface over the pager package's buffer pool and B+Tree.
package storage

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/relstore/storagecore/internal/fsx"
	"github.com/relstore/storagecore/internal/schema"
	"github.com/relstore/storagecore/internal/storage/pager"
	"github.com/relstore/storagecore/internal/storelog"
	"github.com/relstore/storagecore/internal/types"
)

// Options configures a StorageEngine. Mirrors pager.BufferPoolManagerOptions
// plus the on-disk root directory; loadable from YAML via internal/config.
type Options struct {
	BaseDir         string
	PoolSizeInPages int
}

// tableHandle tracks a table's open BTree plus the root page index last
// written to sys_tables, so a root-growing split can be persisted for the
// next time the engine is opened.
type tableHandle struct {
	tableID    int32
	databaseID int32
	table      *schema.Table
	tree       *pager.BTree

	mu             sync.Mutex
	knownRootIndex int32
}

type tableKey struct {
	databaseID int32
	name       string
}

// StorageEngine bootstraps and holds a BufferPoolManager plus the three
// built-in catalog tables (sys_databases, sys_tables, sys_columns), a
// table-id allocator, and striped per-name locks guaranteeing at-most-once
// table creation under concurrency.
type StorageEngine struct {
	bpm   *pager.BufferPoolManager
	locks stripedLocks
	log   *storelog.Logger

	sysDatabases *pager.BTree
	sysTables    *pager.BTree
	sysColumns   *pager.BTree

	nextDatabaseID int32
	nextTableID    int32

	// catalogMu serializes all mutation of the three catalog trees. The
	// striped locks only serialize creations for the same name; creations
	// for distinct names still share sys_tables/sys_columns.
	catalogMu sync.Mutex

	mu      sync.RWMutex
	tables  map[tableKey]*tableHandle
	dbNames map[string]int32
}

// Open bootstraps a StorageEngine rooted at opts.BaseDir, creating the
// catalog tables on first use or attaching to them if they already exist.
func Open(opts Options, log *storelog.Logger) (*StorageEngine, error) {
	if log == nil {
		log = storelog.Nop()
	}
	dm, err := pager.NewDiskManager(opts.BaseDir, fsx.OS{}, log)
	if err != nil {
		return nil, err
	}
	bpm, err := pager.NewBufferPoolManager(dm, pager.BufferPoolManagerOptions{PoolSizeInPages: opts.PoolSizeInPages}, log)
	if err != nil {
		return nil, err
	}

	eng := &StorageEngine{
		bpm:     bpm,
		log:     log,
		tables:  make(map[tableKey]*tableHandle),
		dbNames: make(map[string]int32),
	}

	eng.sysDatabases, err = eng.bootstrapTable(dm, sysDatabasesTableID, sysDatabasesSchema())
	if err != nil {
		return nil, fmt.Errorf("storage: bootstrap sys_databases: %w", err)
	}
	eng.sysTables, err = eng.bootstrapTable(dm, sysTablesTableID, sysTablesSchema())
	if err != nil {
		return nil, fmt.Errorf("storage: bootstrap sys_tables: %w", err)
	}
	eng.sysColumns, err = eng.bootstrapTable(dm, sysColumnsTableID, sysColumnsSchema())
	if err != nil {
		return nil, fmt.Errorf("storage: bootstrap sys_columns: %w", err)
	}

	if err := eng.loadCatalogState(); err != nil {
		return nil, fmt.Errorf("storage: load catalog state: %w", err)
	}
	return eng, nil
}

// bootstrapTable opens one of the three fixed catalog tables. Their own
// root page is assumed to stay at page 0 for the lifetime of a database:
// sys_databases/sys_tables/sys_columns hold a handful of small rows each
// and are not expected to outgrow a single root page in this engine's
// scope (see DESIGN.md's open-questions note on catalog root tracking).
func (e *StorageEngine) bootstrapTable(dm *pager.DiskManager, tableID int32, table *schema.Table) (*pager.BTree, error) {
	if dm.TableExists(tableID) {
		e.log.Infof("attaching to existing catalog table %q (table_id=%d)", table.Name, tableID)
		return pager.Open(e.bpm, tableID, 0, table, e.log), nil
	}
	e.log.Infof("creating catalog table %q (table_id=%d)", table.Name, tableID)
	tree, err := pager.Create(e.bpm, tableID, table, e.log)
	if err != nil {
		e.log.Errorf("bootstrap catalog table %q: %v", table.Name, err)
		return nil, err
	}
	return tree, nil
}

// loadCatalogState scans sys_databases/sys_tables to seed the id
// allocators and in-memory table registry from whatever is already on disk.
func (e *StorageEngine) loadCatalogState() error {
	dbCursor, err := e.sysDatabases.NewCursor()
	if err != nil {
		return err
	}
	for {
		rec, ok, err := dbCursor.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		id := rec[0].Int
		name := rec[1].Text
		e.dbNames[name] = id
		if id >= e.nextDatabaseID {
			e.nextDatabaseID = id + 1
		}
	}

	tblCursor, err := e.sysTables.NewCursor()
	if err != nil {
		return err
	}
	for {
		rec, ok, err := tblCursor.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		tableID := rec[0].Int
		dbID := rec[1].Int
		name := rec[2].Text
		rootIndex := rec[4].Int
		if tableID >= e.nextTableID {
			e.nextTableID = tableID + 1
		}
		table, err := e.loadColumns(tableID, name)
		if err != nil {
			return err
		}
		tree := pager.Open(e.bpm, tableID, rootIndex, table, e.log)
		e.tables[tableKey{databaseID: dbID, name: name}] = &tableHandle{
			tableID:        tableID,
			databaseID:     dbID,
			table:          table,
			tree:           tree,
			knownRootIndex: rootIndex,
		}
	}
	if e.nextDatabaseID == 0 {
		e.nextDatabaseID = 1
	}
	if e.nextTableID == 0 {
		e.nextTableID = firstUserTableID
	}
	return nil
}

func (e *StorageEngine) loadColumns(tableID int32, tableName string) (*schema.Table, error) {
	cursor, err := e.sysColumns.NewCursor()
	if err != nil {
		return nil, err
	}
	type col struct {
		idx       int32
		pkOrdinal int32
		c         schema.Column
	}
	var cols []col
	for {
		rec, ok, err := cursor.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if rec[0].Int != tableID {
			continue
		}
		cols = append(cols, col{
			idx:       rec[1].Int,
			pkOrdinal: rec[6].Int,
			c: schema.Column{
				Name:     rec[2].Text,
				Kind:     types.Kind(rec[3].Int),
				Nullable: rec[4].Bool,
				MaxLen:   int(rec[5].Int),
			},
		})
	}
	columns := make([]schema.Column, len(cols))
	pk := make(map[int32]int, len(cols))
	for _, c := range cols {
		columns[c.idx] = c.c
		if c.pkOrdinal >= 0 {
			pk[c.pkOrdinal] = int(c.idx)
		}
	}
	primaryKey := make([]int, len(pk))
	for ordinal, colIdx := range pk {
		primaryKey[ordinal] = colIdx
	}
	return &schema.Table{Name: tableName, Columns: columns, PrimaryKey: primaryKey}, nil
}

// CreateDatabase allocates a new database id and records it in
// sys_databases. Concurrent calls for the same name race on a striped
// lock; the loser observes ErrDatabaseAlreadyExists.
func (e *StorageEngine) CreateDatabase(name string) (int32, error) {
	var id int32
	err := e.locks.withLock("db:"+name, func() error {
		e.mu.RLock()
		_, exists := e.dbNames[name]
		e.mu.RUnlock()
		if exists {
			return ErrDatabaseAlreadyExists
		}

		newID := atomic.AddInt32(&e.nextDatabaseID, 1) - 1
		rec := types.Record{types.NewInt(newID), types.NewVarchar(name)}
		e.catalogMu.Lock()
		err := e.sysDatabases.Insert(rec)
		e.catalogMu.Unlock()
		if err != nil {
			return err
		}

		e.mu.Lock()
		e.dbNames[name] = newID
		e.mu.Unlock()
		id = newID
		return nil
	})
	return id, err
}

// CreateTable allocates storage for a new table and records it in
// sys_tables/sys_columns. Concurrent create_table calls for the same
// (databaseID, name) allocate disk space and catalog rows exactly once;
// losing callers observe ErrTableAlreadyExists.
func (e *StorageEngine) CreateTable(databaseID int32, name string, table *schema.Table) error {
	key := fmt.Sprintf("%d/%s", databaseID, name)
	return e.locks.withLock(key, func() error {
		tk := tableKey{databaseID: databaseID, name: name}
		e.mu.RLock()
		_, exists := e.tables[tk]
		e.mu.RUnlock()
		if exists {
			e.log.Warnf("create table %q in database %d: already exists", name, databaseID)
			return ErrTableAlreadyExists
		}

		tableID := atomic.AddInt32(&e.nextTableID, 1) - 1
		tree, err := pager.Create(e.bpm, tableID, table, e.log)
		if err != nil {
			e.log.Errorf("create table %q in database %d: allocate storage: %v", name, databaseID, err)
			return err
		}

		pkOrdinals := make(map[int]int32, len(table.PrimaryKey))
		for ordinal, colIdx := range table.PrimaryKey {
			pkOrdinals[colIdx] = int32(ordinal)
		}

		tableRow := types.Record{
			types.NewInt(tableID),
			types.NewInt(databaseID),
			types.NewVarchar(name),
			types.NewInt(1),
			types.NewInt(tree.RootPageID().PageIndex),
		}
		e.catalogMu.Lock()
		defer e.catalogMu.Unlock()
		if err := e.sysTables.Insert(tableRow); err != nil {
			e.log.Errorf("create table %q in database %d: write sys_tables row: %v", name, databaseID, err)
			return err
		}
		for i, c := range table.Columns {
			ordinal, isPK := pkOrdinals[i]
			if !isPK {
				ordinal = -1
			}
			colRow := types.Record{
				types.NewInt(tableID),
				types.NewInt(int32(i)),
				types.NewVarchar(c.Name),
				types.NewInt(int32(c.Kind)),
				types.NewBool(c.Nullable),
				types.NewInt(int32(c.MaxLen)),
				types.NewInt(ordinal),
			}
			if err := e.sysColumns.Insert(colRow); err != nil {
				e.log.Errorf("create table %q in database %d: write sys_columns row %d: %v", name, databaseID, i, err)
				return err
			}
		}
		e.log.Infof("created table %q in database %d (table_id=%d)", name, databaseID, tableID)

		e.mu.Lock()
		e.tables[tk] = &tableHandle{
			tableID:        tableID,
			databaseID:     databaseID,
			table:          table,
			tree:           tree,
			knownRootIndex: tree.RootPageID().PageIndex,
		}
		e.mu.Unlock()
		return nil
	})
}

// DatabaseID returns the id of an existing database by name.
func (e *StorageEngine) DatabaseID(name string) (int32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.dbNames[name]
	if !ok {
		return 0, ErrDatabaseNotFound
	}
	return id, nil
}

func (e *StorageEngine) handle(databaseID int32, name string) (*tableHandle, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.tables[tableKey{databaseID: databaseID, name: name}]
	if !ok {
		return nil, ErrTableNotFound
	}
	return h, nil
}

// syncTableRoot persists h's tree's current root page index into sys_tables
// if it has changed since the last time this handle wrote it (i.e. the
// tree grew or shrank by a level). Because the B+Tree has no in-place
// update, this is a delete-then-reinsert against sys_tables rather than a
// field write.
func (e *StorageEngine) syncTableRoot(h *tableHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := h.tree.RootPageID().PageIndex
	if current == h.knownRootIndex {
		return nil
	}
	row := types.Record{
		types.NewInt(h.tableID),
		types.NewInt(h.databaseID),
		types.NewVarchar(h.table.Name),
		types.NewInt(1),
		types.NewInt(current),
	}
	e.catalogMu.Lock()
	defer e.catalogMu.Unlock()
	if err := e.sysTables.Delete(types.Key{types.NewInt(h.tableID)}); err != nil {
		return err
	}
	if err := e.sysTables.Insert(row); err != nil {
		return err
	}
	h.knownRootIndex = current
	return nil
}

// Insert adds rec to the named table.
func (e *StorageEngine) Insert(databaseID int32, name string, rec types.Record) error {
	h, err := e.handle(databaseID, name)
	if err != nil {
		return err
	}
	if err := h.tree.Insert(rec); err != nil {
		return err
	}
	return e.syncTableRoot(h)
}

// Search returns the record for key in the named table, or nil if absent.
func (e *StorageEngine) Search(databaseID int32, name string, key types.Key) (types.Record, error) {
	h, err := e.handle(databaseID, name)
	if err != nil {
		return nil, err
	}
	return h.tree.Search(key)
}

// Delete removes key from the named table.
func (e *StorageEngine) Delete(databaseID int32, name string, key types.Key) error {
	h, err := e.handle(databaseID, name)
	if err != nil {
		return err
	}
	if err := h.tree.Delete(key); err != nil {
		return err
	}
	return e.syncTableRoot(h)
}

// Scan returns a cursor over every live record in the named table, in
// ascending primary-key order.
func (e *StorageEngine) Scan(databaseID int32, name string) (*pager.Cursor, error) {
	h, err := e.handle(databaseID, name)
	if err != nil {
		return nil, err
	}
	return h.tree.NewCursor()
}

// DropTable removes a table's catalog rows and deletes its on-disk file.
// Not named by the original public API but a natural extension of system
// catalog lifecycle management.
func (e *StorageEngine) DropTable(databaseID int32, name string) error {
	key := fmt.Sprintf("%d/%s", databaseID, name)
	return e.locks.withLock(key, func() error {
		tk := tableKey{databaseID: databaseID, name: name}
		e.mu.RLock()
		h, ok := e.tables[tk]
		e.mu.RUnlock()
		if !ok {
			return ErrTableNotFound
		}

		e.catalogMu.Lock()
		if err := e.sysTables.Delete(types.Key{types.NewInt(h.tableID)}); err != nil {
			e.catalogMu.Unlock()
			return err
		}
		for i := range h.table.Columns {
			_ = e.sysColumns.Delete(types.Key{types.NewInt(h.tableID), types.NewInt(int32(i))})
		}
		e.catalogMu.Unlock()
		if err := e.bpm.DisposeTableFile(h.tableID); err != nil {
			return err
		}

		e.mu.Lock()
		delete(e.tables, tk)
		e.mu.Unlock()
		return nil
	})
}

// DisposeAsync flushes every dirty page and releases underlying resources.
func (e *StorageEngine) DisposeAsync() error {
	return e.bpm.DisposeAsync()
}
