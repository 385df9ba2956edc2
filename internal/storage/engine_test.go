package storage

import (
	"errors"
	"sync"
	"testing"

	"github.com/relstore/storagecore/internal/schema"
	"github.com/relstore/storagecore/internal/types"
)

func newTestEngine(t *testing.T) *StorageEngine {
	t.Helper()
	eng, err := Open(Options{BaseDir: t.TempDir(), PoolSizeInPages: 64}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.DisposeAsync() })
	return eng
}

func widgetsSchema() *schema.Table {
	return &schema.Table{
		Name: "widgets",
		Columns: []schema.Column{
			{Name: "id", Kind: types.KindInt},
			{Name: "name", Kind: types.KindVarchar, MaxLen: 64},
		},
		PrimaryKey: []int{0},
	}
}

func TestCreateDatabaseThenCreateTableInsertSearchScanDelete(t *testing.T) {
	eng := newTestEngine(t)

	dbID, err := eng.CreateDatabase("shop")
	if err != nil {
		t.Fatal(err)
	}
	table := widgetsSchema()
	if err := eng.CreateTable(dbID, table.Name, table); err != nil {
		t.Fatal(err)
	}

	rows := []types.Record{
		{types.NewInt(1), types.NewVarchar("sprocket")},
		{types.NewInt(2), types.NewVarchar("widget")},
	}
	for _, r := range rows {
		if err := eng.Insert(dbID, table.Name, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := eng.Search(dbID, table.Name, types.Key{types.NewInt(1)})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(rows[0]) {
		t.Errorf("search = %+v, want %+v", got, rows[0])
	}

	cursor, err := eng.Scan(dbID, table.Name)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	for {
		_, ok, err := cursor.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		count++
	}
	if count != len(rows) {
		t.Errorf("scanned %d rows, want %d", count, len(rows))
	}

	if err := eng.Delete(dbID, table.Name, types.Key{types.NewInt(1)}); err != nil {
		t.Fatal(err)
	}
	if got, err := eng.Search(dbID, table.Name, types.Key{types.NewInt(1)}); err != nil || got != nil {
		t.Errorf("search after delete = %+v, err=%v, want nil", got, err)
	}
}

func TestCreateDatabaseRejectsDuplicateName(t *testing.T) {
	eng := newTestEngine(t)
	if _, err := eng.CreateDatabase("shop"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CreateDatabase("shop"); !errors.Is(err, ErrDatabaseAlreadyExists) {
		t.Errorf("got %v, want ErrDatabaseAlreadyExists", err)
	}
}

func TestSearchUnknownTableReturnsErrTableNotFound(t *testing.T) {
	eng := newTestEngine(t)
	dbID, err := eng.CreateDatabase("shop")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Search(dbID, "missing", types.Key{types.NewInt(1)}); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("got %v, want ErrTableNotFound", err)
	}
}

// Concurrent CreateTable calls for the same (database, name) must allocate
// disk space and catalog rows exactly once.
func TestCreateTableIsAtMostOnceUnderConcurrency(t *testing.T) {
	eng := newTestEngine(t)
	dbID, err := eng.CreateDatabase("shop")
	if err != nil {
		t.Fatal(err)
	}
	table := widgetsSchema()

	const workers = 16
	var wg sync.WaitGroup
	results := make([]error, workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = eng.CreateTable(dbID, table.Name, table)
		}(i)
	}
	wg.Wait()

	successes, conflicts := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTableAlreadyExists):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("successes = %d, want 1", successes)
	}
	if conflicts != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflicts, workers-1)
	}
}

// Concurrent CreateTable calls for distinct names proceed independently,
// and every one of them must land in the catalog.
func TestCreateTableDistinctNamesProceedConcurrently(t *testing.T) {
	eng := newTestEngine(t)
	dbID, err := eng.CreateDatabase("shop")
	if err != nil {
		t.Fatal(err)
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			table := widgetsSchema()
			table.Name = "widgets_" + string(rune('a'+i))
			results[i] = eng.CreateTable(dbID, table.Name, table)
		}(i)
	}
	wg.Wait()

	for i, err := range results {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	for i := 0; i < workers; i++ {
		name := "widgets_" + string(rune('a'+i))
		if _, err := eng.Search(dbID, name, types.Key{types.NewInt(0)}); err != nil {
			t.Errorf("table %q not usable after concurrent creation: %v", name, err)
		}
	}
}

func TestDropTableRemovesTableAndAllowsRecreation(t *testing.T) {
	eng := newTestEngine(t)
	dbID, err := eng.CreateDatabase("shop")
	if err != nil {
		t.Fatal(err)
	}
	table := widgetsSchema()
	if err := eng.CreateTable(dbID, table.Name, table); err != nil {
		t.Fatal(err)
	}
	if err := eng.Insert(dbID, table.Name, types.Record{types.NewInt(1), types.NewVarchar("x")}); err != nil {
		t.Fatal(err)
	}
	if err := eng.DropTable(dbID, table.Name); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Search(dbID, table.Name, types.Key{types.NewInt(1)}); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("got %v, want ErrTableNotFound after drop", err)
	}
	if err := eng.CreateTable(dbID, table.Name, table); err != nil {
		t.Errorf("expected recreation after drop to succeed, got %v", err)
	}
}

func TestReopenEngineLoadsCatalogState(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Options{BaseDir: dir, PoolSizeInPages: 32}, nil)
	if err != nil {
		t.Fatal(err)
	}
	dbID, err := eng.CreateDatabase("shop")
	if err != nil {
		t.Fatal(err)
	}
	table := widgetsSchema()
	if err := eng.CreateTable(dbID, table.Name, table); err != nil {
		t.Fatal(err)
	}
	if err := eng.Insert(dbID, table.Name, types.Record{types.NewInt(1), types.NewVarchar("x")}); err != nil {
		t.Fatal(err)
	}
	if err := eng.DisposeAsync(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(Options{BaseDir: dir, PoolSizeInPages: 32}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = reopened.DisposeAsync() })

	got, err := reopened.Search(dbID, table.Name, types.Key{types.NewInt(1)})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected reopened engine to find the previously inserted row")
	}

	if _, err := reopened.CreateDatabase("shop"); !errors.Is(err, ErrDatabaseAlreadyExists) {
		t.Errorf("got %v, want ErrDatabaseAlreadyExists for a database created before reopen", err)
	}
}

// A composite primary key must survive an engine restart: sys_columns
// records each column's position within the key, and reopen rebuilds the
// key declaration from those rows.
func TestReopenPreservesCompositePrimaryKey(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Options{BaseDir: dir, PoolSizeInPages: 32}, nil)
	if err != nil {
		t.Fatal(err)
	}
	dbID, err := eng.CreateDatabase("shop")
	if err != nil {
		t.Fatal(err)
	}
	table := &schema.Table{
		Name: "order_lines",
		Columns: []schema.Column{
			{Name: "note", Kind: types.KindVarchar, MaxLen: 32, Nullable: true},
			{Name: "order_id", Kind: types.KindInt},
			{Name: "line_no", Kind: types.KindInt},
		},
		PrimaryKey: []int{1, 2},
	}
	if err := eng.CreateTable(dbID, table.Name, table); err != nil {
		t.Fatal(err)
	}
	rec := types.Record{types.NewVarchar("rush"), types.NewInt(7), types.NewInt(2)}
	if err := eng.Insert(dbID, table.Name, rec); err != nil {
		t.Fatal(err)
	}
	if err := eng.DisposeAsync(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(Options{BaseDir: dir, PoolSizeInPages: 32}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = reopened.DisposeAsync() })

	got, err := reopened.Search(dbID, table.Name, types.Key{types.NewInt(7), types.NewInt(2)})
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(rec) {
		t.Errorf("search by composite key after reopen = %+v, want %+v", got, rec)
	}
}

// TestReopenAfterRootGrowthFindsEveryRow inserts enough rows to force the
// table's B+Tree root to split at least once, then reopens the engine and
// checks every row is still reachable. This exercises sys_tables'
// root_page_index bookkeeping: without it, reopen would reattach at the
// table's original (now stale) root page and most rows would appear lost.
func TestReopenAfterRootGrowthFindsEveryRow(t *testing.T) {
	dir := t.TempDir()
	eng, err := Open(Options{BaseDir: dir, PoolSizeInPages: 64}, nil)
	if err != nil {
		t.Fatal(err)
	}
	dbID, err := eng.CreateDatabase("shop")
	if err != nil {
		t.Fatal(err)
	}
	table := widgetsSchema()
	if err := eng.CreateTable(dbID, table.Name, table); err != nil {
		t.Fatal(err)
	}

	const n = 300
	for i := int32(0); i < n; i++ {
		rec := types.Record{types.NewInt(i), types.NewVarchar("widget-name-padded-out")}
		if err := eng.Insert(dbID, table.Name, rec); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if err := eng.DisposeAsync(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(Options{BaseDir: dir, PoolSizeInPages: 64}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = reopened.DisposeAsync() })

	for i := int32(0); i < n; i++ {
		got, err := reopened.Search(dbID, table.Name, types.Key{types.NewInt(i)})
		if err != nil {
			t.Fatalf("search(%d): %v", i, err)
		}
		if got == nil {
			t.Fatalf("search(%d) = nil after reopen, want a record", i)
		}
	}
}
