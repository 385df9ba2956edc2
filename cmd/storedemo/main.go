// Command storedemo exercises a StorageEngine end to end: create a
// database and table, insert a few rows, look one up, scan the table, and
// delete a row, logging each step.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/relstore/storagecore/internal/config"
	"github.com/relstore/storagecore/internal/schema"
	"github.com/relstore/storagecore/internal/storage"
	"github.com/relstore/storagecore/internal/storelog"
	"github.com/relstore/storagecore/internal/types"
	"github.com/shopspring/decimal"
)

func decimalOf(mantissa int64, exponent int32) decimal.Decimal {
	return decimal.New(mantissa, exponent)
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (overrides -base-dir/-pool-size)")
	baseDir := flag.String("base-dir", "storedemo-data", "directory holding table files")
	poolSize := flag.Int("pool-size", 64, "buffer pool size, in pages")
	flag.Parse()

	opts := storage.Options{BaseDir: *baseDir, PoolSizeInPages: *poolSize}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		opts = storage.Options{BaseDir: loaded.BaseDir, PoolSizeInPages: loaded.PoolSizeInPages}
	}

	log := storelog.New("storedemo")
	if err := run(opts, log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(opts storage.Options, log *storelog.Logger) error {
	engine, err := storage.Open(opts, log)
	if err != nil {
		return fmt.Errorf("open storage engine: %w", err)
	}
	defer engine.DisposeAsync()

	dbID, err := engine.CreateDatabase("demo")
	if errors.Is(err, storage.ErrDatabaseAlreadyExists) {
		dbID, err = engine.DatabaseID("demo")
	}
	if err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	table := &schema.Table{
		Name: "widgets",
		Columns: []schema.Column{
			{Name: "id", Kind: types.KindInt},
			{Name: "name", Kind: types.KindVarchar, MaxLen: 64},
			{Name: "price", Kind: types.KindDecimal},
			{Name: "external_ref", Kind: types.KindUUID},
		},
		PrimaryKey: []int{0},
	}
	if err := engine.CreateTable(dbID, table.Name, table); err != nil && !errors.Is(err, storage.ErrTableAlreadyExists) {
		return fmt.Errorf("create table: %w", err)
	}

	rows := []types.Record{
		{types.NewInt(1), types.NewVarchar("sprocket"), types.NewDecimal(decimalOf(199, -2)), types.NewUUID(uuid.New())},
		{types.NewInt(2), types.NewVarchar("widget"), types.NewDecimal(decimalOf(499, -2)), types.NewUUID(uuid.New())},
		{types.NewInt(3), types.NewVarchar("gizmo"), types.NewDecimal(decimalOf(1099, -2)), types.NewUUID(uuid.New())},
	}
	for _, rec := range rows {
		if err := engine.Insert(dbID, table.Name, rec); err != nil {
			log.Warnf("insert %v: %v", rec, err)
		}
	}

	found, err := engine.Search(dbID, table.Name, types.Key{types.NewInt(2)})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	log.Infof("search id=2 -> %v", found)

	cursor, err := engine.Scan(dbID, table.Name)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	for {
		rec, ok, err := cursor.Next()
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if !ok {
			break
		}
		log.Infof("row %v", rec)
	}

	if err := engine.Delete(dbID, table.Name, types.Key{types.NewInt(1)}); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	log.Infof("deleted id=1")
	return nil
}
