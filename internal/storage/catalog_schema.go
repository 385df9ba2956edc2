package storage

import "github.com/relstore/storagecore/internal/schema"
import "github.com/relstore/storagecore/internal/types"

// Fixed table ids for the three built-in catalog tables, bootstrapped at
// startup. User tables are assigned ids starting at firstUserTableID.
const (
	sysDatabasesTableID int32 = 0
	sysTablesTableID    int32 = 1
	sysColumnsTableID   int32 = 2
	firstUserTableID    int32 = 3
)

func sysDatabasesSchema() *schema.Table {
	return &schema.Table{
		Name: "sys_databases",
		Columns: []schema.Column{
			{Name: "database_id", Kind: types.KindInt},
			{Name: "name", Kind: types.KindVarchar, MaxLen: 128},
		},
		PrimaryKey: []int{0},
	}
}

func sysTablesSchema() *schema.Table {
	return &schema.Table{
		Name: "sys_tables",
		Columns: []schema.Column{
			{Name: "table_id", Kind: types.KindInt},
			{Name: "database_id", Kind: types.KindInt},
			{Name: "table_name", Kind: types.KindVarchar, MaxLen: 128},
			{Name: "next_page_index", Kind: types.KindInt},
			{Name: "root_page_index", Kind: types.KindInt},
		},
		PrimaryKey: []int{0},
	}
}

func sysColumnsSchema() *schema.Table {
	return &schema.Table{
		Name: "sys_columns",
		Columns: []schema.Column{
			{Name: "table_id", Kind: types.KindInt},
			{Name: "column_index", Kind: types.KindInt},
			{Name: "name", Kind: types.KindVarchar, MaxLen: 128},
			{Name: "type", Kind: types.KindInt},
			{Name: "is_nullable", Kind: types.KindBoolean},
			{Name: "max_length", Kind: types.KindInt},
			{Name: "pk_ordinal", Kind: types.KindInt},
		},
		PrimaryKey: []int{0, 1},
	}
}
