package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// openTestDB はテスト用のインメモリSQLiteを開く。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCollect(t *testing.T) {
	t.Parallel()

	t.Run("バージョン順に並べ替え、対象外のファイルを無視すること", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"m/000002_second.up.sql":  {Data: []byte("SELECT 1;")},
			"m/000001_first.up.sql":   {Data: []byte("SELECT 1;")},
			"m/000001_first.down.sql": {Data: []byte("SELECT 1;")},
			"m/README.md":             {Data: []byte("")},
			"m/abc_invalid.up.sql":    {Data: []byte("")},
		}

		files, err := Collect(fsys, "m")
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, 1, files[0].Version)
		assert.Equal(t, "first", files[0].Name)
		assert.Equal(t, "m/000001_first.up.sql", files[0].Path)
		assert.Equal(t, 2, files[1].Version)
	})

	t.Run("同じバージョンが重複する場合エラーになること", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"m/000001_a.up.sql": {Data: []byte("")},
			"m/000001_b.up.sql": {Data: []byte("")},
		}

		_, err := Collect(fsys, "m")
		assert.Error(t, err)
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"m/000001_create.up.sql": {Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);")},
		"m/000002_insert.up.sql": {Data: []byte("INSERT INTO items (id) VALUES (1);")},
	}

	t.Run("未適用のマイグレーションを適用すること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		ctx := context.Background()
		require.NoError(t, Run(ctx, db, fsys, "m", nil))

		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
		assert.Equal(t, 1, n)
	})

	t.Run("2回実行しても適用済みのものは再実行されないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		ctx := context.Background()
		require.NoError(t, Run(ctx, db, fsys, "m", nil))
		require.NoError(t, Run(ctx, db, fsys, "m", nil))

		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&n))
		assert.Equal(t, 1, n)

		var versions int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
		assert.Equal(t, 2, versions)
	})

	t.Run("SQLが失敗した場合はエラーを返しバージョンを記録しないこと", func(t *testing.T) {
		t.Parallel()

		broken := fstest.MapFS{
			"m/000001_broken.up.sql": {Data: []byte("CREATE TABLE (;")},
		}
		db := openTestDB(t)
		ctx := context.Background()
		require.Error(t, Run(ctx, db, broken, "m", nil))

		var versions int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
		assert.Equal(t, 0, versions)
	})
}
