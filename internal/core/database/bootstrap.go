package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"time"
)

//go:embed scripts/initdb.sql
var bootstrapFS embed.FS

// EnsureBootstrapped applies the embedded schema. Every statement is
// IF NOT EXISTS, so running it against an already bootstrapped database
// is a no-op.
func EnsureBootstrapped(ctx context.Context, sqlDB *sql.DB, embedDim int) error {
	ctxBoot, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	raw, err := bootstrapFS.ReadFile("scripts/initdb.sql")
	if err != nil {
		return fmt.Errorf("read initdb.sql: %w", err)
	}
	script := strings.ReplaceAll(string(raw), "__EMBED_DIM__", strconv.Itoa(embedDim))

	tx, err := sqlDB.BeginTx(ctxBoot, nil)
	if err != nil {
		return fmt.Errorf("begin bootstrap tx: %w", err)
	}
	if _, err := tx.ExecContext(ctxBoot, script); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec bootstrap: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
