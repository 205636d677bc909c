// Package pgxutil reaches through the database/sql pool to the underlying
// pgx connection so repositories can use pgx-native row collection and
// batching while the rest of the process shares one *sql.DB.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// WithPgxConn borrows a pooled connection, unwraps it to *pgx.Conn via the
// stdlib bridge, and runs fn with it. The connection returns to the pool when
// fn does.
func WithPgxConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	return conn.Raw(func(dc any) error {
		std, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		return fn(std.Conn())
	})
}

// TxConfig groups the options and body for WithPgxTx.
type TxConfig struct {
	Opts *sql.TxOptions
	Fn   func(pgx.Tx) error
}

// WithPgxTx runs cfg.Fn inside a pgx transaction on an unwrapped connection.
// The transaction commits when Fn returns nil and rolls back otherwise.
func WithPgxTx(ctx context.Context, db *sql.DB, cfg TxConfig) error {
	return WithPgxConn(ctx, db, func(conn *pgx.Conn) error {
		tx, err := conn.BeginTx(ctx, toPgxTxOptions(cfg.Opts))
		if err != nil {
			return fmt.Errorf("begin pgx tx: %w", err)
		}
		defer func() {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				_ = rbErr
			}
		}()

		if err := cfg.Fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit pgx tx: %w", err)
		}
		return nil
	})
}

func toPgxTxOptions(opts *sql.TxOptions) pgx.TxOptions {
	if opts == nil {
		return pgx.TxOptions{}
	}

	var iso pgx.TxIsoLevel
	switch opts.Isolation {
	case sql.LevelSerializable, sql.LevelLinearizable:
		iso = pgx.Serializable
	case sql.LevelRepeatableRead, sql.LevelSnapshot:
		iso = pgx.RepeatableRead
	case sql.LevelReadCommitted, sql.LevelWriteCommitted:
		iso = pgx.ReadCommitted
	case sql.LevelReadUncommitted:
		iso = pgx.ReadUncommitted
	default:
		// sql.LevelDefault and anything unmapped use the server default.
	}

	mode := pgx.ReadWrite
	if opts.ReadOnly {
		mode = pgx.ReadOnly
	}

	return pgx.TxOptions{IsoLevel: iso, AccessMode: mode}
}
