/*
 * @Description: 基于 ent 方言 SQL 构建器的仓储公共部分
 * @Author: 安知鱼
 * @Date: 2026-08-21 16:10:37
 * @LastEditTime: 2026-09-02 11:24:05
 * @LastEditors: 安知鱼
 */
package ent

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// querier 同时被 *sql.DB 和 *sql.Tx 实现，仓储无需关心是否处于事务中
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type base struct {
	q       querier
	dialect string
}

func (b base) sb() *entsql.DialectBuilder {
	return entsql.Dialect(b.dialect)
}

func (b base) exec(ctx context.Context, stmt entsql.Querier) (sql.Result, error) {
	query, args := stmt.Query()
	return b.q.ExecContext(ctx, query, args...)
}

func (b base) query(ctx context.Context, stmt entsql.Querier) (*sql.Rows, error) {
	query, args := stmt.Query()
	return b.q.QueryContext(ctx, query, args...)
}

func (b base) queryRow(ctx context.Context, stmt entsql.Querier) *sql.Row {
	query, args := stmt.Query()
	return b.q.QueryRowContext(ctx, query, args...)
}

// insertReturningID 插入一行并返回自增主键。Postgres 不支持 LastInsertId。
func (b base) insertReturningID(ctx context.Context, ins *entsql.InsertBuilder) (uint, error) {
	if b.dialect == dialect.Postgres {
		var id int64
		if err := b.queryRow(ctx, ins.Returning("id")).Scan(&id); err != nil {
			return 0, err
		}
		return uint(id), nil
	}
	res, err := b.exec(ctx, ins)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func (b base) count(ctx context.Context, table string, preds ...*entsql.Predicate) (int64, error) {
	sel := b.sb().Select(entsql.Count("*")).From(entsql.Table(table))
	if p := and(preds...); p != nil {
		sel = sel.Where(p)
	}
	var n int64
	if err := b.queryRow(ctx, sel).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// timeArg 把时间转换为驱动参数。SQLite 以定宽 UTC 文本存储，保证按字符串排序即按时间排序。
func (b base) timeArg(t time.Time) any {
	if b.dialect == dialect.SQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t
}

func and(preds ...*entsql.Predicate) *entsql.Predicate {
	var nonNil []*entsql.Predicate
	for _, p := range preds {
		if p != nil {
			nonNil = append(nonNil, p)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return entsql.And(nonNil...)
	}
}

const sqliteTimeLayout = "2006-01-02 15:04:05.000000"

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// nullTime 兼容各驱动返回的时间表示（time.Time、文本）
type nullTime struct {
	Time  time.Time
	Valid bool
}

func (t *nullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v, true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	case int64:
		t.Time, t.Valid = time.Unix(v, 0), true
		return nil
	}
	return fmt.Errorf("无法把 %T 转换为时间", value)
}

func (t *nullTime) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time, t.Valid = time.Time{}, false
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time, t.Valid = parsed, true
			return nil
		}
	}
	return fmt.Errorf("无法解析时间: %q", s)
}

func (t nullTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableUint(u *uint) any {
	if u == nil {
		return nil
	}
	return int64(*u)
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func uintPtr(ni sql.NullInt64) *uint {
	if !ni.Valid {
		return nil
	}
	v := uint(ni.Int64)
	return &v
}
