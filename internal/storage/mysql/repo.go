package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"concierge/internal/domain"
)

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
func valDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}
func valF64(f float64, ok bool) any {
	if !ok {
		return nil
	}
	return f
}
func valJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// SaveCatalog replaces the stored catalog with c in one transaction. Rows
// missing from c are deleted, so the table always mirrors the last snapshot.
func (r *Repo) SaveCatalog(ctx context.Context, c domain.CatalogData) (err error) {
	if len(c.Properties) == 0 {
		return errors.New("refusing to save an empty catalog")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = upsertProperties(ctx, tx, c.Properties); err != nil {
		return fmt.Errorf("upsert properties: %w", err)
	}
	if err = upsertRoomTypes(ctx, tx, c.RoomTypes); err != nil {
		return fmt.Errorf("upsert room types: %w", err)
	}
	if err = upsertRateCodes(ctx, tx, c.RateCodes); err != nil {
		return fmt.Errorf("upsert rate codes: %w", err)
	}

	// children first: the FKs cascade, but explicit deletes keep the counts honest
	if err = deleteMissing(ctx, tx, "rate_codes", idsOf(c.RateCodes, func(x domain.RateCode) int64 { return x.ID })); err != nil {
		return err
	}
	if err = deleteMissing(ctx, tx, "room_types", idsOf(c.RoomTypes, func(x domain.RoomType) int64 { return x.ID })); err != nil {
		return err
	}
	if err = deleteMissing(ctx, tx, "properties", idsOf(c.Properties, func(x domain.Property) int64 { return x.ID })); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertProperties(ctx context.Context, tx *sql.Tx, ps []domain.Property) error {
	values := make([]string, 0, len(ps))
	args := make([]any, 0, len(ps)*10)
	for pos, p := range ps {
		services, _ := json.Marshal(p.MandatoryServices)
		values = append(values, "(?,?,?,?,?,?,?,?,?,?)")
		args = append(args,
			p.ID,
			pos,
			p.Name,
			valStr(p.City),
			valStr(p.Country),
			valStr(p.Address),
			valStr(p.Timezone),
			valStr(p.CancellationRules),
			valJSON(services),
			p.Active,
		)
	}
	_, err := tx.ExecContext(ctx, upsertPropertiesPrefix+strings.Join(values, ",")+upsertPropertiesOnDup, args...)
	return err
}

func upsertRoomTypes(ctx context.Context, tx *sql.Tx, rs []domain.RoomType) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*9)
	for _, rt := range rs {
		values = append(values, "(?,?,?,?,?,?,?,?,?)")
		args = append(args,
			rt.ID,
			rt.PropertyID,
			rt.Name,
			valStr(rt.Type),
			valStr(rt.TypeDescription),
			rt.MaxAdults,
			rt.MaxChildren,
			rt.Occupancy,
			rt.Inventory,
		)
	}
	_, err := tx.ExecContext(ctx, upsertRoomTypesPrefix+strings.Join(values, ",")+upsertRoomTypesOnDup, args...)
	return err
}

func upsertRateCodes(ctx context.Context, tx *sql.Tx, rs []domain.RateCode) error {
	if len(rs) == 0 {
		return nil
	}
	values := make([]string, 0, len(rs))
	args := make([]any, 0, len(rs)*6)
	for pos, rc := range rs {
		values = append(values, "(?,?,?,?,?,?)")
		args = append(args, rc.ID, rc.PropertyID, pos, rc.Name, valDate(rc.ValidFrom), valDate(rc.ValidTo))
	}
	_, err := tx.ExecContext(ctx, upsertRateCodesPrefix+strings.Join(values, ",")+upsertRateCodesOnDup, args...)
	return err
}

func idsOf[T any](xs []T, id func(T) int64) []int64 {
	out := make([]int64, 0, len(xs))
	for _, x := range xs {
		out = append(out, id(x))
	}
	return out
}

// deleteMissing removes rows of table whose id is not in keep. table is never user input.
func deleteMissing(ctx context.Context, tx *sql.Tx, table string, keep []int64) error {
	if len(keep) == 0 {
		_, err := tx.ExecContext(ctx, "DELETE FROM "+table)
		return err
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	args := make([]any, len(keep))
	for i, id := range keep {
		args[i] = id
	}
	_, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id NOT IN ("+marks+")", args...)
	return err
}

// LoadCatalog reads the last saved catalog in source order. An empty store
// yields domain.ErrNotFound.
func (r *Repo) LoadCatalog(ctx context.Context) (domain.CatalogData, error) {
	var out domain.CatalogData

	rows, err := r.db.QueryContext(ctx, listPropertiesSQL)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var p domain.Property
		var city, country, address, tz, cancel sql.NullString
		var services []byte
		if err := rows.Scan(&p.ID, &p.Name, &city, &country, &address, &tz, &cancel, &services, &p.Active); err != nil {
			rows.Close()
			return out, err
		}
		p.City, p.Country, p.Address = city.String, country.String, address.String
		p.Timezone, p.CancellationRules = tz.String, cancel.String
		if len(services) > 0 {
			_ = json.Unmarshal(services, &p.MandatoryServices)
		}
		out.Properties = append(out.Properties, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}
	if len(out.Properties) == 0 {
		return out, domain.ErrNotFound
	}

	rows, err = r.db.QueryContext(ctx, listRoomTypesSQL)
	if err != nil {
		return out, err
	}
	for rows.Next() {
		var rt domain.RoomType
		var typ, desc sql.NullString
		if err := rows.Scan(&rt.ID, &rt.PropertyID, &rt.Name, &typ, &desc,
			&rt.MaxAdults, &rt.MaxChildren, &rt.Occupancy, &rt.Inventory); err != nil {
			rows.Close()
			return out, err
		}
		rt.Type, rt.TypeDescription = typ.String, desc.String
		out.RoomTypes = append(out.RoomTypes, rt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, err
	}

	rows, err = r.db.QueryContext(ctx, listRateCodesSQL)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		var rc domain.RateCode
		var from, to sql.NullTime
		if err := rows.Scan(&rc.ID, &rc.PropertyID, &rc.Name, &from, &to); err != nil {
			return out, err
		}
		if from.Valid {
			t := from.Time
			rc.ValidFrom = &t
		}
		if to.Valid {
			t := to.Time
			rc.ValidTo = &t
		}
		out.RateCodes = append(out.RateCodes, rc)
	}
	return out, rows.Err()
}

// LogMiss records a catalog resource the backend refused or did not have.
func (r *Repo) LogMiss(ctx context.Context, propertyID int64, resource string, status int, reason string) error {
	_, err := r.db.ExecContext(ctx, insertMissSQL, propertyID, resource, status, reason)
	return err
}

func (r *Repo) RecordTurn(ctx context.Context, t domain.TurnRecord) error {
	_, err := r.db.ExecContext(ctx, insertTurnSQL,
		t.ID,
		t.SessionID,
		t.Attempt,
		t.State,
		valStr(string(t.Intent)),
		valF64(t.Confidence, t.Intent != ""),
		t.Valid,
		valStr(string(t.ErrorKind)),
		t.At,
	)
	return err
}
