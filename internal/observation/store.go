package observation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// Op は書き込み操作の種類です。
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEvent は追跡対象テーブルへの書き込みを表します。
type ChangeEvent struct {
	Table string
	Op    Op
}

// ChangeListener は追跡対象テーブルの変更通知を受け取ります。
// 書き込み自体は通知の成否に影響されません。
type ChangeListener interface {
	ObservationChanged(ctx context.Context, event ChangeEvent)
}

// Store は観測データの読み書きを担当します。
// 書き込みは必ず Store を通し、追跡対象テーブルの変更を listener へ通知します。
type Store struct {
	db       *gorm.DB
	listener ChangeListener
	logger   *slog.Logger
	schemas  *sync.Map
}

// NewStore は Store を作成します。listener は nil でも構いません。
func NewStore(db *gorm.DB, listener ChangeListener, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:       db,
		listener: listener,
		logger:   logger.With("component", "observation"),
		schemas:  &sync.Map{},
	}
}

// Create はモデル（またはモデルのスライス）を挿入します。
func (s *Store) Create(ctx context.Context, value any) error {
	table, err := s.tableOf(value)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(value).Error; err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	s.emit(ctx, ChangeEvent{Table: table, Op: OpCreate})
	return nil
}

// Save は主キーの一致する既存行を value で置き換え、更新件数を返します。
// 行が無ければ挿入せず 0 を返します。created_at は保持します。
func (s *Store) Save(ctx context.Context, value any) (int64, error) {
	table, err := s.tableOf(value)
	if err != nil {
		return 0, err
	}
	result := s.db.WithContext(ctx).Model(value).Select("*").Omit("id", "created_at").Updates(value)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to save %s: %w", table, result.Error)
	}
	if result.RowsAffected > 0 {
		s.emit(ctx, ChangeEvent{Table: table, Op: OpUpdate})
	}
	return result.RowsAffected, nil
}

// UpsertResult は UpsertBy の件数です。
type UpsertResult struct {
	Inserted int
	Updated  int
}

// UpsertBy は rows（モデルのスライスへのポインタ）を keys の列で既存行と照合し、
// 一致すれば値のある列だけを更新、無ければ挿入します。1回の呼び出しが1トランザクションです。
// dryRun なら件数だけ数えて書き込みません。
func (s *Store) UpsertBy(ctx context.Context, rows any, keys []string, dryRun bool) (UpsertResult, error) {
	var res UpsertResult
	slice := reflect.Indirect(reflect.ValueOf(rows))
	if slice.Kind() != reflect.Slice {
		return res, fmt.Errorf("upsert expects a pointer to a slice, got %T", rows)
	}
	if len(keys) == 0 {
		return res, fmt.Errorf("upsert requires at least one key column")
	}
	sch, err := s.parse(rows)
	if err != nil {
		return res, err
	}
	keyFields := make([]*schema.Field, 0, len(keys))
	for _, k := range keys {
		f := sch.LookUpField(k)
		if f == nil {
			return res, fmt.Errorf("unknown key column %s on %s", k, sch.Table)
		}
		keyFields = append(keyFields, f)
	}
	pk := sch.PrioritizedPrimaryField

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < slice.Len(); i++ {
			elem := slice.Index(i)
			exprs := make([]clause.Expression, 0, len(keyFields))
			for _, f := range keyFields {
				v, _ := f.ValueOf(ctx, elem)
				exprs = append(exprs, clause.Eq{Column: clause.Column{Name: f.DBName}, Value: v})
			}

			existing := reflect.New(sch.ModelType)
			err := tx.Clauses(clause.Where{Exprs: exprs}).Take(existing.Interface()).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				res.Inserted++
				if dryRun {
					continue
				}
				if pk != nil {
					if err := pk.Set(ctx, elem, reflect.Zero(pk.FieldType).Interface()); err != nil {
						return err
					}
				}
				if err := tx.Create(elem.Addr().Interface()).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				res.Updated++
				if dryRun {
					continue
				}
				if pk != nil {
					v, _ := pk.ValueOf(ctx, existing.Elem())
					if err := pk.Set(ctx, elem, v); err != nil {
						return err
					}
				}
				if err := tx.Model(existing.Interface()).Updates(elem.Addr().Interface()).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to upsert into %s: %w", sch.Table, err)
	}
	if !dryRun && res.Inserted+res.Updated > 0 {
		s.emit(ctx, ChangeEvent{Table: sch.Table, Op: OpUpdate})
	}
	return res, nil
}

// Delete は model のテーブルから id の行を削除し、削除件数を返します。
func (s *Store) Delete(ctx context.Context, model any, id uint) (int64, error) {
	table, err := s.tableOf(model)
	if err != nil {
		return 0, err
	}
	result := s.db.WithContext(ctx).Delete(model, id)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, result.Error)
	}
	if result.RowsAffected > 0 {
		s.emit(ctx, ChangeEvent{Table: table, Op: OpDelete})
	}
	return result.RowsAffected, nil
}

func (s *Store) emit(ctx context.Context, event ChangeEvent) {
	if s.listener == nil || !IsTracked(event.Table) {
		return
	}
	s.logger.Debug("observation table changed", "table", event.Table, "op", event.Op)
	s.listener.ObservationChanged(ctx, event)
}

func (s *Store) parse(value any) (*schema.Schema, error) {
	sch, err := schema.Parse(value, s.schemas, s.db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %T: %w", value, err)
	}
	return sch, nil
}

func (s *Store) tableOf(value any) (string, error) {
	sch, err := s.parse(value)
	if err != nil {
		return "", err
	}
	return sch.Table, nil
}

// Locations は樣站を location_id 順に返します。同じ location_id は最初の1件だけ残します。
func (s *Store) Locations(ctx context.Context) ([]Location, error) {
	var rows []Location
	if err := s.db.WithContext(ctx).Order("location_id").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	out := rows[:0]
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		if seen[row.LocationID] {
			continue
		}
		seen[row.LocationID] = true
		out = append(out, row)
	}
	return out, nil
}

// DistinctYears は観測項目の日付列に現れる年を昇順で返します。
// locationID が空でなければその樣站に絞り込みます。
func (s *Store) DistinctYears(ctx context.Context, c Category, locationID string) ([]int, error) {
	q := s.db.WithContext(ctx).Model(c.Model()).
		Clauses(clause.Select{Distinct: true, Columns: []clause.Column{{Name: c.DateField}}})
	if locationID != "" {
		q = q.Clauses(clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Name: "locationID"}, Value: locationID},
		}})
	}

	rows, err := q.Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to query years of %s: %w", c.Code, err)
	}
	defer rows.Close()

	set := make(map[int]struct{})
	for rows.Next() {
		var d Date
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan %s.%s: %w", c.Table, c.DateField, err)
		}
		if !d.IsZero() {
			set[d.Year()] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read years of %s: %w", c.Code, err)
	}

	years := make([]int, 0, len(set))
	for y := range set {
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// FindRows は指定樣站・指定年の行を id 順に取得します。
func (s *Store) FindRows(ctx context.Context, c Category, locationID string, year int) (*Table, error) {
	dest := c.NewRows()
	err := s.db.WithContext(ctx).
		Clauses(clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Name: "locationID"}, Value: locationID},
			clause.Gte{Column: clause.Column{Name: c.DateField}, Value: NewDate(year, 1, 1)},
			clause.Lt{Column: clause.Column{Name: c.DateField}, Value: NewDate(year+1, 1, 1)},
		}}).
		Order("id").
		Find(dest).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.Code, err)
	}

	sch, err := s.parse(c.Model())
	if err != nil {
		return nil, err
	}
	var fields []*schema.Field
	for _, f := range sch.Fields {
		if f.DBName != "" {
			fields = append(fields, f)
		}
	}
	return &Table{fields: fields, rows: reflect.ValueOf(dest).Elem()}, nil
}

// Table は FindRows の結果です。列はモデルの宣言順に並びます。
type Table struct {
	fields []*schema.Field
	rows   reflect.Value
}

// Len は行数を返します。
func (t *Table) Len() int { return t.rows.Len() }

// Header は列名を返します。
func (t *Table) Header() []string {
	header := make([]string, len(t.fields))
	for i, f := range t.fields {
		header[i] = f.DBName
	}
	return header
}

// Row は i 行目の値を列順に返します。NULL は nil になります。
func (t *Table) Row(ctx context.Context, i int) []any {
	elem := t.rows.Index(i)
	values := make([]any, len(t.fields))
	for j, f := range t.fields {
		v := f.ReflectValueOf(ctx, elem)
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				continue
			}
			v = v.Elem()
		}
		values[j] = v.Interface()
	}
	return values
}
