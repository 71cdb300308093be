package ckan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm/schema"

	"github.com/yourusername/eco-portal/internal/observation"
)

const DefaultLimit = 1000

// Upserter は取り込んだ行を自然キーで書き込みます。
type Upserter interface {
	UpsertBy(ctx context.Context, rows any, keys []string, dryRun bool) (observation.UpsertResult, error)
}

// Options は1回の取り込みの指定です。PackageID と ResourceID はどちらか一方だけを指定します。
type Options struct {
	PackageID           string
	ResourceID          string
	UniqueFields        []string
	Limit               int
	MaxRecords          int
	Formats             []string
	IncludeNonDatastore bool
	DryRun              bool
}

// Report は取り込み結果の件数です。
type Report struct {
	Resources int `json:"resources"`
	Rows      int `json:"rows"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
}

// Importer は CKAN の datastore を観測項目のテーブルへ同期します。
// CKAN の列名はモデルの列名と同じである前提です。
type Importer struct {
	client   *Client
	store    Upserter
	category observation.Category
	schema   *schema.Schema
	logger   *slog.Logger
}

// NewImporter は category のテーブルへ書き込む Importer を作成します。
func NewImporter(client *Client, store Upserter, category observation.Category, logger *slog.Logger) (*Importer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sch, err := schema.Parse(category.Model(), &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse model of %s: %w", category.Code, err)
	}
	return &Importer{
		client:   client,
		store:    store,
		category: category,
		schema:   sch,
		logger:   logger.With("component", "ckan_import", "category", category.Code),
	}, nil
}

// Run はリソースごとにバッチを取得し、バッチ単位で書き込みます。
func (im *Importer) Run(ctx context.Context, opts Options) (Report, error) {
	var report Report
	if (opts.PackageID == "") == (opts.ResourceID == "") {
		return report, errors.New("specify exactly one of package id or resource id")
	}
	keys, err := im.keyColumns(opts.UniqueFields)
	if err != nil {
		return report, err
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	resources := []Resource{{ID: opts.ResourceID, Name: opts.ResourceID, DatastoreActive: true}}
	if opts.PackageID != "" {
		resources, err = im.client.PackageResources(ctx, opts.PackageID, opts.Formats, opts.IncludeNonDatastore)
		if err != nil {
			return report, err
		}
		if len(resources) == 0 {
			return report, fmt.Errorf("no matching resources found in package %s", opts.PackageID)
		}
	}
	im.logger.Info("CKAN import started",
		"resources", len(resources),
		"unique_fields", keys,
		"limit", opts.Limit,
		"max_records", opts.MaxRecords,
		"dry_run", opts.DryRun)

	for _, res := range resources {
		report.Resources++
		err := im.client.SearchBatches(ctx, res.ID, opts.Limit, opts.MaxRecords, func(records []Record) error {
			rows := im.category.NewRows()
			slice := reflect.ValueOf(rows).Elem()
			skipped := 0
			for _, rec := range records {
				row, ok := im.decode(rec, keys)
				if !ok {
					skipped++
					continue
				}
				slice.Set(reflect.Append(slice, row))
			}

			result := observation.UpsertResult{}
			if slice.Len() > 0 {
				var err error
				result, err = im.store.UpsertBy(ctx, rows, keys, opts.DryRun)
				if err != nil {
					return err
				}
			}
			report.Rows += len(records)
			report.Inserted += result.Inserted
			report.Updated += result.Updated
			report.Skipped += skipped
			im.logger.Info("CKAN batch committed",
				"resource", res.Name,
				"rows", len(records),
				"inserted", result.Inserted,
				"updated", result.Updated,
				"skipped", skipped,
				"total_so_far", report.Rows)
			return nil
		})
		if err != nil {
			return report, fmt.Errorf("failed to sync resource %s: %w", res.ID, err)
		}
	}

	im.logger.Info("CKAN import finished",
		"rows", report.Rows,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"skipped", report.Skipped)
	return report, nil
}

func (im *Importer) keyColumns(fields []string) ([]string, error) {
	var keys []string
	for _, name := range fields {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		f := im.schema.LookUpField(name)
		if f == nil || f.DBName == "" {
			return nil, fmt.Errorf("unknown unique field %q for %s", name, im.category.Code)
		}
		keys = append(keys, f.DBName)
	}
	if len(keys) == 0 {
		return nil, errors.New("at least one unique field is required (e.g. eventID,dataID)")
	}
	return keys, nil
}

// decode は1レコードをモデルの値に変換します。
// 自然キーが欠けている行と座標が範囲外の行は捨てます。
func (im *Importer) decode(rec Record, keys []string) (reflect.Value, bool) {
	row := reflect.New(im.schema.ModelType).Elem()
	present := make(map[string]bool, len(rec))
	for name, raw := range rec {
		f := im.schema.LookUpField(name)
		if f == nil || f.DBName == "" || f.PrimaryKey || f.AutoCreateTime > 0 || f.AutoUpdateTime > 0 {
			continue
		}
		v, ok := coerce(f.FieldType, raw)
		if !ok {
			continue
		}
		row.FieldByIndex(f.StructField.Index).Set(v)
		present[f.DBName] = true
	}
	if len(present) == 0 {
		return row, false
	}

	for _, k := range keys {
		if !present[k] {
			im.logger.Warn("skip row missing unique fields", "keys", keys, "record", rec)
			return row, false
		}
	}
	if !im.inRange(row, "decimalLongitude", 180) || !im.inRange(row, "decimalLatitude", 90) {
		im.logger.Warn("skip row with out-of-range coordinates", "record", rec)
		return row, false
	}
	return row, true
}

func (im *Importer) inRange(row reflect.Value, column string, limit float64) bool {
	f := im.schema.LookUpField(column)
	if f == nil {
		return true
	}
	v := reflect.Indirect(row.FieldByIndex(f.StructField.Index))
	if !v.IsValid() || !v.CanFloat() {
		return true
	}
	return v.Float() > -limit && v.Float() < limit
}

var (
	dateType = reflect.TypeOf(observation.Date{})
	timeType = reflect.TypeOf(time.Time{})
)

// coerce は CKAN の値を t 型へ変換します。空文字・null・変換できない値は false を返します。
func coerce(t reflect.Type, raw any) (reflect.Value, bool) {
	if raw == nil {
		return reflect.Value{}, false
	}
	text := strings.TrimSpace(fmt.Sprint(raw))
	if _, ok := raw.(string); ok && text == "" {
		return reflect.Value{}, false
	}

	target := t
	if t.Kind() == reflect.Ptr {
		target = t.Elem()
	}
	out := reflect.New(target).Elem()

	switch {
	case target == dateType:
		d, ok := parseDate(text)
		if !ok {
			return reflect.Value{}, false
		}
		out.Set(reflect.ValueOf(d))
	case target == timeType:
		return reflect.Value{}, false
	default:
		switch target.Kind() {
		case reflect.String:
			out.SetString(text)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			n, err := toInt(raw, text)
			if err != nil {
				return reflect.Value{}, false
			}
			out.SetInt(n)
		case reflect.Float32, reflect.Float64:
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return reflect.Value{}, false
			}
			out.SetFloat(f)
		case reflect.Bool:
			b, ok := parseBool(raw, text)
			if !ok {
				return reflect.Value{}, false
			}
			out.SetBool(b)
		default:
			return reflect.Value{}, false
		}
	}

	if t.Kind() == reflect.Ptr {
		p := reflect.New(target)
		p.Elem().Set(out)
		return p, true
	}
	return out, true
}

// toInt は数値型なら小数部を切り捨て、文字列なら整数表記だけを受け付けます。
func toInt(raw any, text string) (int64, error) {
	switch v := raw.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		return int64(f), err
	case float64:
		return int64(v), nil
	}
	return strconv.ParseInt(text, 10, 64)
}

func parseBool(raw any, text string) (bool, bool) {
	if b, ok := raw.(bool); ok {
		return b, true
	}
	switch strings.ToLower(text) {
	case "1", "true", "t", "yes", "y":
		return true, true
	case "0", "false", "f", "no", "n":
		return false, true
	}
	return false, false
}

// parseDate は YYYY-MM-DD か、日時文字列の日付部分を受け付けます。
func parseDate(text string) (observation.Date, bool) {
	if d, err := observation.ParseDate(text); err == nil {
		return d, true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, text); err == nil {
			return observation.NewDate(t.Date()), true
		}
	}
	return observation.Date{}, false
}
