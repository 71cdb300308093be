package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/yourusername/eco-portal/internal/observation"
)

// writeCSV は table の全列をヘッダーとし、1行1レコードで path に書き出します。
func writeCSV(ctx context.Context, path string, table *observation.Table) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("CSVファイルの作成に失敗しました: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Header()); err != nil {
		return fmt.Errorf("CSVヘッダーの書き込みに失敗しました: %w", err)
	}

	record := make([]string, len(table.Header()))
	for i := 0; i < table.Len(); i++ {
		for j, v := range table.Row(ctx, i) {
			cell, err := formatCell(v)
			if err != nil {
				return fmt.Errorf("row %d column %s: %w", i, table.Header()[j], err)
			}
			record[j] = cell
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("CSVの書き込みに失敗しました: %w", err)
	}
	return f.Close()
}

// formatCell は値を CSV のセル文字列にします。
// NULL は空文字、小数は往復で値が変わらない最短表現、構造を持つ値は JSON です。
func formatCell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case observation.Date:
		return x.String(), nil
	case time.Time:
		if x.IsZero() {
			return "", nil
		}
		return x.UTC().Format(time.RFC3339Nano), nil
	case json.RawMessage:
		return string(x), nil
	case []byte:
		return string(x), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cannot encode %T: %w", v, err)
	}
	return string(data), nil
}
