package observation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"gorm.io/gorm/clause"
)

// Aggregate は日ごとの集計関数です。
type Aggregate string

const (
	AggCountDistinct Aggregate = "count_distinct"
	AggAvg           Aggregate = "avg"
	AggSum           Aggregate = "sum"
)

func (a Aggregate) sql() string {
	switch a {
	case AggCountDistinct:
		return "COUNT(DISTINCT ?)"
	case AggSum:
		return "SUM(?)"
	default:
		return "AVG(?)"
	}
}

// Metric はグラフの1系列です。Column の値を Agg で日ごとに集計し Name で返します。
type Metric struct {
	Name   string    `json:"name"`
	Agg    Aggregate `json:"agg"`
	Column string    `json:"column"`
}

var speciesCount = []Metric{{Name: "species_count", Agg: AggCountDistinct, Column: "scientificName"}}

var chartMetrics = map[string][]Metric{
	CodePlantPhenology: speciesCount,
	CodeCameratrap:     speciesCount,
	CodeBirdnetSound:   speciesCount,
	CodeBioSound:       speciesCount,
	CodeTerreSoundIndex: {
		{Name: "aci", Agg: AggAvg, Column: "ACI"},
		{Name: "adi", Agg: AggAvg, Column: "ADI"},
		{Name: "bi", Agg: AggAvg, Column: "BI"},
		{Name: "ndsi", Agg: AggAvg, Column: "NDSI"},
	},
	CodeWeather: {
		{Name: "air_temperature", Agg: AggAvg, Column: "AirTemperature"},
		{Name: "precipitation", Agg: AggSum, Column: "Precipitation"},
	},
}

// Metrics はこの項目のグラフ系列を返します。
func (c Category) Metrics() []Metric { return chartMetrics[c.Code] }

// ChartPoint はグラフの1日分です。集計対象がすべて NULL の系列は nil になります。
type ChartPoint struct {
	Date   Date
	Values map[string]*float64
}

// MarshalJSON は {"date": "...", "<系列名>": 値, ...} の形に平らにします。
func (p ChartPoint) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Values)+1)
	for name, v := range p.Values {
		out[name] = v
	}
	out["date"] = p.Date
	return json.Marshal(out)
}

// Chart は樣站の観測を日ごとに集計し、日付順に返します。year が 0 なら全期間です。
func (s *Store) Chart(ctx context.Context, c Category, locationID string, year int) ([]ChartPoint, error) {
	metrics := c.Metrics()
	if len(metrics) == 0 {
		return nil, fmt.Errorf("no chart defined for %s", c.Code)
	}

	dateCol := clause.Column{Name: c.DateField}
	q := s.db.WithContext(ctx).Model(c.Model()).Clauses(chartSelect(dateCol, metrics))

	where := []clause.Expression{clause.Eq{Column: clause.Column{Name: "locationID"}, Value: locationID}}
	if year != 0 {
		where = append(where,
			clause.Gte{Column: dateCol, Value: NewDate(year, 1, 1)},
			clause.Lt{Column: dateCol, Value: NewDate(year+1, 1, 1)},
		)
	}
	rows, err := q.Clauses(
		clause.Where{Exprs: where},
		clause.GroupBy{Columns: []clause.Column{dateCol}},
		clause.OrderBy{Columns: []clause.OrderByColumn{{Column: dateCol}}},
	).Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", c.Code, err)
	}
	defer rows.Close()

	var points []ChartPoint
	for rows.Next() {
		var d Date
		values := make([]sql.NullFloat64, len(metrics))
		dest := make([]any, 0, len(metrics)+1)
		dest = append(dest, &d)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan chart of %s: %w", c.Code, err)
		}

		p := ChartPoint{Date: d, Values: make(map[string]*float64, len(metrics))}
		for i, m := range metrics {
			if values[i].Valid {
				v := values[i].Float64
				p.Values[m.Name] = &v
			} else {
				p.Values[m.Name] = nil
			}
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chart of %s: %w", c.Code, err)
	}
	return points, nil
}

func chartSelect(dateCol clause.Column, metrics []Metric) clause.Select {
	exprs := []clause.Expression{clause.Expr{SQL: "? AS chart_date", Vars: []any{dateCol}}}
	for _, m := range metrics {
		exprs = append(exprs, clause.Expr{
			SQL:  m.Agg.sql() + " AS ?",
			Vars: []any{clause.Column{Name: m.Column}, clause.Column{Name: m.Name}},
		})
	}
	return clause.Select{Expression: clause.CommaExpression{Exprs: exprs}}
}
