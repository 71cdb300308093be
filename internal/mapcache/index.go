package mapcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/yourusername/eco-portal/internal/metrics"
	"github.com/yourusername/eco-portal/internal/observation"
)

// ErrNotReady はインデックスがまだ構築されていない場合に返されます。
var ErrNotReady = errors.New("map cache is not ready")

// ErrInvalidYear は year 条件が整数でない場合に返されます。
var ErrInvalidYear = errors.New("year must be an integer")

// FilterIndex は年 → その年にデータがある項目の表示名（コード順）です。
type FilterIndex map[string][]string

// LocationEntry は樣站1件分のインデックスです。
type LocationEntry struct {
	LocationID       string              `json:"location_id"`
	LocationName     string              `json:"location_name"`
	DecimalLongitude float64             `json:"decimal_longitude"`
	DecimalLatitude  float64             `json:"decimal_latitude"`
	Position         [2]float64          `json:"position"`
	Years            map[string][]string `json:"years"`
}

// Source はインデックス構築が読む観測データです。
type Source interface {
	Locations(ctx context.Context) ([]observation.Location, error)
	DistinctYears(ctx context.Context, c observation.Category, locationID string) ([]int, error)
}

// Builder はインデックスを丸ごと作り直してキャッシュに書き込みます。
// 既存の内容とはマージせず、1つのキーを1回の Set で置き換えます。
type Builder struct {
	source      Source
	cache       Cache
	concurrency int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// NewBuilder は Builder を作成します。concurrency は樣站ごとの集計の並列数です。
func NewBuilder(source Source, cache Cache, concurrency int, logger *slog.Logger, m *metrics.Metrics) *Builder {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		source:      source,
		cache:       cache,
		concurrency: concurrency,
		logger:      logger.With("component", "mapcache"),
		metrics:     m,
	}
}

// RebuildFilter は年別項目インデックスを作り直します。
func (b *Builder) RebuildFilter(ctx context.Context) (err error) {
	defer func() { b.metrics.CacheRebuilt("filter", err) }()

	categories := observation.All()
	sort.Slice(categories, func(i, j int) bool { return categories[i].Code < categories[j].Code })

	index := FilterIndex{}
	for _, c := range categories {
		years, err := b.source.DistinctYears(ctx, c, "")
		if err != nil {
			return err
		}
		for _, y := range years {
			key := strconv.Itoa(y)
			index[key] = append(index[key], c.Label)
		}
	}

	if err := b.store(ctx, FilterKey(), index); err != nil {
		return err
	}
	b.logger.Info("filter index rebuilt", "years", len(index))
	return nil
}

// RebuildLocations は樣站一覧インデックスを作り直します。
func (b *Builder) RebuildLocations(ctx context.Context) (err error) {
	defer func() { b.metrics.CacheRebuilt("locations", err) }()

	locations, err := b.source.Locations(ctx)
	if err != nil {
		return err
	}

	entries := make([]LocationEntry, len(locations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, loc := range locations {
		g.Go(func() error {
			entry, err := b.locationEntry(gctx, loc)
			if err != nil {
				return err
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := b.store(ctx, LocationListKey("", ""), entries); err != nil {
		return err
	}
	b.logger.Info("location index rebuilt", "locations", len(entries))
	return nil
}

func (b *Builder) locationEntry(ctx context.Context, loc observation.Location) (LocationEntry, error) {
	entry := LocationEntry{
		LocationID:       loc.LocationID,
		LocationName:     loc.LocationName,
		DecimalLongitude: loc.DecimalLongitude,
		DecimalLatitude:  loc.DecimalLatitude,
		Position:         [2]float64{loc.DecimalLatitude, loc.DecimalLongitude},
		Years:            map[string][]string{},
	}
	for _, c := range observation.All() {
		years, err := b.source.DistinctYears(ctx, c, loc.LocationID)
		if err != nil {
			return LocationEntry{}, err
		}
		for _, y := range years {
			key := strconv.Itoa(y)
			entry.Years[key] = append(entry.Years[key], c.Label)
		}
	}
	return entry, nil
}

func (b *Builder) store(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := b.cache.Set(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Reader はキャッシュ済みのインデックスを読み出します。集計は行いません。
type Reader struct {
	cache Cache
}

func NewReader(cache Cache) *Reader {
	return &Reader{cache: cache}
}

// Filter は年別項目インデックスを返します。未構築なら ErrNotReady です。
func (r *Reader) Filter(ctx context.Context) (FilterIndex, error) {
	var index FilterIndex
	if err := r.load(ctx, FilterKey(), &index); err != nil {
		return nil, err
	}
	return index, nil
}

// Locations は樣站一覧を返します。
//
// year を指定するとその年だけを残し、item（コードまたは表示名）を指定するとその項目だけを
// 残します。条件を指定した場合、該当データの無い樣站は結果から除きます。
func (r *Reader) Locations(ctx context.Context, year, item string) ([]LocationEntry, error) {
	var entries []LocationEntry
	if err := r.load(ctx, LocationListKey("", ""), &entries); err != nil {
		return nil, err
	}
	if year == "" && item == "" {
		return entries, nil
	}

	if year != "" {
		y, err := strconv.Atoi(year)
		if err != nil {
			return nil, ErrInvalidYear
		}
		year = strconv.Itoa(y)
	}
	label := ""
	if item != "" {
		c, ok := observation.ByLabel(item)
		if !ok {
			c, ok = observation.Lookup(item)
		}
		if !ok {
			return []LocationEntry{}, nil
		}
		label = c.Label
	}

	out := make([]LocationEntry, 0, len(entries))
	for _, e := range entries {
		years := map[string][]string{}
		for y, labels := range e.Years {
			if year != "" && y != year {
				continue
			}
			var kept []string
			for _, l := range labels {
				if label == "" || l == label {
					kept = append(kept, l)
				}
			}
			if len(kept) > 0 {
				years[y] = kept
			}
		}
		if len(years) == 0 {
			continue
		}
		e.Years = years
		out = append(out, e)
	}
	return out, nil
}

func (r *Reader) load(ctx context.Context, key string, dst any) error {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return ErrNotReady
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
