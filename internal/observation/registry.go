package observation

import "strings"

// 観測項目コード。保存済みの申請やキャッシュが参照するため変更しないこと。
const (
	CodePlantPhenology  = "plantphenology"
	CodeCameratrap      = "cameratrap"
	CodeTerreSoundIndex = "terresoundindex"
	CodeBirdnetSound    = "birdnetsound"
	CodeBioSound        = "biosound"
	CodeWeather         = "weather"
)

// Category は観測項目（コード・表示名・テーブル・日付列）の定義です。
type Category struct {
	Code      string `json:"code"`
	Label     string `json:"label"`
	Table     string `json:"table"`
	DateField string `json:"date_field"`

	model   any
	newRows func() any
}

// Model はテーブル操作に使うモデルの雛形を返します。
func (c Category) Model() any { return c.model }

// NewRows はこの項目の行を受け取るスライスへのポインタを返します。
func (c Category) NewRows() any { return c.newRows() }

var registry = []Category{
	{
		Code: CodePlantPhenology, Label: "植物物候", Table: PlantPhenology{}.TableName(), DateField: "eventDate",
		model: &PlantPhenology{}, newRows: func() any { return &[]PlantPhenology{} },
	},
	{
		Code: CodeCameratrap, Label: "自動照相機監測", Table: Cameratrap{}.TableName(), DateField: "eventDate",
		model: &Cameratrap{}, newRows: func() any { return &[]Cameratrap{} },
	},
	{
		Code: CodeTerreSoundIndex, Label: "聲音指數", Table: TerreSoundIndex{}.TableName(), DateField: "measurementDeterminedDate",
		model: &TerreSoundIndex{}, newRows: func() any { return &[]TerreSoundIndex{} },
	},
	{
		Code: CodeBirdnetSound, Label: "鳥音辨識", Table: BirdnetSound{}.TableName(), DateField: "measurementDeterminedDate",
		model: &BirdnetSound{}, newRows: func() any { return &[]BirdnetSound{} },
	},
	{
		Code: CodeBioSound, Label: "生物辨識", Table: BioSound{}.TableName(), DateField: "measurementDeterminedDate",
		model: &BioSound{}, newRows: func() any { return &[]BioSound{} },
	},
	{
		Code: CodeWeather, Label: "氣象觀測", Table: Weather{}.TableName(), DateField: "eventDate",
		model: &Weather{}, newRows: func() any { return &[]Weather{} },
	},
}

// All は登録順の全観測項目を返します。
func All() []Category {
	out := make([]Category, len(registry))
	copy(out, registry)
	return out
}

// Lookup はコードから観測項目を引きます。
func Lookup(code string) (Category, bool) {
	for _, c := range registry {
		if c.Code == code {
			return c, true
		}
	}
	return Category{}, false
}

// ByLabel は表示名から観測項目を引きます。
func ByLabel(label string) (Category, bool) {
	for _, c := range registry {
		if c.Label == label {
			return c, true
		}
	}
	return Category{}, false
}

// Find はコード、次に表示名の順で照合します。
func Find(item string) (Category, bool) {
	item = strings.TrimSpace(item)
	if c, ok := Lookup(item); ok {
		return c, true
	}
	return ByLabel(item)
}

// Resolve は申請された項目リストを観測項目に変換します。
// 未知の値は黙って捨て、重複は最初の出現だけを残します。
func Resolve(items []string) []Category {
	seen := make(map[string]bool, len(items))
	var out []Category
	for _, item := range items {
		c, ok := Find(item)
		if !ok || seen[c.Code] {
			continue
		}
		seen[c.Code] = true
		out = append(out, c)
	}
	return out
}

// TrackedTables は変更時に地図キャッシュの再構築を起こすテーブルの一覧です。
func TrackedTables() []string {
	tables := []string{Location{}.TableName()}
	for _, c := range registry {
		tables = append(tables, c.Table)
	}
	return tables
}

// IsTracked は table が TrackedTables に含まれるかを返します。
func IsTracked(table string) bool {
	for _, t := range TrackedTables() {
		if t == table {
			return true
		}
	}
	return false
}
