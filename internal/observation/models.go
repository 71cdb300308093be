// Package observation は観測データ（樣站・各観測項目テーブル）のモデルとアクセスを提供します。
package observation

import "time"

// Location は樣站の登録情報です。
type Location struct {
	ID               uint    `gorm:"primaryKey;column:id" json:"id"`
	ObservationItem  string  `gorm:"column:observation_item;size:100" json:"observation_item"`
	LocationName     string  `gorm:"column:location_name;size:20" json:"location_name"`
	LocationID       string  `gorm:"column:location_id;size:10;index" json:"location_id"`
	DecimalLongitude float64 `gorm:"column:decimal_longitude;type:decimal(8,3)" json:"decimal_longitude"`
	DecimalLatitude  float64 `gorm:"column:decimal_latitude;type:decimal(7,3)" json:"decimal_latitude"`
}

func (Location) TableName() string { return "api_location" }

// PlantPhenology は植物物候の観測記録です。
type PlantPhenology struct {
	ID                        uint      `gorm:"primaryKey;column:id" json:"id"`
	DecimalLongitude          *float64  `gorm:"column:decimalLongitude;type:decimal(13,10)" json:"decimalLongitude"`
	DecimalLatitude           *float64  `gorm:"column:decimalLatitude;type:decimal(13,10)" json:"decimalLatitude"`
	MinimumElevationInMeters  *int      `gorm:"column:minimumElevationInMeters" json:"minimumElevationInMeters"`
	MaximumElevationInMeters  *int      `gorm:"column:maximumElevationInMeters" json:"maximumElevationInMeters"`
	VernacularName            *string   `gorm:"column:vernacularName;size:255" json:"vernacularName"`
	TaxonID                   *string   `gorm:"column:taxonID;size:128;index" json:"taxonID"`
	VerbatimLocality          string    `gorm:"column:verbatimLocality;size:255;not null" json:"verbatimLocality"`
	ScientificName            *string   `gorm:"column:scientificName;size:255;index" json:"scientificName"`
	TaxonRank                 *string   `gorm:"column:taxonRank;size:64" json:"taxonRank"`
	Locality                  string    `gorm:"column:locality;size:255;not null" json:"locality"`
	LocationID                string    `gorm:"column:locationID;size:128;not null;index" json:"locationID"`
	EventDate                 Date      `gorm:"column:eventDate;not null;index" json:"eventDate"`
	EventID                   string    `gorm:"column:eventID;size:255;index" json:"eventID"`
	DataID                    string    `gorm:"column:dataID;size:255;index" json:"dataID"`
	OrganismID                *string   `gorm:"column:organismID;size:255" json:"organismID"`
	SamplingProtocol          *string   `gorm:"column:samplingProtocol;size:64" json:"samplingProtocol"`
	CanopyCoverPercentage     *int      `gorm:"column:canopyCoverPercentage" json:"canopyCoverPercentage"`
	BudCoverPercentage        *int      `gorm:"column:budCoverPercentage" json:"budCoverPercentage"`
	NewLeafCoverPercentage    *int      `gorm:"column:newLeafCoverPercentage" json:"newLeafCoverPercentage"`
	MatureLeafCoverPercentage *int      `gorm:"column:matureLeafCoverPercentage" json:"matureLeafCoverPercentage"`
	YellowLeafCoverPercentage *int      `gorm:"column:yellowLeafCoverPercentage" json:"yellowLeafCoverPercentage"`
	DeadLeafCoverPercentage   *int      `gorm:"column:deadLeafCoverPercentage" json:"deadLeafCoverPercentage"`
	TotalFlowerCount          *int      `gorm:"column:totalFlowerCount" json:"totalFlowerCount"`
	FullBloomPercentage       *int      `gorm:"column:fullBloomPercentage" json:"fullBloomPercentage"`
	TotalFruitCount           *int      `gorm:"column:totalFruitCount" json:"totalFruitCount"`
	RipeFruitPercentage       *int      `gorm:"column:ripeFruitPercentage" json:"ripeFruitPercentage"`
	CoverInPercentage         *int      `gorm:"column:coverInPercentage" json:"coverInPercentage"`
	HerbaceousPlantHeight     *int      `gorm:"column:herbaceousPlantHeight" json:"herbaceousPlantHeight"`
	IndividualCount           *int      `gorm:"column:individualCount" json:"individualCount"`
	AnimalGrazing             *bool     `gorm:"column:animalGrazing" json:"animalGrazing"`
	SampleSizeValue           *float64  `gorm:"column:sampleSizeValue" json:"sampleSizeValue"`
	SampleSizeUnit            *string   `gorm:"column:sampleSizeUnit;size:64" json:"sampleSizeUnit"`
	CreatedAt                 time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                 time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (PlantPhenology) TableName() string { return "api_plantphenology" }

// Cameratrap は自動撮影カメラの観測記録です。
type Cameratrap struct {
	ID                       uint      `gorm:"primaryKey;column:id" json:"id"`
	ObservationType          string    `gorm:"column:observationType;size:32;not null" json:"observationType"`
	ObservationLevel         string    `gorm:"column:observationLevel;size:16;not null" json:"observationLevel"`
	ObservationComments      *string   `gorm:"column:observationComments" json:"observationComments"`
	DeploymentID             string    `gorm:"column:deploymentID;size:128;not null" json:"deploymentID"`
	Timestamp                time.Time `gorm:"column:timestamp;not null" json:"timestamp"`
	EventDate                Date      `gorm:"column:eventDate;not null;index" json:"eventDate"`
	EventTime                string    `gorm:"column:eventTime;size:16" json:"eventTime"`
	LocationRemarks          *string   `gorm:"column:locationRemarks;size:255" json:"locationRemarks"`
	ScientificName           *string   `gorm:"column:scientificName;size:255" json:"scientificName"`
	ScientificNameAuthorship *string   `gorm:"column:scientificNameAuthorship;size:255" json:"scientificNameAuthorship"`
	VernacularName           *string   `gorm:"column:vernacularName;size:255" json:"vernacularName"`
	TaxonID                  *string   `gorm:"column:taxonID;size:128" json:"taxonID"`
	TaxonRank                *string   `gorm:"column:taxonRank;size:64" json:"taxonRank"`
	Family                   *string   `gorm:"column:family;size:128" json:"family"`
	FamilyChinese            *string   `gorm:"column:familyChinese;size:128" json:"familyChinese"`
	FileName                 *string   `gorm:"column:fileName;size:255" json:"fileName"`
	FilePath                 *string   `gorm:"column:filePath;size:500" json:"filePath"`
	FilePublic               bool      `gorm:"column:filePublic;default:false" json:"filePublic"`
	FileMediatype            string    `gorm:"column:fileMediatype;size:64" json:"fileMediatype"`
	ObservationID            string    `gorm:"column:observationID;size:256" json:"observationID"`
	Sex                      *string   `gorm:"column:sex;size:16" json:"sex"`
	LocationID               string    `gorm:"column:locationID;size:128;not null;index" json:"locationID"`
	CreatedAt                time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Cameratrap) TableName() string { return "api_cameratrap" }

// TerreSoundIndex は音響指数の測定記録です。
type TerreSoundIndex struct {
	ID                        uint      `gorm:"primaryKey;column:id" json:"id"`
	DataID                    string    `gorm:"column:dataID;size:255" json:"dataID"`
	EventID                   string    `gorm:"column:eventID;size:255" json:"eventID"`
	SH                        *float64  `gorm:"column:sh" json:"sh"`
	TH                        *float64  `gorm:"column:th" json:"th"`
	H                         *float64  `gorm:"column:H" json:"H"`
	ACI                       *float64  `gorm:"column:ACI" json:"ACI"`
	ADI                       *float64  `gorm:"column:ADI" json:"ADI"`
	AEI                       *float64  `gorm:"column:AEI" json:"AEI"`
	BI                        *float64  `gorm:"column:BI" json:"BI"`
	NDSI                      *float64  `gorm:"column:NDSI" json:"NDSI"`
	AssociatedMedia           *string   `gorm:"column:associatedMedia;size:500" json:"associatedMedia"`
	Min                       *int      `gorm:"column:min" json:"min"`
	Sec                       *int      `gorm:"column:sec" json:"sec"`
	MeasurementDeterminedDate Date      `gorm:"column:measurementDeterminedDate;not null;index" json:"measurementDeterminedDate"`
	LocationID                string    `gorm:"column:locationID;size:128;not null;index" json:"locationID"`
	DeploymentID              string    `gorm:"column:deploymentID;size:128" json:"deploymentID"`
	CreatedAt                 time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                 time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (TerreSoundIndex) TableName() string { return "api_terresoundindex" }

// BirdnetSound は BirdNET による鳥類音声の辨識結果です。
type BirdnetSound struct {
	ID                        uint      `gorm:"primaryKey;column:id" json:"id"`
	DataID                    string    `gorm:"column:dataID;size:255" json:"dataID"`
	EventID                   string    `gorm:"column:eventID;size:255" json:"eventID"`
	VernacularName            *string   `gorm:"column:vernacularName;size:255" json:"vernacularName"`
	Model                     *string   `gorm:"column:model;size:64" json:"model"`
	TimeBegin                 *float64  `gorm:"column:time_begin" json:"time_begin"`
	TimeEnd                   *float64  `gorm:"column:time_end" json:"time_end"`
	Confidence                *float64  `gorm:"column:confidence" json:"confidence"`
	AssociatedMedia           *string   `gorm:"column:associatedMedia;size:500" json:"associatedMedia"`
	MeasurementDeterminedDate Date      `gorm:"column:measurementDeterminedDate;not null;index" json:"measurementDeterminedDate"`
	LocationID                string    `gorm:"column:locationID;size:128;not null;index" json:"locationID"`
	DeploymentID              string    `gorm:"column:deploymentID;size:128" json:"deploymentID"`
	TaxonID                   *string   `gorm:"column:taxonID;size:128" json:"taxonID"`
	ScientificName            *string   `gorm:"column:scientificName;size:255" json:"scientificName"`
	TaxonRank                 *string   `gorm:"column:taxonRank;size:64" json:"taxonRank"`
	ScientificNameID          *int64    `gorm:"column:scientificNameID" json:"scientificNameID"`
	Family                    *string   `gorm:"column:family;size:128" json:"family"`
	FamilyChinese             *string   `gorm:"column:familyChinese;size:128" json:"familyChinese"`
	CreatedAt                 time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                 time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (BirdnetSound) TableName() string { return "api_birdnetsound" }

// BioSound は生物音声辨識モデルの結果です。
type BioSound struct {
	ID                        uint      `gorm:"primaryKey;column:id" json:"id"`
	DataID                    string    `gorm:"column:dataID;size:255" json:"dataID"`
	EventID                   string    `gorm:"column:eventID;size:255" json:"eventID"`
	ClassID                   *int      `gorm:"column:classid" json:"classid"`
	ScientificName            *string   `gorm:"column:scientificName;size:255" json:"scientificName"`
	TaxonRank                 *string   `gorm:"column:taxonRank;size:64" json:"taxonRank"`
	VernacularName            *string   `gorm:"column:vernacularName;size:255" json:"vernacularName"`
	SoundClass                *string   `gorm:"column:soundclass;size:64" json:"soundclass"`
	TimeBegin                 *float64  `gorm:"column:time_begin" json:"time_begin"`
	TimeEnd                   *float64  `gorm:"column:time_end" json:"time_end"`
	Confidence                *float64  `gorm:"column:confidence" json:"confidence"`
	AssociatedMedia           *string   `gorm:"column:associatedMedia;size:500" json:"associatedMedia"`
	FreqLow                   *float64  `gorm:"column:freq_low" json:"freq_low"`
	FreqHigh                  *float64  `gorm:"column:freq_high" json:"freq_high"`
	MeasurementDeterminedDate Date      `gorm:"column:measurementDeterminedDate;not null;index" json:"measurementDeterminedDate"`
	LocationID                string    `gorm:"column:locationID;size:128;not null;index" json:"locationID"`
	CreatedAt                 time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt                 time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (BioSound) TableName() string { return "api_biosound" }

// Weather は気象観測の記録です。
type Weather struct {
	ID               uint      `gorm:"primaryKey;column:id" json:"id"`
	DataID           string    `gorm:"column:dataID;size:255" json:"dataID"`
	EventID          string    `gorm:"column:eventID;size:255" json:"eventID"`
	LocationID       string    `gorm:"column:locationID;size:128;not null;index" json:"locationID"`
	DeploymentID     string    `gorm:"column:deploymentID;size:128" json:"deploymentID"`
	EventDate        Date      `gorm:"column:eventDate;not null;index" json:"eventDate"`
	EventTime        string    `gorm:"column:eventTime;size:16" json:"eventTime"`
	PAR              *float64  `gorm:"column:PAR" json:"PAR"`
	WetnessLevel     *float64  `gorm:"column:WetnessLevel" json:"WetnessLevel"`
	AirTemperature   *float64  `gorm:"column:AirTemperature" json:"AirTemperature"`
	RelativeHumidity *float64  `gorm:"column:RelativeHumidity" json:"RelativeHumidity"`
	AirPressure      *float64  `gorm:"column:AirPressure" json:"AirPressure"`
	WaterContent     *float64  `gorm:"column:WaterContent" json:"WaterContent"`
	SoilTemperature  *float64  `gorm:"column:SoilTemperature" json:"SoilTemperature"`
	WindDirection    *float64  `gorm:"column:WindDirection" json:"WindDirection"`
	WindSpeed        *float64  `gorm:"column:WindSpeed" json:"WindSpeed"`
	GustSpeed        *float64  `gorm:"column:GustSpeed" json:"GustSpeed"`
	Precipitation    *float64  `gorm:"column:Precipitation" json:"Precipitation"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Weather) TableName() string { return "api_weather" }

// Models はスキーマ移行の対象となる全モデルを返します。
func Models() []any {
	models := []any{&Location{}}
	for _, c := range registry {
		models = append(models, c.model)
	}
	return models
}
