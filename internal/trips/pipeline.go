package trips

// Source names used by pipeline configuration.
const (
	SourceTimeSeries = "time_series"
	SourceStations   = "stations"
	SourceRawTrips   = "raw_trips"
)

// DefaultTopN is the ranking length used when a pipeline does not set one.
const DefaultTopN = 10

// Pipeline describes which tables feed each derived view.
type Pipeline struct {
	Name          string `yaml:"name" json:"name" validate:"required,max=32"`
	SeriesSource  string `yaml:"series" json:"series" validate:"required,oneof=time_series raw_trips"`
	RankingSource string `yaml:"ranking" json:"ranking" validate:"required,oneof=stations raw_trips"`
	TopN          int    `yaml:"top_n" json:"topN" validate:"gte=0,lte=100"`
}

func (p Pipeline) topN() int {
	if p.TopN <= 0 {
		return DefaultTopN
	}
	return p.TopN
}

// DefaultPipelines returns the two built-in pipelines: "weather" reads the
// daily trips/weather extract and the station sample; "raw" derives
// everything from the raw per-trip table.
func DefaultPipelines() []Pipeline {
	return []Pipeline{
		{Name: "weather", SeriesSource: SourceTimeSeries, RankingSource: SourceStations, TopN: DefaultTopN},
		{Name: "raw", SeriesSource: SourceRawTrips, RankingSource: SourceRawTrips, TopN: DefaultTopN},
	}
}
