package models

// TagSummary aggregates completed entries sharing the same full tag (#main/sub)
type TagSummary struct {
	Tag     string  `json:"tag"`
	MainTag string  `json:"main_tag"`
	SubTag  *string `json:"sub_tag"`
	Minutes int     `json:"minutes"`
	Count   int     `json:"count"`
}

// MainTagSummary aggregates completed entries sharing the same main tag
type MainTagSummary struct {
	MainTag string   `json:"main_tag"`
	Minutes int      `json:"minutes"`
	Count   int      `json:"count"`
	SubTags []string `json:"sub_tags"`
}

// DailySummary is the per-day view over completed entries
type DailySummary struct {
	Date                string           `json:"date"`
	TotalMinutes        int              `json:"total_minutes"`
	EntriesCount        int              `json:"entries_count"`
	ActiveSessionsCount int              `json:"active_sessions_count"`
	Tags                []TagSummary     `json:"tags"`
	MainTags            []MainTagSummary `json:"main_tags"`
	AverageEnergy       float64          `json:"average_energy"`
	AverageFocus        float64          `json:"average_focus"`
	TotalInterruptions  int              `json:"total_interruptions"`
	Confidence          string           `json:"confidence"`
	Limitations         string           `json:"limitations"`
}

// MainTag looks up a main tag group by name
func (s *DailySummary) MainTag(name string) (MainTagSummary, bool) {
	for _, m := range s.MainTags {
		if m.MainTag == name {
			return m, true
		}
	}
	return MainTagSummary{}, false
}

// Tag looks up a full tag group by its rendered form
func (s *DailySummary) Tag(rendered string) (TagSummary, bool) {
	for _, t := range s.Tags {
		if t.Tag == rendered {
			return t, true
		}
	}
	return TagSummary{}, false
}

// TagMetrics holds the per-group aggregates used by tag analytics
type TagMetrics struct {
	TotalMinutes int     `json:"total_minutes"`
	SessionCount int     `json:"session_count"`
	AvgEnergy    float64 `json:"avg_energy"`
	AvgFocus     float64 `json:"avg_focus"`
	AvgDuration  float64 `json:"avg_duration"`
}

// SubTagAnalysis is the finer-grained breakdown inside a main tag
type SubTagAnalysis struct {
	SubTag string `json:"sub_tag"`
	TagMetrics
}

// MainTagAnalysis is the per-main-tag breakdown of tag analytics
type MainTagAnalysis struct {
	MainTag string `json:"main_tag"`
	TagMetrics
	SubTags []SubTagAnalysis `json:"sub_tags"`
}

// TagAnalytics is the rolling per-tag view over a timeframe
type TagAnalytics struct {
	TimeframeDays    int               `json:"timeframe_days"`
	TotalEntries     int               `json:"total_entries"`
	TotalTimeMinutes int               `json:"total_time_minutes"`
	MainTagAnalysis  []MainTagAnalysis `json:"main_tag_analysis,omitempty"`
	UserTags         []string          `json:"user_tags"`
	Insights         []string          `json:"insights,omitempty"`
	Message          string            `json:"message,omitempty"`
}

// MainTag looks up a main tag breakdown by name
func (a *TagAnalytics) MainTag(name string) (MainTagAnalysis, bool) {
	for _, m := range a.MainTagAnalysis {
		if m.MainTag == name {
			return m, true
		}
	}
	return MainTagAnalysis{}, false
}

// Estimation accuracy labels
const (
	AccuracyInsufficientData = "insufficient_data"
	AccuracyGood             = "good"
	AccuracyModerate         = "moderate"
	AccuracyNeedsImprovement = "needs_improvement"
)

// EstimationAccuracy compares user estimates against recorded durations
type EstimationAccuracy struct {
	Accuracy            string   `json:"accuracy"`
	AccuracyLevel       string   `json:"accuracy_level,omitempty"`
	AverageErrorPercent *float64 `json:"average_error_percent,omitempty"`
	SampleSize          int      `json:"sample_size"`
	Confidence          string   `json:"confidence"`
	Message             string   `json:"message,omitempty"`
	Limitations         string   `json:"limitations,omitempty"`
}
