package tracker

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/benvon/flowstate/internal/models"
)

const (
	// MinEstimationSamples is the number of estimation pairs needed before accuracy is reported
	MinEstimationSamples = 3

	// insightMetricThreshold is the average energy/focus a tag must exceed to be called out
	insightMetricThreshold = 3.5
	diverseTagCount        = 5
	narrowTagCount         = 2

	highConfidenceShare = 0.7
)

const (
	confidenceNoData       = "no_data"
	noDataLimitations      = "No time tracking data available for this date"
	summaryLimitations     = "Data based on user input and may include estimation errors"
	noTagDataMessage       = "No data available for the specified timeframe"
	insufficientEstimates  = "Need at least 3 estimated tasks to calculate accuracy"
	estimationLimitations  = "Based on limited data and subject to recall bias"
	dailySummaryDateLayout = "2006-01-02"
)

// Analytics computes read-only views over a Store. Every method takes the store's read lock
// for the duration of the computation and is a pure function of the store contents and its arguments.
//
// Groupings are returned in first-occurrence order over the creation-ordered entry log.
// Sub tag lists are sorted alphabetically.
type Analytics struct {
	store *Store
}

// NewAnalytics creates an analytics engine over store
func NewAnalytics(store *Store) *Analytics {
	return &Analytics{store: store}
}

// DailySummary aggregates completed entries whose start falls on the calendar day of date,
// evaluated in date's location
func (a *Analytics) DailySummary(date time.Time) models.DailySummary {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()

	loc := date.Location()
	y, m, d := date.Date()
	summary := models.DailySummary{
		Date:                date.Format(dailySummaryDateLayout),
		ActiveSessionsCount: len(a.store.active),
		Tags:                []models.TagSummary{},
		MainTags:            []models.MainTagSummary{},
	}

	tagIndex := make(map[string]int)
	mainIndex := make(map[string]int)
	subTagSets := make(map[string]map[string]struct{})
	var energy, focus, high int

	for _, entry := range a.store.entries {
		if !entry.IsComplete() {
			continue
		}
		ey, em, ed := entry.StartTime.In(loc).Date()
		if ey != y || em != m || ed != d {
			continue
		}
		minutes, _ := entry.DurationMinutes()

		summary.EntriesCount++
		summary.TotalMinutes += minutes
		summary.TotalInterruptions += entry.Interruptions
		energy += entry.EnergyLevel
		focus += entry.FocusQuality
		if entry.Confidence == models.ConfidenceHigh {
			high++
		}

		rendered := entry.Tag.String()
		i, ok := tagIndex[rendered]
		if !ok {
			i = len(summary.Tags)
			tagIndex[rendered] = i
			summary.Tags = append(summary.Tags, models.TagSummary{
				Tag:     rendered,
				MainTag: entry.Tag.MainTag,
				SubTag:  entry.Tag.SubTag,
			})
		}
		summary.Tags[i].Minutes += minutes
		summary.Tags[i].Count++

		main := entry.Tag.MainTag
		j, ok := mainIndex[main]
		if !ok {
			j = len(summary.MainTags)
			mainIndex[main] = j
			summary.MainTags = append(summary.MainTags, models.MainTagSummary{MainTag: main})
			subTagSets[main] = make(map[string]struct{})
		}
		summary.MainTags[j].Minutes += minutes
		summary.MainTags[j].Count++
		if entry.Tag.HasSubTag() {
			subTagSets[main][*entry.Tag.SubTag] = struct{}{}
		}
	}

	if summary.EntriesCount == 0 {
		summary.Confidence = confidenceNoData
		summary.Limitations = noDataLimitations
		return summary
	}

	for i := range summary.Tags {
		summary.Tags[i].SubTag = copyString(summary.Tags[i].SubTag)
	}
	for i := range summary.MainTags {
		summary.MainTags[i].SubTags = sortedKeys(subTagSets[summary.MainTags[i].MainTag])
	}
	n := float64(summary.EntriesCount)
	summary.AverageEnergy = float64(energy) / n
	summary.AverageFocus = float64(focus) / n
	summary.Confidence = models.ConfidenceModerate.String()
	if float64(high) > n*highConfidenceShare {
		summary.Confidence = models.ConfidenceHigh.String()
	}
	summary.Limitations = summaryLimitations
	return summary
}

// TagAnalytics aggregates completed entries started within timeframeDays of now by main tag and sub tag
func (a *Analytics) TagAnalytics(now time.Time, timeframeDays int) (models.TagAnalytics, error) {
	if timeframeDays <= 0 {
		return models.TagAnalytics{}, newValidationError("timeframe_days", "must be positive, got %d", timeframeDays)
	}

	a.store.mu.RLock()
	defer a.store.mu.RUnlock()

	cutoff := now.Add(-time.Duration(timeframeDays) * 24 * time.Hour)
	result := models.TagAnalytics{
		TimeframeDays: timeframeDays,
		UserTags:      a.store.sortedTags(),
	}

	groups := newTagGroups()
	for _, entry := range a.store.entries {
		if !entry.IsComplete() || entry.StartTime.Before(cutoff) {
			continue
		}
		minutes, _ := entry.DurationMinutes()
		result.TotalEntries++
		result.TotalTimeMinutes += minutes
		groups.add(entry, minutes)
	}

	if result.TotalEntries == 0 {
		result.Message = noTagDataMessage
		return result, nil
	}

	result.MainTagAnalysis = groups.analysis()
	result.Insights = tagInsights(result.MainTagAnalysis)
	return result, nil
}

// EstimationAccuracy compares recorded estimates with actual durations.
// Fewer than MinEstimationSamples pairs yields an insufficient_data result.
func (a *Analytics) EstimationAccuracy() models.EstimationAccuracy {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()

	history := a.store.estimationHistory
	if len(history) < MinEstimationSamples {
		return models.EstimationAccuracy{
			Accuracy:   models.AccuracyInsufficientData,
			SampleSize: len(history),
			Confidence: models.ConfidenceUncertain.String(),
			Message:    insufficientEstimates,
		}
	}

	var total float64
	for _, pair := range history {
		total += math.Abs(float64(pair.Estimated-pair.Actual)) / float64(pair.Actual) * 100
	}
	avg := total / float64(len(history))
	rounded := math.Round(avg*10) / 10
	level := accuracyLevel(avg)

	return models.EstimationAccuracy{
		Accuracy:            level,
		AccuracyLevel:       level,
		AverageErrorPercent: &rounded,
		SampleSize:          len(history),
		Confidence:          models.ConfidenceModerate.String(),
		Limitations:         estimationLimitations,
	}
}

// UserTags returns every main tag ever used, sorted alphabetically
func (a *Analytics) UserTags() []string {
	return a.store.KnownTags()
}

func accuracyLevel(avgErrorPercent float64) string {
	switch {
	case avgErrorPercent < 20:
		return models.AccuracyGood
	case avgErrorPercent < 40:
		return models.AccuracyModerate
	default:
		return models.AccuracyNeedsImprovement
	}
}

type metricSums struct {
	minutes int
	count   int
	energy  int
	focus   int
}

func (s *metricSums) add(entry *models.TimeEntry, minutes int) {
	s.minutes += minutes
	s.count++
	s.energy += entry.EnergyLevel
	s.focus += entry.FocusQuality
}

func (s *metricSums) metrics() models.TagMetrics {
	m := models.TagMetrics{TotalMinutes: s.minutes, SessionCount: s.count}
	if s.count > 0 {
		n := float64(s.count)
		m.AvgEnergy = float64(s.energy) / n
		m.AvgFocus = float64(s.focus) / n
		m.AvgDuration = float64(s.minutes) / n
	}
	return m
}

type mainTagGroup struct {
	name     string
	sums     metricSums
	subOrder []string
	subs     map[string]*metricSums
}

// tagGroups accumulates per-main-tag and per-sub-tag sums in first-occurrence order
type tagGroups struct {
	order []*mainTagGroup
	index map[string]*mainTagGroup
}

func newTagGroups() *tagGroups {
	return &tagGroups{index: make(map[string]*mainTagGroup)}
}

func (g *tagGroups) add(entry *models.TimeEntry, minutes int) {
	group, ok := g.index[entry.Tag.MainTag]
	if !ok {
		group = &mainTagGroup{name: entry.Tag.MainTag, subs: make(map[string]*metricSums)}
		g.index[group.name] = group
		g.order = append(g.order, group)
	}
	group.sums.add(entry, minutes)

	if !entry.Tag.HasSubTag() {
		return
	}
	sub := *entry.Tag.SubTag
	sums, ok := group.subs[sub]
	if !ok {
		sums = &metricSums{}
		group.subs[sub] = sums
		group.subOrder = append(group.subOrder, sub)
	}
	sums.add(entry, minutes)
}

func (g *tagGroups) analysis() []models.MainTagAnalysis {
	out := make([]models.MainTagAnalysis, 0, len(g.order))
	for _, group := range g.order {
		subs := make([]models.SubTagAnalysis, 0, len(group.subOrder))
		for _, name := range group.subOrder {
			subs = append(subs, models.SubTagAnalysis{SubTag: name, TagMetrics: group.subs[name].metrics()})
		}
		out = append(out, models.MainTagAnalysis{
			MainTag:    group.name,
			TagMetrics: group.sums.metrics(),
			SubTags:    subs,
		})
	}
	return out
}

// tagInsights derives observations from the grouped analysis.
// Ties for the top spot go to the alphabetically first tag.
func tagInsights(groups []models.MainTagAnalysis) []string {
	if len(groups) == 0 {
		return nil
	}

	top := argmax(groups, func(g models.MainTagAnalysis) float64 { return float64(g.TotalMinutes) })
	insights := []string{fmt.Sprintf("Most time spent on #%s activities", top.MainTag)}

	if energetic := argmax(groups, func(g models.MainTagAnalysis) float64 { return g.AvgEnergy }); energetic.AvgEnergy > insightMetricThreshold {
		insights = append(insights, fmt.Sprintf("#%s activities give you the most energy", energetic.MainTag))
	}
	if focused := argmax(groups, func(g models.MainTagAnalysis) float64 { return g.AvgFocus }); focused.AvgFocus > insightMetricThreshold {
		insights = append(insights, fmt.Sprintf("You focus best during #%s activities", focused.MainTag))
	}

	switch n := len(groups); {
	case n >= diverseTagCount:
		insights = append(insights, fmt.Sprintf("You're tracking %d different types of activities - good diversity!", n))
	case n <= narrowTagCount:
		insights = append(insights, "Consider using more specific tags to better understand your patterns")
	}
	return insights
}

func argmax(groups []models.MainTagAnalysis, metric func(models.MainTagAnalysis) float64) models.MainTagAnalysis {
	best := groups[0]
	for _, g := range groups[1:] {
		v, bv := metric(g), metric(best)
		if v > bv || (v == bv && g.MainTag < best.MainTag) {
			best = g
		}
	}
	return best
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
