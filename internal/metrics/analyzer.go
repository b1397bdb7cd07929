package metrics

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"
)

// Analyzer aggregates one JSONL event log into per-source health and a
// cross-source index-gap report.
type Analyzer struct {
	logPath string
}

// NewAnalyzer creates an analyzer over the log at logPath.
func NewAnalyzer(logPath string) *Analyzer {
	return &Analyzer{logPath: logPath}
}

// SourceHealth summarizes one source's build, update, and query activity
// over the analyzed period.
type SourceHealth struct {
	Source            string  `json:"source"`
	Builds            int     `json:"builds"`
	Updates           int     `json:"updates"`
	RecordsIndexed    int     `json:"records_indexed"`
	Queries           int     `json:"queries"`
	ZeroResultCount   int     `json:"zero_result_count"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	AvgQueryLatencyMs int64   `json:"avg_query_latency_ms"`
}

// FieldGap counts how often a query was rejected for reading a field with
// no index, across every source: the field a new index would help most.
type FieldGap struct {
	Field string `json:"field"`
	Count int    `json:"count"`
}

// Summary is Analyze's aggregated report over one lookback period.
type Summary struct {
	Period    string                   `json:"period"`
	Sources   map[string]*SourceHealth `json:"sources"`
	IndexGaps []FieldGap               `json:"index_gaps"`
}

// Analyze scans every build, update, and query event newer than since into
// a per-source SourceHealth, and every query-rejection error into a
// cross-source, frequency-ranked index-gap report.
func (a *Analyzer) Analyze(since time.Duration) (*Summary, error) {
	f, err := os.Open(a.logPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cutoff := time.Now().Add(-since)
	sources := make(map[string]*SourceHealth)
	cacheHits := make(map[string]int)
	latencySum := make(map[string]int64)
	gapCounts := make(map[string]int)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if e.Time.Before(cutoff) {
			continue
		}

		switch e.Kind {
		case EventBuild:
			h := sourceHealth(sources, e.Source)
			h.Builds++
			h.RecordsIndexed += e.RecordsIndexed
		case EventUpdate:
			h := sourceHealth(sources, e.Source)
			h.Updates++
			h.RecordsIndexed += e.Added - e.Deleted
		case EventQuery:
			h := sourceHealth(sources, e.Source)
			h.Queries++
			latencySum[e.Source] += e.LatencyMs
			if e.ResultCount == 0 {
				h.ZeroResultCount++
			}
			if e.CacheHit {
				cacheHits[e.Source]++
			}
		case EventError:
			if e.Operation != "query" {
				continue
			}
			for _, field := range parseIndexGapFields(e.Message) {
				gapCounts[field]++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	for source, h := range sources {
		if h.Queries == 0 {
			continue
		}
		h.AvgQueryLatencyMs = latencySum[source] / int64(h.Queries)
		h.CacheHitRate = float64(cacheHits[source]) / float64(h.Queries)
	}

	gaps := make([]FieldGap, 0, len(gapCounts))
	for field, count := range gapCounts {
		gaps = append(gaps, FieldGap{Field: field, Count: count})
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Count != gaps[j].Count {
			return gaps[i].Count > gaps[j].Count
		}
		return gaps[i].Field < gaps[j].Field
	})

	return &Summary{Period: since.String(), Sources: sources, IndexGaps: gaps}, nil
}

func sourceHealth(sources map[string]*SourceHealth, source string) *SourceHealth {
	h, ok := sources[source]
	if !ok {
		h = &SourceHealth{Source: source}
		sources[source] = h
	}
	return h
}

// parseIndexGapFields extracts field names out of a MissingIndexError's
// fallback-filter message, shaped "needs index: a, b, c". Messages with no
// such substring (an orderBy rejection, or a non-index error entirely)
// yield nothing.
func parseIndexGapFields(message string) []string {
	const marker = "needs index: "
	i := strings.Index(message, marker)
	if i == -1 {
		return nil
	}
	rest := message[i+len(marker):]
	parts := strings.Split(rest, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
