package engine

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rawblock/discovery-engine/pkg/model"
)

// priorFileEntry mirrors one value of the prior-file JSON map.
type priorFileEntry struct {
	Multiplier  float64               `json:"multiplier"`
	Confidence  model.PriorConfidence `json:"confidence"`
	Seasonality model.Seasonality     `json:"seasonality"`
	Recurrence  model.Recurrence      `json:"recurrence"`
	Momentum30d int                   `json:"momentum_30d"`
	SampleSize  int                   `json:"sample_size"`
}

// TemporalPriorService answers per-(entity, category) multiplier lookups
// in O(1) from an in-memory map loaded once at startup. State is scoped
// to the service instance, never a package global.
type TemporalPriorService struct {
	once  sync.Once
	mu    sync.RWMutex
	table map[string]priorFileEntry
}

// NewTemporalPriorService constructs an empty, unloaded service. Load must
// be called once before Lookup is used in production; an unloaded service
// behaves exactly like a missing prior file (global_default).
func NewTemporalPriorService() *TemporalPriorService {
	return &TemporalPriorService{table: make(map[string]priorFileEntry)}
}

// Load reads the JSON prior file at path. A missing file is not fatal: it
// logs a warning and leaves the service answering global defaults.
func (t *TemporalPriorService) Load(path string) {
	t.once.Do(func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[TemporalPrior] Warning: could not read prior file %q: %v; serving global defaults", path, err)
			return
		}
		var parsed map[string]priorFileEntry
		if err := json.Unmarshal(raw, &parsed); err != nil {
			log.Printf("[TemporalPrior] Warning: could not parse prior file %q: %v; serving global defaults", path, err)
			return
		}
		t.mu.Lock()
		t.table = parsed
		t.mu.Unlock()
		log.Printf("[TemporalPrior] Loaded %d prior entries from %s", len(parsed), path)
	})
}

func priorKey(entityID string, category model.SignalCategory) string {
	return fmt.Sprintf("%s:%s", entityID, category)
}

// Lookup answers the runtime multiplier query, backing off exact →
// entity-wide → global-category → global-default, never touching a
// database on the hot path.
func (t *TemporalPriorService) Lookup(entityID string, category model.SignalCategory) model.PriorLookup {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if e, ok := t.table[priorKey(entityID, category)]; ok {
		return clampedLookup(e, model.BackoffExact)
	}
	if e, ok := t.table[priorKey(entityID, "*")]; ok {
		return clampedLookup(e, model.BackoffEntityWide)
	}
	if e, ok := t.table[priorKey("*", category)]; ok {
		return clampedLookup(e, model.BackoffGlobalCategory)
	}
	return model.PriorLookup{
		Multiplier:  model.GlobalDefaultMultiplier,
		Confidence:  model.PriorLow,
		BackoffUsed: model.BackoffGlobalDefault,
	}
}

func clampedLookup(e priorFileEntry, level model.BackoffLevel) model.PriorLookup {
	return model.PriorLookup{
		Multiplier:  model.Clamp(e.Multiplier, model.TemporalMultiplierMin, model.TemporalMultiplierMax),
		Confidence:  e.Confidence,
		BackoffUsed: level,
	}
}

// ComputeNightly recomputes the prior for one (entity, category) grouping
// from its episode history: quarter-of-year seasonality, inter-episode
// recurrence statistics, 30-day momentum, and the resulting bounded
// multiplier. It does not touch the live lookup table — callers persist
// the result and reload via Load on the next cycle, keeping the runtime
// path free of database access.
func ComputeNightly(episodes []model.TemporalEpisode, now time.Time) model.TemporalPrior {
	sampleSize := len(episodes)

	var quarterCounts [4]int
	momentum30d := 0
	times := make([]time.Time, 0, sampleSize)
	for _, ep := range episodes {
		quarterCounts[(int(ep.OccurredAt.Month())-1)/3]++
		if now.Sub(ep.OccurredAt) <= 30*24*time.Hour && !ep.OccurredAt.After(now) {
			momentum30d++
		}
		times = append(times, ep.OccurredAt)
	}

	var seasonality model.Seasonality
	thisQuarterShare := 0.25
	if sampleSize > 0 {
		n := float64(sampleSize)
		seasonality = model.Seasonality{
			Q1: float64(quarterCounts[0]) / n,
			Q2: float64(quarterCounts[1]) / n,
			Q3: float64(quarterCounts[2]) / n,
			Q4: float64(quarterCounts[3]) / n,
		}
		thisQuarterShare = float64(quarterCounts[(int(now.Month())-1)/3]) / n
	}

	seasonFactor := 1 + 0.10*(thisQuarterShare-0.25)
	momentumCapped := momentum30d
	if momentumCapped > 2 {
		momentumCapped = 2
	}
	momentumFactor := 1 + 0.10*float64(momentumCapped)

	multiplier := model.Clamp(1.0*seasonFactor*momentumFactor, model.TemporalMultiplierMin, model.TemporalMultiplierMax)

	var confidence model.PriorConfidence
	switch {
	case sampleSize >= 5:
		confidence = model.PriorHigh
	case sampleSize >= 3:
		confidence = model.PriorMedium
	default:
		confidence = model.PriorLow
	}

	return model.TemporalPrior{
		Seasonality: seasonality,
		Recurrence:  computeRecurrence(times),
		Momentum30d: momentum30d,
		Multiplier:  multiplier,
		Confidence:  confidence,
		SampleSize:  sampleSize,
	}
}

// computeRecurrence summarizes inter-episode intervals in days, mean and
// population standard deviation.
func computeRecurrence(times []time.Time) model.Recurrence {
	if len(times) < 2 {
		return model.Recurrence{}
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Hours()/24)
	}

	mean := 0.0
	for _, d := range intervals {
		mean += d
	}
	mean /= float64(len(intervals))

	variance := 0.0
	for _, d := range intervals {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(intervals))

	return model.Recurrence{MeanIntervalDays: mean, StdevDays: math.Sqrt(variance)}
}

// BuildPriorTable runs the nightly computation over every
// (entity, category) grouping and adds three aggregate levels:
// entity-wide, global-per-category, and global ("*:*"). Lookup backs off
// through the first two; its final level is the fixed
// GlobalDefaultMultiplier, not the "*:*" entry. Keys follow the
// prior-file "entity:category" convention.
func BuildPriorTable(byEntityCategory map[string][]model.TemporalEpisode, now time.Time) map[string]model.TemporalPrior {
	out := make(map[string]model.TemporalPrior, len(byEntityCategory))
	byEntity := make(map[string][]model.TemporalEpisode)
	byCategory := make(map[string][]model.TemporalEpisode)
	var all []model.TemporalEpisode

	for key, episodes := range byEntityCategory {
		if len(episodes) < 2 {
			continue
		}
		out[key] = ComputeNightly(episodes, now)
		for _, ep := range episodes {
			byEntity[ep.EntityID] = append(byEntity[ep.EntityID], ep)
			byCategory[string(ep.SignalCategory)] = append(byCategory[string(ep.SignalCategory)], ep)
			all = append(all, ep)
		}
	}
	for entityID, episodes := range byEntity {
		out[entityID+":*"] = ComputeNightly(episodes, now)
	}
	for category, episodes := range byCategory {
		out["*:"+category] = ComputeNightly(episodes, now)
	}
	if len(all) > 0 {
		out["*:*"] = ComputeNightly(all, now)
	}
	return out
}
