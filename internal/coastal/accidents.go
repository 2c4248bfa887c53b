package coastal

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/logging"
)

// DefaultTopLimit is the number of place types TopByType returns when limit <= 0
const DefaultTopLimit = 5

// Accident is one row of the coastal accident statistics
type Accident struct {
	PlaceName string `json:"place_nm"`
	PlaceType string `json:"place_se_nm"`
	Accidents int    `json:"accidents"`
}

// TypeTotal is the accident sum of one place type
type TypeTotal struct {
	PlaceType string `json:"place_se_nm"`
	Accidents int    `json:"accidents"`
}

// AccidentSummary aggregates a query result
type AccidentSummary struct {
	Total  int         `json:"total"`
	ByType []TypeTotal `json:"by_type"`
}

// AccidentReport is the answer to QueryByRegion
type AccidentReport struct {
	Items   []Accident      `json:"items"`
	Summary AccidentSummary `json:"summary"`
}

// AccidentRepo holds the accident CSV (PLACE_NM, PLACE_SE_NM, ACC_CQT_SUM, Y2017_ACC_CQT_SUM, ...)
type AccidentRepo struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	loaded bool
	rows   []Accident
}

// NewAccidentRepo creates a repository for the CSV at path. Nothing is read until EnsureLoaded.
func NewAccidentRepo(path string, logger *zap.Logger) *AccidentRepo {
	return &AccidentRepo{
		path:   path,
		logger: logging.OrNop(logger).Named("accidents"),
	}
}

// Path returns the CSV location
func (r *AccidentRepo) Path() string { return r.path }

// EnsureLoaded reads the CSV on first use. A failed load is retried on the next call.
func (r *AccidentRepo) EnsureLoaded() error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	return r.loadLocked()
}

// Reload discards the rows and reads the CSV again
func (r *AccidentRepo) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.rows = nil
	return r.loadLocked()
}

func (r *AccidentRepo) loadLocked() error {
	t, err := readTable(r.path, r.logger)
	if err != nil {
		r.logger.Error("CSV load failed", zap.String("path", r.path), zap.Error(err))
		return err
	}

	iName := t.index("PLACE_NM")
	iType := t.index("PLACE_SE_NM")
	iTotal := t.index("ACC_CQT_SUM")
	if iName < 0 || iType < 0 || iTotal < 0 {
		r.logger.Warn("header names not recognized, using default indices 0..2", zap.Strings("header", t.header))
		iName, iType, iTotal = 0, 1, 2
	}

	rows := make([]Accident, 0, len(t.rows))
	for _, cols := range t.rows {
		total, err := strconv.Atoi(col(cols, iTotal))
		if err != nil {
			total = 0
		}
		rows = append(rows, Accident{
			PlaceName: col(cols, iName),
			PlaceType: col(cols, iType),
			Accidents: total,
		})
	}
	r.rows = rows
	r.loaded = true
	r.logger.Info("loaded rows", zap.Int("rows", len(rows)), zap.String("path", r.path))
	return nil
}

// Len returns the number of loaded rows
func (r *AccidentRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// QueryByRegion filters rows whose place name contains region and whose place type equals placeType.
// Both comparisons ignore case; an empty argument matches everything.
func (r *AccidentRepo) QueryByRegion(region, placeType string) AccidentReport {
	region = strings.ToLower(strings.TrimSpace(region))
	placeType = strings.TrimSpace(placeType)

	r.mu.RLock()
	defer r.mu.RUnlock()

	report := AccidentReport{Items: []Accident{}}
	for _, row := range r.rows {
		if region != "" && !strings.Contains(strings.ToLower(row.PlaceName), region) {
			continue
		}
		if placeType != "" && !strings.EqualFold(row.PlaceType, placeType) {
			continue
		}
		report.Items = append(report.Items, row)
		report.Summary.Total += row.Accidents
	}
	report.Summary.ByType = totalsByType(report.Items)
	return report
}

// TopByType returns the place types of a region with the most accidents
func (r *AccidentRepo) TopByType(region string, limit int) []TypeTotal {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	totals := r.QueryByRegion(region, "").Summary.ByType
	if len(totals) > limit {
		totals = totals[:limit]
	}
	return totals
}

// totalsByType sums accidents per place type, largest first. Ties keep first-seen order.
func totalsByType(rows []Accident) []TypeTotal {
	totals := []TypeTotal{}
	pos := map[string]int{}
	for _, row := range rows {
		i, ok := pos[row.PlaceType]
		if !ok {
			i = len(totals)
			pos[row.PlaceType] = i
			totals = append(totals, TypeTotal{PlaceType: row.PlaceType})
		}
		totals[i].Accidents += row.Accidents
	}
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Accidents > totals[j].Accidents
	})
	return totals
}
