package coastal

import (
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ngmaloney/dive-relay/internal/logging"
)

// Slope is one surveyed steep-slope spot
type Slope struct {
	PlaceType string  `json:"se_nm"`
	District  string  `json:"sgg_nm"`
	Spot      string  `json:"spot_nm"`
	Station   string  `json:"sta_nm"`
	Gradient  float64 `json:"gradient"`
	GradeCode string  `json:"grade_cd"`
}

// SlopeRepo holds the slope CSV (SE_NM, SGG_NM, SPOT_NM, STA_NM, GRDNT_VAL, SLANT_GRD_CD)
type SlopeRepo struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	loaded bool
	rows   []Slope
}

// NewSlopeRepo creates a repository for the CSV at path
func NewSlopeRepo(path string, logger *zap.Logger) *SlopeRepo {
	return &SlopeRepo{
		path:   path,
		logger: logging.OrNop(logger).Named("slopes"),
	}
}

func (r *SlopeRepo) Path() string { return r.path }

// EnsureLoaded reads the CSV on first use
func (r *SlopeRepo) EnsureLoaded() error {
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
func (r *SlopeRepo) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.rows = nil
	return r.loadLocked()
}

func (r *SlopeRepo) loadLocked() error {
	t, err := readTable(r.path, r.logger)
	if err != nil {
		r.logger.Error("CSV load failed", zap.String("path", r.path), zap.Error(err))
		return err
	}

	var (
		iType     = t.index("SE_NM")
		iDistrict = t.index("SGG_NM")
		iSpot     = t.index("SPOT_NM")
		iStation  = t.index("STA_NM")
		iGradient = t.index("GRDNT_VAL", "gradient")
		iGrade    = t.index("SLANT_GRD_CD", "slant_cd")
	)

	rows := make([]Slope, 0, len(t.rows))
	for _, cols := range t.rows {
		gradient, err := strconv.ParseFloat(col(cols, iGradient), 64)
		if err != nil {
			gradient = 0
		}
		rows = append(rows, Slope{
			PlaceType: col(cols, iType),
			District:  col(cols, iDistrict),
			Spot:      col(cols, iSpot),
			Station:   col(cols, iStation),
			Gradient:  gradient,
			GradeCode: col(cols, iGrade),
		})
	}
	r.rows = rows
	r.loaded = true
	r.logger.Info("loaded rows", zap.Int("rows", len(rows)), zap.String("path", r.path))
	return nil
}

// Len returns the number of loaded rows
func (r *SlopeRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// QueryByRegion returns the spots whose district contains region, ignoring case
func (r *SlopeRepo) QueryByRegion(region string) []Slope {
	region = strings.ToLower(strings.TrimSpace(region))
	return r.filter(func(s Slope) bool {
		return region == "" || strings.Contains(strings.ToLower(s.District), region)
	})
}

// QueryByGradient returns the spots at least minGradient degrees steep
func (r *SlopeRepo) QueryByGradient(minGradient float64) []Slope {
	return r.filter(func(s Slope) bool { return s.Gradient >= minGradient })
}

func (r *SlopeRepo) filter(keep func(Slope) bool) []Slope {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Slope{}
	for _, s := range r.rows {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

// Steepest returns the first spot with the largest positive gradient.
// ok is false when no spot has a positive gradient.
func Steepest(slopes []Slope) (Slope, bool) {
	var best Slope
	for _, s := range slopes {
		if s.Gradient > best.Gradient {
			best = s
		}
	}
	return best, best.Gradient > 0
}
