package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// StrategySummary aggregates every record of one strategy.
type StrategySummary struct {
	Mode        domain.ExecutionMode `json:"mode"`
	StrategyID  string               `json:"strategyId"`
	Attempts    int                  `json:"attempts"`
	Success     int                  `json:"success"`
	Failed      int                  `json:"failed"`
	Cancelled   int                  `json:"cancelled"`
	Rollbacks   int                  `json:"rollbacks"`
	Unhedged    int                  `json:"unhedged"`
	TotalQty    float64              `json:"totalQty"`
	TotalAmount float64              `json:"totalAmount"`
	LastTs      time.Time            `json:"lastTs"`
}

// Summary is the combined cross-strategy summary file.
type Summary struct {
	UpdatedAt  time.Time                   `json:"updatedAt"`
	Strategies map[string]*StrategySummary `json:"strategies"`
}

func summaryKey(r domain.ExecutionRecord) string {
	return string(r.Mode) + ":" + r.StrategyID
}

// add folds one record into the summary. Compensating orders count as
// rollbacks, not attempts.
func (s *Summary) add(r domain.ExecutionRecord) {
	if s.Strategies == nil {
		s.Strategies = make(map[string]*StrategySummary)
	}
	key := summaryKey(r)
	st := s.Strategies[key]
	if st == nil {
		st = &StrategySummary{Mode: r.Mode, StrategyID: r.StrategyID}
		s.Strategies[key] = st
	}
	if r.Ts.After(st.LastTs) {
		st.LastTs = r.Ts
	}
	if r.Unhedged {
		st.Unhedged++
	}
	if r.IsRollback {
		st.Rollbacks++
		return
	}
	st.Attempts++
	switch r.Status {
	case domain.StatusSuccess:
		st.Success++
		st.TotalQty += r.Qty
		st.TotalAmount += r.TotalAmount
	case domain.StatusCancelled:
		st.Cancelled++
	default:
		st.Failed++
	}
}

func (s Summary) clone() Summary {
	out := Summary{UpdatedAt: s.UpdatedAt, Strategies: make(map[string]*StrategySummary, len(s.Strategies))}
	for k, v := range s.Strategies {
		c := *v
		out.Strategies[k] = &c
	}
	return out
}

func (l *Log) summaryPath() string {
	return filepath.Join(l.dir, summaryFile)
}

// loadSummary reads the summary file. A missing file while day files exist is
// reported as an error so the caller rebuilds it.
func (l *Log) loadSummary() (Summary, error) {
	data, err := os.ReadFile(l.summaryPath())
	if errors.Is(err, os.ErrNotExist) {
		files, derr := l.dayFiles()
		if derr != nil {
			return Summary{}, derr
		}
		if len(files) > 0 {
			return Summary{}, fmt.Errorf("summary missing with %d day files present", len(files))
		}
		return Summary{Strategies: map[string]*StrategySummary{}}, nil
	}
	if err != nil {
		return Summary{}, err
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return Summary{}, err
	}
	if s.Strategies == nil {
		s.Strategies = map[string]*StrategySummary{}
	}
	return s, nil
}

func (l *Log) rebuildSummary() (Summary, error) {
	s := Summary{Strategies: map[string]*StrategySummary{}}
	files, err := l.dayFiles()
	if err != nil {
		return s, err
	}
	for _, df := range files {
		lines, err := readLines(df.Path)
		if err != nil {
			return s, err
		}
		for _, line := range lines {
			var r domain.ExecutionRecord
			if json.Unmarshal(line, &r) != nil {
				continue
			}
			s.add(r)
			if r.Ts.After(s.UpdatedAt) {
				s.UpdatedAt = r.Ts
			}
		}
	}
	return s, nil
}

func (l *Log) writeSummary(s Summary) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: marshal summary: %w", err)
	}
	return writeFileAtomic(l.summaryPath(), data)
}
