package apm

import (
	"time"

	"github.com/GriffinCanCode/apmcore/internal/model"
)

// maxDroppedSpanStats caps the number of distinct keys per transaction
const maxDroppedSpanStats = 128

type droppedKey struct {
	targetType string
	resource   string
	outcome    Outcome
}

type droppedValue struct {
	count int
	sum   time.Duration
}

// droppedStats aggregates spans that were timed but never sent. Insertion
// order is kept so payloads are stable.
type droppedStats struct {
	order  []droppedKey
	values map[droppedKey]*droppedValue
}

// add records count dropped spans taking sum in total; new keys beyond the
// cap are ignored
func (d *droppedStats) add(spanType, subtype, resource string, outcome Outcome, count int, sum time.Duration) {
	targetType := subtype
	if targetType == "" {
		targetType = spanType
	}
	key := droppedKey{targetType: targetType, resource: resource, outcome: outcome}

	if d.values == nil {
		d.values = make(map[droppedKey]*droppedValue)
	}
	v, ok := d.values[key]
	if !ok {
		if len(d.order) >= maxDroppedSpanStats {
			return
		}
		v = &droppedValue{}
		d.values[key] = v
		d.order = append(d.order, key)
	}
	v.count += count
	v.sum += sum
}

func (d *droppedStats) len() int { return len(d.order) }

func (d *droppedStats) payload() []model.DroppedSpanStats {
	if len(d.order) == 0 {
		return nil
	}
	out := make([]model.DroppedSpanStats, 0, len(d.order))
	for _, key := range d.order {
		v := d.values[key]
		stat := model.DroppedSpanStats{
			DestinationServiceResource: key.resource,
			ServiceTargetType:          key.targetType,
			Outcome:                    string(key.outcome),
		}
		stat.Duration.Count = v.count
		stat.Duration.Sum.US = v.sum.Microseconds()
		out = append(out, stat)
	}
	return out
}
