// Package executors implements the built-in railway capabilities.
//
// Each executor reads its task inputs first and falls back to the outputs
// of upstream tasks, so a plan can pass facts forward through dependencies
// without repeating them in every task.
package executors

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/railmind/internal/notify"
	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/railway"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// Deps are the collaborators shared by the built-in executors.
type Deps struct {
	Schedule railway.ScheduleProvider
	Bookings railway.BookingProvider
	Notifier notify.Notifier
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID defaults to random UUIDs.
	NewID func() string
}

func (d *Deps) defaults() error {
	if d.Schedule == nil || d.Bookings == nil {
		sp, err := railway.Default()
		if err != nil {
			return fmt.Errorf("load default dataset: %w", err)
		}
		if d.Schedule == nil {
			d.Schedule = sp
		}
		if d.Bookings == nil {
			d.Bookings = sp
		}
	}
	if d.Notifier == nil {
		d.Notifier = notify.NewLogNotifier(true)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.New().String() }
	}
	return nil
}

// RegisterDefaults binds all six built-in capabilities on reg.
func RegisterDefaults(reg *orchestrator.ExecutorRegistry, deps Deps) error {
	if err := deps.defaults(); err != nil {
		return err
	}
	reg.Register(models.CapabilityOperations, &Operations{schedule: deps.Schedule, bookings: deps.Bookings})
	reg.Register(models.CapabilityPassenger, &Passenger{schedule: deps.Schedule, bookings: deps.Bookings})
	reg.Register(models.CapabilityCrowd, &Crowd{schedule: deps.Schedule, bookings: deps.Bookings})
	reg.Register(models.CapabilityAlert, &Alert{notifier: deps.Notifier, bookings: deps.Bookings, newID: deps.NewID, now: deps.Now})
	reg.Register(models.CapabilityExtraction, Extraction{})
	reg.Register(models.CapabilityValidation, &Validation{now: deps.Now})
	return nil
}

// lookup returns the first value for key in inputs, then in upstream
// outputs (in dependency order), then in the run context values.
func lookup(key string, inputs map[string]any, rc orchestrator.RunContext) (any, bool) {
	if v, ok := inputs[key]; ok && v != nil {
		return v, true
	}
	for _, id := range rc.UpstreamIDs() {
		if v, ok := rc.Upstream[id][key]; ok && v != nil {
			return v, true
		}
	}
	if v, ok := rc.Values[key]; ok && v != nil {
		return v, true
	}
	return nil, false
}

func lookupString(key string, inputs map[string]any, rc orchestrator.RunContext) string {
	v, ok := lookup(key, inputs, rc)
	if !ok {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func lookupInt(key string, inputs map[string]any, rc orchestrator.RunContext) (int, bool) {
	v, ok := lookup(key, inputs, rc)
	if !ok {
		return 0, false
	}
	n, err := toInt(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		f, err := n.Float64()
		return int(f), err
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("not a number: %T", v)
	}
}

// toStrings accepts []string, []any or a comma-separated string.
func toStrings(v any) []string {
	var out []string
	switch s := v.(type) {
	case []string:
		out = append(out, s...)
	case []any:
		for _, x := range s {
			out = append(out, fmt.Sprint(x))
		}
	case string:
		out = strings.Split(s, ",")
	}
	clean := out[:0]
	for _, x := range out {
		if x = strings.TrimSpace(x); x != "" {
			clean = append(clean, x)
		}
	}
	return clean
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
