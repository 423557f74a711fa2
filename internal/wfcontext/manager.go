// Package wfcontext creates, snapshots and restores workflow contexts.
// Nothing in here performs I/O.
package wfcontext

import (
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/flux/pkg/api"
)

// Create returns a fresh pending context with stepCount pending slots.
func Create(name string, input any, stepCount int) *api.WorkflowContext {
	history := make([]api.StepExecution, stepCount)
	for i := range history {
		history[i].Status = api.StepPending
	}
	return &api.WorkflowContext{
		ID:          uuid.New().String(),
		Name:        name,
		Input:       input,
		Data:        make(map[string]any),
		Status:      api.StatusPending,
		CurrentStep: 0,
		History:     history,
		CreatedAt:   time.Now().UTC(),
	}
}

// Restore rebuilds a live context from a snapshot. Data and History are
// deep-copied with Clone, so maps and slices in them are never shared with
// the stored state. Structs and pointers inside Data are copied by value
// only; anything they reference stays shared.
func Restore(state *api.WorkflowState) *api.WorkflowContext {
	data, _ := Clone(state.Data).(map[string]any)
	if data == nil {
		data = make(map[string]any)
	}
	return &api.WorkflowContext{
		ID:          state.ID,
		Name:        state.Name,
		Input:       state.Input,
		Data:        data,
		Status:      state.Status,
		CurrentStep: state.CurrentStep,
		History:     cloneHistory(state.History),
		CreatedAt:   state.CreatedAt,
	}
}

// ToState snapshots wc with a fresh UpdatedAt.
func ToState(wc *api.WorkflowContext) *api.WorkflowState {
	data, _ := Clone(wc.Data).(map[string]any)
	return &api.WorkflowState{
		ID:          wc.ID,
		Name:        wc.Name,
		Input:       wc.Input,
		Data:        data,
		Status:      wc.Status,
		CurrentStep: wc.CurrentStep,
		History:     cloneHistory(wc.History),
		CreatedAt:   wc.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}
}

// AdvanceStep moves CurrentStep forward to i. It never moves backwards.
func AdvanceStep(wc *api.WorkflowContext, i int) {
	if i > wc.CurrentStep {
		wc.CurrentStep = i
	}
}

// SetStepName names slot i.
func SetStepName(wc *api.WorkflowContext, i int, name string) {
	if i >= 0 && i < len(wc.History) {
		wc.History[i].Name = name
	}
}

// UpdateStatus sets the workflow status on the context.
func UpdateStatus(wc *api.WorkflowContext, status api.Status) {
	wc.Status = status
}

// ResetFrom returns slots i..n-1 to pending, keeping their names, and
// rewinds CurrentStep to i. Used when re-entering the step loop.
func ResetFrom(wc *api.WorkflowContext, i int) {
	for j := i; j < len(wc.History); j++ {
		wc.History[j] = api.StepExecution{
			Name:   wc.History[j].Name,
			Status: api.StepPending,
		}
	}
	wc.CurrentStep = i
}

// Clone deep-copies maps and slices, recursing into their elements. Other
// values (scalars, structs, pointers) are returned as-is.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Clone(val)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Clone(val)
		}
		return out
	case []map[string]any:
		if t == nil {
			return t
		}
		out := make([]map[string]any, len(t))
		for i, val := range t {
			out[i], _ = Clone(val).(map[string]any)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case []int:
		return append([]int(nil), t...)
	case []float64:
		return append([]float64(nil), t...)
	case nil:
		return nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return cloneValue(rv).Interface()
	default:
		return v
	}
}

// cloneValue is the reflective fallback of Clone for map and slice types
// without a fast path, such as map[string]int or []Order.
func cloneValue(rv reflect.Value) reflect.Value {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), cloneElem(iter.Value(), rv.Type().Elem()))
		}
		return out
	case reflect.Slice:
		if rv.IsNil() {
			return rv
		}
		out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out.Index(i).Set(cloneElem(rv.Index(i), rv.Type().Elem()))
		}
		return out
	default:
		return rv
	}
}

// cloneElem clones a map value or slice element and converts it back to
// the container's element type.
func cloneElem(v reflect.Value, typ reflect.Type) reflect.Value {
	switch v.Kind() {
	case reflect.Map, reflect.Slice:
		return cloneValue(v)
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		c := Clone(v.Interface())
		if c == nil {
			return reflect.Zero(typ)
		}
		return reflect.ValueOf(c)
	default:
		return v
	}
}

func cloneHistory(h []api.StepExecution) []api.StepExecution {
	if h == nil {
		return nil
	}
	out := make([]api.StepExecution, len(h))
	for i, se := range h {
		out[i] = se
		out[i].StartedAt = cloneTime(se.StartedAt)
		out[i].CompletedAt = cloneTime(se.CompletedAt)
		out[i].Output = Clone(se.Output)
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// CloneState deep-copies a snapshot.
func CloneState(s *api.WorkflowState) *api.WorkflowState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Data, _ = Clone(s.Data).(map[string]any)
	cp.History = cloneHistory(s.History)
	cp.CompletedAt = cloneTime(s.CompletedAt)
	return &cp
}
