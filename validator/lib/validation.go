package librpki

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

type ValidationStatus int

const (
	VALIDATION_PASSED ValidationStatus = iota
	VALIDATION_WARNING
	VALIDATION_ERROR
)

var (
	ValidationStatusToName = map[ValidationStatus]string{
		VALIDATION_PASSED:  "passed",
		VALIDATION_WARNING: "warning",
		VALIDATION_ERROR:   "error",
	}
)

func (s ValidationStatus) String() string {
	return ValidationStatusToName[s]
}

func (s ValidationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ValidationLocation names the object (or part of an object) checks are
// recorded against, usually its URI.
type ValidationLocation string

func (l ValidationLocation) String() string {
	return string(l)
}

type ValidationCheck struct {
	Status ValidationStatus
	Key    string
	Params []string
}

func (c ValidationCheck) IsOk() bool {
	return c.Status != VALIDATION_ERROR
}

func (c ValidationCheck) String() string {
	if len(c.Params) == 0 {
		return fmt.Sprintf("%v: %v", c.Status, c.Key)
	}
	return fmt.Sprintf("%v: %v %v", c.Status, c.Key, strings.Join(c.Params, ", "))
}

type ValidationMetric struct {
	Name  string
	Value string
	Time  time.Time
}

// ValidationResult accumulates checks per location. Checks are never
// removed; several checks with the same key are all kept and a key fails
// as soon as one of them failed.
//
// A ValidationResult is not safe for concurrent use.
type ValidationResult struct {
	current   ValidationLocation
	stack     []ValidationLocation
	locations []ValidationLocation
	checks    map[ValidationLocation][]ValidationCheck
	metrics   map[ValidationLocation][]ValidationMetric

	// Called for every recorded check.
	Observer func(location ValidationLocation, check ValidationCheck)
}

func NewValidationResult(location ValidationLocation) *ValidationResult {
	return &ValidationResult{
		current: location,
		checks:  make(map[ValidationLocation][]ValidationCheck),
		metrics: make(map[ValidationLocation][]ValidationMetric),
	}
}

func (vr *ValidationResult) CurrentLocation() ValidationLocation {
	return vr.current
}

func (vr *ValidationResult) SetLocation(location ValidationLocation) *ValidationResult {
	vr.current = location
	return vr
}

// PushLocation moves the cursor and returns a function restoring the
// previous location, to be deferred by the caller.
func (vr *ValidationResult) PushLocation(location ValidationLocation) func() {
	vr.stack = append(vr.stack, vr.current)
	vr.current = location
	popped := false
	return func() {
		if !popped {
			popped = true
			vr.PopLocation()
		}
	}
}

func (vr *ValidationResult) PopLocation() *ValidationResult {
	if n := len(vr.stack); n > 0 {
		vr.current = vr.stack[n-1]
		vr.stack = vr.stack[:n-1]
	}
	return vr
}

func isNil(object interface{}) bool {
	if object == nil {
		return true
	}
	v := reflect.ValueOf(object)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func (vr *ValidationResult) add(location ValidationLocation, status ValidationStatus, key string, params []string) {
	if vr.checks == nil {
		vr.checks = make(map[ValidationLocation][]ValidationCheck)
	}
	if _, ok := vr.checks[location]; !ok {
		vr.locations = append(vr.locations, location)
	}
	check := ValidationCheck{Status: status, Key: key, Params: params}
	vr.checks[location] = append(vr.checks[location], check)
	if vr.Observer != nil {
		vr.Observer(location, check)
	}
}

func (vr *ValidationResult) Pass(key string, params ...string) *ValidationResult {
	vr.add(vr.current, VALIDATION_PASSED, key, params)
	return vr
}

func (vr *ValidationResult) Warn(key string, params ...string) *ValidationResult {
	vr.add(vr.current, VALIDATION_WARNING, key, params)
	return vr
}

func (vr *ValidationResult) Error(key string, params ...string) *ValidationResult {
	vr.add(vr.current, VALIDATION_ERROR, key, params)
	return vr
}

func (vr *ValidationResult) RejectForLocation(location ValidationLocation, key string, params ...string) *ValidationResult {
	vr.add(location, VALIDATION_ERROR, key, params)
	return vr
}

func (vr *ValidationResult) WarnForLocation(location ValidationLocation, key string, params ...string) *ValidationResult {
	vr.add(location, VALIDATION_WARNING, key, params)
	return vr
}

// RejectIfFalse records an error unless condition holds and returns condition.
func (vr *ValidationResult) RejectIfFalse(condition bool, key string, params ...string) bool {
	if condition {
		vr.Pass(key, params...)
	} else {
		vr.Error(key, params...)
	}
	return condition
}

func (vr *ValidationResult) RejectIfTrue(condition bool, key string, params ...string) bool {
	return !vr.RejectIfFalse(!condition, key, params...)
}

func (vr *ValidationResult) RejectIfNil(object interface{}, key string, params ...string) bool {
	return !vr.RejectIfFalse(!isNil(object), key, params...)
}

// WarnIfFalse records a warning unless condition holds and returns condition.
func (vr *ValidationResult) WarnIfFalse(condition bool, key string, params ...string) bool {
	if condition {
		vr.Pass(key, params...)
	} else {
		vr.Warn(key, params...)
	}
	return condition
}

func (vr *ValidationResult) WarnIfTrue(condition bool, key string, params ...string) bool {
	return !vr.WarnIfFalse(!condition, key, params...)
}

func (vr *ValidationResult) AddMetric(name, value string, at time.Time) *ValidationResult {
	if vr.metrics == nil {
		vr.metrics = make(map[ValidationLocation][]ValidationMetric)
	}
	vr.metrics[vr.current] = append(vr.metrics[vr.current], ValidationMetric{Name: name, Value: value, Time: at})
	return vr
}

func (vr *ValidationResult) Metrics(location ValidationLocation) []ValidationMetric {
	return vr.metrics[location]
}

// Locations returns the locations with checks, in the order they were first seen.
func (vr *ValidationResult) Locations() []ValidationLocation {
	locations := make([]ValidationLocation, len(vr.locations))
	copy(locations, vr.locations)
	return locations
}

func (vr *ValidationResult) filter(location ValidationLocation, status ValidationStatus) []ValidationCheck {
	checks := make([]ValidationCheck, 0)
	for _, check := range vr.checks[location] {
		if check.Status == status {
			checks = append(checks, check)
		}
	}
	return checks
}

func (vr *ValidationResult) HasFailures() bool {
	for _, location := range vr.locations {
		if vr.HasFailureForLocation(location) {
			return true
		}
	}
	return false
}

func (vr *ValidationResult) HasWarnings() bool {
	for _, location := range vr.locations {
		if len(vr.filter(location, VALIDATION_WARNING)) > 0 {
			return true
		}
	}
	return false
}

func (vr *ValidationResult) HasFailureForLocation(location ValidationLocation) bool {
	for _, check := range vr.checks[location] {
		if check.Status == VALIDATION_ERROR {
			return true
		}
	}
	return false
}

func (vr *ValidationResult) HasFailureForCurrentLocation() bool {
	return vr.HasFailureForLocation(vr.current)
}

// FailuresForLocation returns the failed checks of a location in recording order.
func (vr *ValidationResult) FailuresForLocation(location ValidationLocation) []ValidationCheck {
	return vr.filter(location, VALIDATION_ERROR)
}

func (vr *ValidationResult) FailuresForCurrentLocation() []ValidationCheck {
	return vr.FailuresForLocation(vr.current)
}

func (vr *ValidationResult) FailuresForAllLocations() []ValidationCheck {
	checks := make([]ValidationCheck, 0)
	for _, location := range vr.locations {
		checks = append(checks, vr.FailuresForLocation(location)...)
	}
	return checks
}

func (vr *ValidationResult) WarningsForLocation(location ValidationLocation) []ValidationCheck {
	return vr.filter(location, VALIDATION_WARNING)
}

func (vr *ValidationResult) AllChecksForLocation(location ValidationLocation) []ValidationCheck {
	checks := make([]ValidationCheck, len(vr.checks[location]))
	copy(checks, vr.checks[location])
	return checks
}

func (vr *ValidationResult) AllChecksForCurrentLocation() []ValidationCheck {
	return vr.AllChecksForLocation(vr.current)
}

// Result returns the outcome of a key at a location: a failure if any
// check with the key failed, otherwise a warning, otherwise a pass.
func (vr *ValidationResult) Result(location ValidationLocation, key string) (ValidationCheck, bool) {
	for _, status := range []ValidationStatus{VALIDATION_ERROR, VALIDATION_WARNING, VALIDATION_PASSED} {
		for _, check := range vr.filter(location, status) {
			if check.Key == key {
				return check, true
			}
		}
	}
	return ValidationCheck{}, false
}

func (vr *ValidationResult) ResultForCurrentLocation(key string) (ValidationCheck, bool) {
	return vr.Result(vr.current, key)
}

// AddAll appends every check and metric of other.
func (vr *ValidationResult) AddAll(other *ValidationResult) *ValidationResult {
	for _, location := range other.locations {
		for _, check := range other.checks[location] {
			vr.add(location, check.Status, check.Key, check.Params)
		}
	}
	for location, metrics := range other.metrics {
		if vr.metrics == nil {
			vr.metrics = make(map[ValidationLocation][]ValidationMetric)
		}
		vr.metrics[location] = append(vr.metrics[location], metrics...)
	}
	return vr
}

// FailureKeys returns the distinct keys that failed, sorted.
func (vr *ValidationResult) FailureKeys() []string {
	seen := make(map[string]bool)
	keys := make([]string, 0)
	for _, check := range vr.FailuresForAllLocations() {
		if !seen[check.Key] {
			seen[check.Key] = true
			keys = append(keys, check.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

func (vr *ValidationResult) String() string {
	var sb strings.Builder
	for _, location := range vr.locations {
		fmt.Fprintf(&sb, "%v:\n", location)
		for _, check := range vr.checks[location] {
			fmt.Fprintf(&sb, "  %v\n", check)
		}
	}
	return sb.String()
}
