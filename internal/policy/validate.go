package policy

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"

	"hostwatch/internal/alerts"
)

// FieldError describes one rejected field. It matches alerts.ErrInvalidPolicy.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return alerts.ErrInvalidPolicy }

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			f := fl.Field()
			if f.Kind() != reflect.Float64 && f.Kind() != reflect.Float32 {
				return true
			}
			x := f.Float()
			return !math.IsNaN(x) && !math.IsInf(x, 0)
		})
		v.RegisterStructValidation(reminderRule, alerts.Policy{})
		validate = v
	})
	return validate
}

// reminderRule requires a positive interval once reminders are enabled.
func reminderRule(sl validator.StructLevel) {
	p := sl.Current().Interface().(alerts.Policy)
	if p.ReminderEnabled && !(p.ReminderInterval > 0) {
		sl.ReportError(p.ReminderInterval, "reminder_interval", "ReminderInterval", "reminder_positive", "")
	}
}

// Validate checks every channel of set independently and returns the set with
// disk entries for mounts outside available removed. A nil available list
// disables pruning. All failures are reported together; the returned error
// matches alerts.ErrInvalidPolicy.
func Validate(set Set, available []string) (Set, error) {
	out := set.Clone()
	if available != nil && out.Disk != nil {
		keep := make(map[string]struct{}, len(available))
		for _, m := range available {
			keep[m] = struct{}{}
		}
		for m := range out.Disk {
			if _, ok := keep[m]; !ok {
				delete(out.Disk, m)
			}
		}
	}

	err := validatorInstance().Struct(out)
	if err == nil {
		return out, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return set, fmt.Errorf("%w: %v", alerts.ErrInvalidPolicy, err)
	}

	var result *multierror.Error
	for _, fe := range verrs {
		result = multierror.Append(result, &FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return set, result.ErrorOrNil()
}

// FieldErrors extracts the per-field failures from a Validate error.
func FieldErrors(err error) []*FieldError {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		var fe *FieldError
		if errors.As(err, &fe) {
			return []*FieldError{fe}
		}
		return nil
	}
	out := make([]*FieldError, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		var fe *FieldError
		if errors.As(e, &fe) {
			out = append(out, fe)
		}
	}
	return out
}

// fieldPath drops the root struct name and the embedded policy, so
// "Set.network_connection.Policy.reminder_interval" becomes
// "network_connection.reminder_interval".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.Replace(ns, ".Policy.", ".", 1)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "finite":
		return "must be a finite number"
	case "gte":
		return "must be >= " + fe.Param()
	case "gt":
		return "must be > " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "required":
		return "is required"
	case "hostname|ip":
		return "must be a hostname or IP address"
	case "reminder_positive":
		return "must be > 0 when reminders are enabled"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
