package ops

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ajitpratap0/stratus/pkg/errors"
)

// Transform maps one column value to a new value
type Transform func(v interface{}) (interface{}, error)

// TransformFactory builds a transform from its arguments
type TransformFactory func(args map[string]interface{}) (Transform, error)

// Operation names a transform and its arguments, as listed in map options
type Operation struct {
	Name string                 `mapstructure:"name"`
	Args map[string]interface{} `mapstructure:"args"`
}

var (
	transformsMu sync.RWMutex
	transforms   = map[string]TransformFactory{
		"identity":  newIdentity,
		"to_float":  newToFloat,
		"scale":     newScale,
		"normalize": newNormalize,
		"lowercase": newLowercase,
		"one_hot":   newOneHot,
	}
)

// RegisterTransform adds a named transform for map operators
func RegisterTransform(name string, f TransformFactory) error {
	transformsMu.Lock()
	defer transformsMu.Unlock()
	if _, exists := transforms[name]; exists {
		return errors.Newf(errors.ErrorTypeValidation, "transform %s already registered", name)
	}
	transforms[name] = f
	return nil
}

// Transforms lists the registered transform names
func Transforms() []string {
	transformsMu.RLock()
	defer transformsMu.RUnlock()
	out := make([]string, 0, len(transforms))
	for n := range transforms {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// compose builds the chain of operations, applied left to right
func compose(ops []Operation) (Transform, error) {
	chain := make([]Transform, 0, len(ops))
	for _, o := range ops {
		transformsMu.RLock()
		f, ok := transforms[o.Name]
		transformsMu.RUnlock()
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeConfiguration, "unknown transform %q", o.Name)
		}
		t, err := f(o.Args)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfiguration, fmt.Sprintf("invalid arguments for transform %q", o.Name))
		}
		chain = append(chain, t)
	}
	return func(v interface{}) (interface{}, error) {
		var err error
		for _, t := range chain {
			if v, err = t(v); err != nil {
				return nil, err
			}
		}
		return v, nil
	}, nil
}

func newIdentity(map[string]interface{}) (Transform, error) {
	return func(v interface{}) (interface{}, error) { return v, nil }, nil
}

func newToFloat(map[string]interface{}) (Transform, error) {
	return func(v interface{}) (interface{}, error) { return toFloat(v) }, nil
}

func newScale(args map[string]interface{}) (Transform, error) {
	a := struct {
		Factor float64 `mapstructure:"factor"`
		Offset float64 `mapstructure:"offset"`
	}{Factor: 1}
	if err := decodeOptions("scale", args, &a); err != nil {
		return nil, err
	}
	return func(v interface{}) (interface{}, error) {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return f*a.Factor + a.Offset, nil
	}, nil
}

func newNormalize(args map[string]interface{}) (Transform, error) {
	a := struct {
		Mean float64 `mapstructure:"mean"`
		Std  float64 `mapstructure:"std"`
	}{Std: 1}
	if err := decodeOptions("normalize", args, &a); err != nil {
		return nil, err
	}
	if a.Std == 0 {
		return nil, errors.New(errors.ErrorTypeConfiguration, "normalize: std must be non-zero")
	}
	return func(v interface{}) (interface{}, error) {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return (f - a.Mean) / a.Std, nil
	}, nil
}

func newLowercase(map[string]interface{}) (Transform, error) {
	return func(v interface{}) (interface{}, error) {
		s, ok := v.(string)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeData, "lowercase: value %v is %T, not a string", v, v)
		}
		return strings.ToLower(s), nil
	}, nil
}

func newOneHot(args map[string]interface{}) (Transform, error) {
	var a struct {
		NumClasses int `mapstructure:"num_classes"`
	}
	if err := decodeOptions("one_hot", args, &a); err != nil {
		return nil, err
	}
	if a.NumClasses <= 0 {
		return nil, errors.New(errors.ErrorTypeConfiguration, "one_hot: num_classes must be positive")
	}
	return func(v interface{}) (interface{}, error) {
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		class := int(f)
		if float64(class) != f || class < 0 || class >= a.NumClasses {
			return nil, errors.Newf(errors.ErrorTypeData, "one_hot: label %v outside [0, %d)", v, a.NumClasses)
		}
		out := make([]float64, a.NumClasses)
		out[class] = 1
		return out, nil
	}, nil
}

// toFloat converts numeric values and numeric strings to float64
func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errors.Wrap(err, errors.ErrorTypeData, fmt.Sprintf("value %q is not numeric", n))
		}
		return f, nil
	default:
		return 0, errors.Newf(errors.ErrorTypeData, "value %v of type %T is not numeric", v, v)
	}
}
