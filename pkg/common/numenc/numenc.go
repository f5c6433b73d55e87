// Package numenc normalizes arbitrary-precision numbers held in store records
// to the response's native numeric representation before JSON encoding.
//
// Store backends decode record bodies with json.Number so that numeric
// precision survives the round trip through the store. At the response
// boundary every number is converted to float64 in one adapter pass; a value
// that cannot be converted fails the request instead of being stringified.
package numenc

import (
	"encoding/json"

	"github.com/rosterhub/rostersync/pkg/common/apperr"
)

// Normalize walks v and converts every json.Number to float64. Maps and
// slices are rewritten in place where possible; other values pass through
// untouched.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStore, err, "numeric field %q not representable as float", t.String())
		}
		return f, nil
	case map[string]any:
		for k, val := range t {
			nv, err := Normalize(val)
			if err != nil {
				return nil, err
			}
			t[k] = nv
		}
		return t, nil
	case []any:
		for i, val := range t {
			nv, err := Normalize(val)
			if err != nil {
				return nil, err
			}
			t[i] = nv
		}
		return t, nil
	case []map[string]any:
		for _, m := range t {
			if _, err := Normalize(m); err != nil {
				return nil, err
			}
		}
		return t, nil
	default:
		return v, nil
	}
}

// NormalizeRecords applies Normalize to a slice of record maps.
func NormalizeRecords(recs []map[string]any) ([]map[string]any, error) {
	for _, r := range recs {
		if _, err := Normalize(r); err != nil {
			return nil, err
		}
	}
	return recs, nil
}
