package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Float is a float64 that survives JSON round-trips when non-finite.
// encoding/json rejects NaN and Inf outright, but degenerate statistics are
// a first-class outcome here and must persist as-is.
type Float float64

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	default:
		return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
	}
}

func (f *Float) UnmarshalJSON(data []byte) error {
	s := string(data)
	if strings.HasPrefix(s, `"`) {
		switch strings.Trim(s, `"`) {
		case "NaN":
			*f = Float(math.NaN())
			return nil
		case "+Inf", "Inf":
			*f = Float(math.Inf(1))
			return nil
		case "-Inf":
			*f = Float(math.Inf(-1))
			return nil
		default:
			return fmt.Errorf("invalid float literal: %s", s)
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = Float(v)
	return nil
}
