package replay

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/Manu343726/lltrace/pkg/ir"
	"github.com/Manu343726/lltrace/pkg/utils"
)

var ErrInvalidValue = errors.New("invalid value")

// Truncates an integer to the given width, zero extending it back to 64 bits
func zeroExtend(value int64, width int) int64 {
	if width <= 0 || width >= 64 {
		return value
	}
	return int64(uint64(value) & (uint64(1)<<width - 1))
}

func toInt(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		if n, err := strconv.ParseInt(v, 0, 64); err == nil {
			return n, nil
		}
		n, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return 0, utils.MakeError(ErrInvalidValue, "'%v' is not an integer", v)
		}
		return int64(n), nil
	}
	return 0, utils.MakeError(ErrInvalidValue, "'%v' is not an integer", value)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, utils.MakeError(ErrInvalidValue, "'%v' is not a number", v)
		}
		return f, nil
	}
	return 0, utils.MakeError(ErrInvalidValue, "'%v' is not a number", value)
}

// Vectors are written either as a hex string of their bytes in memory or as a
// list of bytes
func toBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		data, err := hex.DecodeString(strings.TrimPrefix(v, "0x"))
		if err != nil {
			return nil, utils.MakeError(ErrInvalidValue, "'%v': %w", v, err)
		}
		return data, nil
	case []any:
		data := make([]byte, len(v))
		for i, item := range v {
			n, err := toInt(item)
			if err != nil {
				return nil, err
			}
			data[i] = byte(n)
		}
		return data, nil
	}
	return nil, utils.MakeError(ErrInvalidValue, "'%v' is not a vector", value)
}

// Returns the bytes in memory of a constant vector
func constantBytes(c *ir.Constant) []byte {
	if c.Kind != ir.ConstantKind_Vector || !c.ConstType.IsVector() {
		return nil
	}

	bits, err := ir.SizeInBits(c.ConstType.Elem)
	if err != nil {
		return nil
	}
	size := (bits + 7) / 8

	data := make([]byte, 0, size*len(c.Elements))
	for _, elem := range c.Elements {
		var word [8]byte
		switch {
		case elem.Kind == ir.ConstantKind_Float && size == 4:
			binary.LittleEndian.PutUint32(word[:], math.Float32bits(float32(elem.Float)))
		case elem.Kind == ir.ConstantKind_Float:
			binary.LittleEndian.PutUint64(word[:], math.Float64bits(elem.Float))
		default:
			binary.LittleEndian.PutUint64(word[:], uint64(elem.Int))
		}
		data = append(data, word[:min(size, 8)]...)
	}

	return data
}
