package refstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// The codec wraps every value in a type tag so that distinct Go types survive
// the round trip: a plain JSON encoding would collapse int64, float64, big.Int
// and decimal.Decimal into one number type and drop time zones.
type tagged struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v,omitempty"`
}

func encodeRow(values map[string]interface{}) ([]byte, error) {
	out := make(map[string]tagged, len(values))
	for col, val := range values {
		tv, err := encodeValue(val)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		out[col] = tv
	}
	return json.Marshal(out)
}

func decodeRow(data []byte) (map[string]interface{}, error) {
	var raw map[string]tagged
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(raw))
	for col, tv := range raw {
		val, err := decodeValue(tv)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", col, err)
		}
		out[col] = val
	}
	return out, nil
}

func encodeValue(val interface{}) (tagged, error) {
	switch v := val.(type) {
	case nil:
		return tagged{T: "null"}, nil
	case bool:
		return rawTag("bool", v)
	case int:
		return rawTag("int", strconv.FormatInt(int64(v), 10))
	case int8:
		return rawTag("int", strconv.FormatInt(int64(v), 10))
	case int16:
		return rawTag("int", strconv.FormatInt(int64(v), 10))
	case int32:
		return rawTag("int", strconv.FormatInt(int64(v), 10))
	case int64:
		return rawTag("int", strconv.FormatInt(v, 10))
	case uint:
		return rawTag("uint", strconv.FormatUint(uint64(v), 10))
	case uint8:
		return rawTag("uint", strconv.FormatUint(uint64(v), 10))
	case uint16:
		return rawTag("uint", strconv.FormatUint(uint64(v), 10))
	case uint32:
		return rawTag("uint", strconv.FormatUint(uint64(v), 10))
	case uint64:
		return rawTag("uint", strconv.FormatUint(v, 10))
	case float32:
		return rawTag("float", strconv.FormatFloat(float64(v), 'g', -1, 64))
	case float64:
		// shortest representation that parses back to the same float64
		return rawTag("float", strconv.FormatFloat(v, 'g', -1, 64))
	case string:
		return rawTag("str", v)
	case []byte:
		return rawTag("bytes", base64.StdEncoding.EncodeToString(v))
	case time.Time:
		return rawTag("time", v.Format(time.RFC3339Nano))
	case *big.Int:
		return rawTag("bigint", v.String())
	case decimal.Decimal:
		return rawTag("dec", v.String())
	case []interface{}:
		items := make([]tagged, len(v))
		for i, item := range v {
			tv, err := encodeValue(item)
			if err != nil {
				return tagged{}, err
			}
			items[i] = tv
		}
		return rawTag("list", items)
	case map[string]interface{}:
		fields := make(map[string]tagged, len(v))
		for k, item := range v {
			tv, err := encodeValue(item)
			if err != nil {
				return tagged{}, err
			}
			fields[k] = tv
		}
		return rawTag("map", fields)
	default:
		return tagged{}, fmt.Errorf("unsupported value type %T", val)
	}
}

func rawTag(t string, v interface{}) (tagged, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return tagged{}, err
	}
	return tagged{T: t, V: raw}, nil
}

func decodeValue(tv tagged) (interface{}, error) {
	switch tv.T {
	case "null":
		return nil, nil
	case "bool":
		var v bool
		return v, json.Unmarshal(tv.V, &v)
	case "int":
		s, err := rawString(tv.V)
		if err != nil {
			return nil, err
		}
		return strconv.ParseInt(s, 10, 64)
	case "uint":
		s, err := rawString(tv.V)
		if err != nil {
			return nil, err
		}
		return strconv.ParseUint(s, 10, 64)
	case "float":
		s, err := rawString(tv.V)
		if err != nil {
			return nil, err
		}
		return strconv.ParseFloat(s, 64)
	case "str":
		return rawString(tv.V)
	case "bytes":
		s, err := rawString(tv.V)
		if err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(s)
	case "time":
		s, err := rawString(tv.V)
		if err != nil {
			return nil, err
		}
		return time.Parse(time.RFC3339Nano, s)
	case "bigint":
		s, err := rawString(tv.V)
		if err != nil {
			return nil, err
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("malformed big integer %q", s)
		}
		return n, nil
	case "dec":
		s, err := rawString(tv.V)
		if err != nil {
			return nil, err
		}
		return decimal.NewFromString(s)
	case "list":
		var items []tagged
		if err := json.Unmarshal(tv.V, &items); err != nil {
			return nil, err
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case "map":
		var fields map[string]tagged
		if err := json.Unmarshal(tv.V, &fields); err != nil {
			return nil, err
		}
		out := make(map[string]interface{}, len(fields))
		for k, item := range fields {
			v, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value tag %q", tv.T)
	}
}

func rawString(raw json.RawMessage) (string, error) {
	var s string
	err := json.Unmarshal(raw, &s)
	return s, err
}
