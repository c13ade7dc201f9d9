package snmp

import (
	"fmt"
	"math"
	"strings"

	"github.com/gosnmp/gosnmp"

	"routerwatch/internal/metric"
)

// Value is one varbind returned by a device. Accessors report false when the
// varbind carries no usable number, so a missing metric is never read as zero.
type Value struct {
	Type gosnmp.Asn1BER
	Raw  any
}

func (v Value) Present() bool {
	switch v.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null, gosnmp.UnknownType:
		return false
	default:
		return v.Raw != nil
	}
}

func (v Value) Uint64() (uint64, bool) {
	if !v.Present() {
		return 0, false
	}
	switch v.Type {
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.Counter64, gosnmp.TimeTicks, gosnmp.Uinteger32, gosnmp.Integer:
		n := gosnmp.ToBigInt(v.Raw)
		if n == nil || n.Sign() < 0 || !n.IsUint64() {
			return 0, false
		}
		return n.Uint64(), true
	case gosnmp.OctetString:
		return metric.ParseUintFlexible(v.String())
	default:
		return 0, false
	}
}

func (v Value) Int64() (int64, bool) {
	if !v.Present() {
		return 0, false
	}
	if v.Type == gosnmp.Integer {
		n := gosnmp.ToBigInt(v.Raw)
		if n == nil || !n.IsInt64() {
			return 0, false
		}
		return n.Int64(), true
	}
	u, ok := v.Uint64()
	if !ok || u > math.MaxInt64 {
		return 0, false
	}
	return int64(u), true
}

func (v Value) String() string {
	switch raw := v.Raw.(type) {
	case nil:
		return ""
	case []byte:
		return strings.TrimSpace(string(raw))
	case string:
		return strings.TrimSpace(raw)
	default:
		return fmt.Sprint(raw)
	}
}

func NormalizeOID(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}
