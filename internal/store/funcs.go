package store

import (
	"crypto/md5"  // #nosec G501 -- SPARQL MD5() builtin, not used for security
	"crypto/sha1" // #nosec G505 -- SPARQL SHA1() builtin, not used for security
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

type sqlFunc struct {
	name string
	fn   interface{}
	pure bool
}

// registerSQLFunctions installs the scalar SQL functions the SQL translator
// relies on for SPARQL string/hash/date built-ins (§4.6.5) that have no
// direct SQLite equivalent. Installed via the driver's ConnectHook, so
// every connection opened against this driver name carries them.
func registerSQLFunctions(conn *sqlite3.SQLiteConn) error {
	fns := []sqlFunc{
		{"sparql_regex", regexMatch, true},
		{"sparql_md5", hashHexFunc(md5.New), true},
		{"sparql_sha1", hashHexFunc(sha1.New), true},
		{"sparql_sha256", hashHexFunc(sha256.New), true},
		{"sparql_sha384", hashHexFunc(sha512.New384), true},
		{"sparql_sha512", hashHexFunc(sha512.New), true},
		{"sparql_ucase", strings.ToUpper, true},
		{"sparql_lcase", strings.ToLower, true},
		{"sparql_strstarts", strings.HasPrefix, true},
		{"sparql_strends", strings.HasSuffix, true},
		{"sparql_contains", strings.Contains, true},
		{"sparql_strbefore", strBefore, true},
		{"sparql_strafter", strAfter, true},
		{"sparql_encode_for_uri", url.QueryEscape, true},
		{"sparql_uuid", func() string { return "urn:uuid:" + uuid.NewString() }, false},
		{"sparql_struuid", func() string { return uuid.NewString() }, false},
		{"sparql_now", func() string { return time.Now().UTC().Format(time.RFC3339Nano) }, false},
		{"sparql_concat", concatFunc, true},
		{"sparql_if", ifFunc, true},
		{"sparql_bnode", nextSQLBlankNode, false},
		{"sparql_newinstanceiri", newInstanceIRI, false},
		{"sparql_year", dtYear, true},
		{"sparql_month", dtMonth, true},
		{"sparql_day", dtDay, true},
		{"sparql_hours", dtHours, true},
		{"sparql_minutes", dtMinutes, true},
		{"sparql_seconds", dtSeconds, true},
		{"sparql_tz", dtTZ, true},
		{"sparql_timezone", dtTimezone, true},
		{"sparql_datetime_add", dtAdd, true},
		{"sparql_datetime_sub", dtSub, true},
		{"sparql_datetime_diff", dtDiff, true},
	}
	for _, f := range fns {
		if err := conn.RegisterFunc(f.name, f.fn, f.pure); err != nil {
			return fmt.Errorf("registering SQL function %s: %w", f.name, err)
		}
	}
	return nil
}

func regexMatch(text, pattern, flags string) (bool, error) {
	expr := pattern
	if strings.Contains(flags, "i") {
		expr = "(?i)" + expr
	}
	re, err := regexCache(expr)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

var (
	reCacheMu sync.Mutex
	reCache   = map[string]*regexp.Regexp{}
)

func regexCache(expr string) (*regexp.Regexp, error) {
	reCacheMu.Lock()
	defer reCacheMu.Unlock()
	if re, ok := reCache[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid REGEX pattern %q: %w", expr, err)
	}
	reCache[expr] = re
	return re, nil
}

func strBefore(s, marker string) string {
	if i := strings.Index(s, marker); i >= 0 {
		return s[:i]
	}
	return ""
}

func strAfter(s, marker string) string {
	if i := strings.Index(s, marker); i >= 0 {
		return s[i+len(marker):]
	}
	return ""
}

// hasher is the common shape of crypto/sha*.New and crypto/md5.New.
type hasher func() interface {
	Write([]byte) (int, error)
	Sum([]byte) []byte
}

func hashHexFunc(newHash hasher) func(string) string {
	return func(text string) string {
		h := newHash()
		h.Write([]byte(text))
		return hex.EncodeToString(h.Sum(nil))
	}
}

func concatFunc(args ...string) string {
	return strings.Join(args, "")
}

func ifFunc(cond bool, then, els interface{}) interface{} {
	if cond {
		return then
	}
	return els
}

// bnodeCounter seeds sparql_bnode's allocations well above where any single
// Abbreviator instance's own blank-node counter (which starts at -1 and
// counts down) could plausibly reach, so a BNODE() mint inside a query
// expression and a real store-side NewBlankNode() allocation don't collide
// in practice. This is a process-wide counter, not a persisted one:
// BNODE()'s blank nodes are only meaningful within the query/update that
// mints them (SPARQL gives BNODE() no cross-request identity guarantee).
var bnodeCounter int64 = 1 << 32

func nextSQLBlankNode() int64 {
	return -atomic.AddInt64(&bnodeCounter, 1)
}

// instanceCounters backs NEWINSTANCEIRI(class): a process-wide per-class
// counter, not persisted, minting storid-free IRI text the caller then
// abbreviates (allocating a real storid) only if the minted IRI is actually
// asserted into the store.
var (
	instanceCounterMu sync.Mutex
	instanceCounters  = map[string]int64{}
)

func newInstanceIRI(class string) string {
	sep := "#"
	if strings.HasSuffix(class, "#") || strings.HasSuffix(class, "/") {
		sep = ""
	}
	instanceCounterMu.Lock()
	instanceCounters[class]++
	n := instanceCounters[class]
	instanceCounterMu.Unlock()
	return fmt.Sprintf("%s%si%d", class, sep, n)
}

// parseDateTime accepts the handful of xsd:dateTime/xsd:date lexical forms
// the store is likely to see: full timestamp with fractional seconds,
// RFC3339 without them, a bare "T" timestamp with no zone, and a bare date.
func parseDateTime(s string) (time.Time, error) {
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}
	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parsing dateTime %q: %w", s, lastErr)
}

func dtYear(s string) (int64, error) {
	t, err := parseDateTime(s)
	if err != nil {
		return 0, err
	}
	return int64(t.Year()), nil
}

func dtMonth(s string) (int64, error) {
	t, err := parseDateTime(s)
	if err != nil {
		return 0, err
	}
	return int64(t.Month()), nil
}

func dtDay(s string) (int64, error) {
	t, err := parseDateTime(s)
	if err != nil {
		return 0, err
	}
	return int64(t.Day()), nil
}

func dtHours(s string) (int64, error) {
	t, err := parseDateTime(s)
	if err != nil {
		return 0, err
	}
	return int64(t.Hour()), nil
}

func dtMinutes(s string) (int64, error) {
	t, err := parseDateTime(s)
	if err != nil {
		return 0, err
	}
	return int64(t.Minute()), nil
}

func dtSeconds(s string) (float64, error) {
	t, err := parseDateTime(s)
	if err != nil {
		return 0, err
	}
	return float64(t.Second()) + float64(t.Nanosecond())/1e9, nil
}

// dtTZ mirrors SPARQL's TZ(): the zone offset as "+HH:MM"/"-HH:MM", or "Z"
// for UTC. TIMEZONE() is the same information under a different builtin
// name (the full xs:dayTimeDuration form SPARQL specifies is not modeled).
func dtTZ(s string) (string, error) {
	t, err := parseDateTime(s)
	if err != nil {
		return "", err
	}
	_, offset := t.Zone()
	if offset == 0 {
		return "Z", nil
	}
	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	return fmt.Sprintf("%s%02d:%02d", sign, offset/3600, (offset%3600)/60), nil
}

func dtTimezone(s string) (string, error) {
	return dtTZ(s)
}

func dtAdd(s string, seconds float64) (string, error) {
	t, err := parseDateTime(s)
	if err != nil {
		return "", err
	}
	return t.Add(time.Duration(seconds * float64(time.Second))).UTC().Format(time.RFC3339Nano), nil
}

func dtSub(s string, seconds float64) (string, error) {
	return dtAdd(s, -seconds)
}

func dtDiff(a, b string) (float64, error) {
	ta, err := parseDateTime(a)
	if err != nil {
		return 0, err
	}
	tb, err := parseDateTime(b)
	if err != nil {
		return 0, err
	}
	return ta.Sub(tb).Seconds(), nil
}
