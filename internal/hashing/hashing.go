// Package hashing derives the identifiers and per-call digests that drive
// message synthesis. All functions are pure: the clock is always passed in by
// the caller and the hash function comes from a digest.Digester.
package hashing

import (
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-fortune-backend/internal/digest"
	"github.com/tbourn/go-fortune-backend/internal/domain"
)

const (
	// SubjectIDLen is the number of hex characters kept from the identity digest.
	SubjectIDLen = 16

	// SeedCycleDays is the period of the rotating date seed. It equals the
	// two-year retention horizon, so a seed value only comes back once the
	// records generated under it are eligible for purging.
	SeedCycleDays = 730

	minuteLayout = "200601021504"
	fieldSep     = "|"
)

// seedEpoch anchors DateSeed.
var seedEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// SubjectID returns the stable identifier for an identity: the first
// SubjectIDLen hex characters of digest(name + "|" + YYYY-MM-DD).
//
// The name is NFKC-normalized with whitespace runs collapsed, so full-width
// and half-width spellings of the same name map to the same subject.
func SubjectID(d digest.Digester, id domain.Identity) string {
	name := strings.Join(strings.Fields(norm.NFKC.String(id.FullName)), " ")
	sum := d.HexString(name + fieldSep + id.BirthDate.Format("2006-01-02"))
	if len(sum) > SubjectIDLen {
		sum = sum[:SubjectIDLen]
	}
	return sum
}

// DateSeed returns (days since 2020-01-01 UTC) mod SeedCycleDays.
// The result is always in [0, SeedCycleDays), including for dates before the epoch.
func DateSeed(now time.Time) int {
	days := int(math.Floor(now.UTC().Sub(seedEpoch).Hours() / 24))
	return ((days % SeedCycleDays) + SeedCycleDays) % SeedCycleDays
}

// MinuteStamp formats now at minute granularity in UTC.
func MinuteStamp(now time.Time) string {
	return now.UTC().Format(minuteLayout)
}

// CallInput holds everything that diversifies one synthesis attempt.
type CallInput struct {
	SubjectID string
	DateSeed  int
	Attempt   int
	Counter   int64 // advisory per-subject counter
	Category  string
	Env       *domain.Environment
	Minute    string // MinuteStamp of the call
}

// CallHash concatenates all inputs with separators and returns the digest.
// Two calls that differ only in their minute stamp produce different hashes.
func CallHash(d digest.Digester, in CallInput) string {
	var b strings.Builder
	b.Grow(96)
	b.WriteString(in.SubjectID)
	b.WriteString(fieldSep)
	b.WriteString(strconv.Itoa(in.DateSeed))
	b.WriteString(fieldSep)
	b.WriteString(strconv.Itoa(in.Attempt))
	b.WriteString(fieldSep)
	b.WriteString(strconv.FormatInt(in.Counter, 10))
	b.WriteString(fieldSep)
	b.WriteString(strings.ToLower(strings.TrimSpace(in.Category)))
	b.WriteString(fieldSep)
	b.WriteString(envKey(in.Env))
	b.WriteString(fieldSep)
	b.WriteString(in.Minute)
	return d.HexString(b.String())
}

func envKey(env *domain.Environment) string {
	if env == nil {
		return "-"
	}
	return strconv.FormatFloat(env.LunarPhase, 'f', 4, 64) + ":" + strings.ToLower(strings.TrimSpace(env.Weather))
}
