//go:build ruleguard

// Package gorules contains ruleguard checks run through golangci-lint. They
// keep code on the project's error and logging packages and on current
// standard library idioms.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// StdErrorsNew flags errors.New from the standard library outside tests.
// Errors leaving a package carry a component and category:
//
//	errors.Newf("...").Component("x").Category(errors.CategoryValidation).Build()
//
// Plain sentinels are declared with errors.NewStd.
func StdErrorsNew(m dsl.Matcher) {
	m.Import("errors")

	m.Match(`errors.New($msg)`).
		Where(m["msg"].Type.Is("string") && !m.File().Name.Matches(`_test\.go$`)).
		Report("use internal/errors: errors.Newf(...).Component(...).Category(...).Build(), or errors.NewStd for sentinels")
}

// PrintInInternal flags fmt printing to stdout from internal packages. Only
// commands write to the terminal; everything else logs.
func PrintInInternal(m dsl.Matcher) {
	m.Match(
		`fmt.Println($*_)`,
		`fmt.Printf($*_)`,
		`fmt.Print($*_)`,
	).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use logger.Global().Module(...) instead of printing to stdout")
}

// LoggerErrorString flags errors logged as strings.
//
//	log.Warn("failed", logger.String("error", err.Error()))
//
// should be
//
//	log.Warn("failed", logger.Error(err))
func LoggerErrorString(m dsl.Matcher) {
	m.Match(`logger.String("error", $err.Error())`).
		Where(m["err"].Type.Implements("error")).
		Report("use logger.Error($err)").
		Suggest("logger.Error($err)")
}

// WaitGroupGo suggests wg.Go over the manual Add/Done pattern (Go 1.25+).
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern").
		Suggest("$wg.Go(func() { $body })")

	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }()")
}

// TestingContext suggests t.Context() in tests (Go 1.24+). It is cancelled
// when the test ends, which stops pollers and uploads started by the test.
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx := context.TODO()`,
		`$fn(context.Background(), $*_)`,
		`$fn(context.TODO(), $*_)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of a background context")
}

// TimeSince suggests time.Since and time.Until.
func TimeSince(m dsl.Matcher) {
	m.Match(`time.Now().Sub($t)`).
		Report("use time.Since($t)").
		Suggest("time.Since($t)")

	m.Match(`$t.Sub(time.Now())`).
		Report("use time.Until($t)").
		Suggest("time.Until($t)")
}

// MinMaxBuiltin suggests the min and max builtins (Go 1.21+).
func MinMaxBuiltin(m dsl.Matcher) {
	m.Match(`int(math.Min(float64($a), float64($b)))`).
		Report("use min($a, $b)").
		Suggest("min($a, $b)")

	m.Match(`int(math.Max(float64($a), float64($b)))`).
		Report("use max($a, $b)").
		Suggest("max($a, $b)")

	m.Match(`if $a < $b { $x = $a } else { $x = $b }`).
		Report("use $x = min($a, $b)").
		Suggest("$x = min($a, $b)")

	m.Match(`if $a > $b { $x = $a } else { $x = $b }`).
		Report("use $x = max($a, $b)").
		Suggest("$x = max($a, $b)")
}
