package template

import (
	"encoding/base64"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type templateFunc func(args string) (string, error)

// functions are the built-ins usable as ${name(args)}. The camelCase names
// match common load-test script spelling.
var functions = map[string]templateFunc{
	"uuid":          fnUUID,
	"timestamp":     fnTimestamp,
	"timestamp_ms":  fnTimestampMs,
	"random":        fnRandom,
	"randomNumber":  fnRandom,
	"random_string": fnRandomString,
	"randomString":  fnRandomString,
	"date":          fnDate,
	"base64":        fnBase64,
}

// evalFunction evaluates expr if it is a call to a known function.
// ok is false when expr is not such a call.
func evalFunction(expr string) (result string, ok bool, err error) {
	open := strings.IndexByte(expr, '(')
	if open <= 0 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}

	name := expr[:open]
	fn, found := functions[name]
	if !found {
		return "", false, nil
	}

	result, err = fn(expr[open+1 : len(expr)-1])
	if err != nil {
		return "", true, fmt.Errorf("function %s: %w", name, err)
	}
	return result, true, nil
}

func noArgs(name, args string) error {
	if strings.TrimSpace(args) != "" {
		return fmt.Errorf("%s() takes no arguments", name)
	}
	return nil
}

func fnUUID(args string) (string, error) {
	if err := noArgs("uuid", args); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// fnTimestamp returns Unix seconds.
func fnTimestamp(args string) (string, error) {
	if err := noArgs("timestamp", args); err != nil {
		return "", err
	}
	return strconv.FormatInt(time.Now().Unix(), 10), nil
}

// fnTimestampMs returns Unix milliseconds.
func fnTimestampMs(args string) (string, error) {
	if err := noArgs("timestamp_ms", args); err != nil {
		return "", err
	}
	return strconv.FormatInt(time.Now().UnixMilli(), 10), nil
}

// fnRandom returns an integer in [lo, hi]. Usage: random(lo,hi)
func fnRandom(args string) (string, error) {
	lo, hi, ok := strings.Cut(args, ",")
	if !ok || strings.Contains(hi, ",") {
		return "", errors.New("random(min,max) requires exactly 2 arguments")
	}

	minV, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}
	maxV, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}
	if minV > maxV {
		return "", fmt.Errorf("min (%d) must be <= max (%d)", minV, maxV)
	}

	return strconv.FormatInt(minV+rand.Int64N(maxV-minV+1), 10), nil
}

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// fnRandomString returns length alphanumeric characters. Usage: random_string(8)
func fnRandomString(args string) (string, error) {
	length, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "", fmt.Errorf("invalid length: %w", err)
	}
	if length <= 0 || length > 1000 {
		return "", fmt.Errorf("length %d must be between 1 and 1000", length)
	}

	out := make([]byte, length)
	for i := range out {
		out[i] = alphanumeric[rand.IntN(len(alphanumeric))]
	}
	return string(out), nil
}

// fnDate formats the current time with a Go layout, RFC 3339 by default.
// Usage: date(2006-01-02)
func fnDate(args string) (string, error) {
	layout := strings.TrimSpace(args)
	if layout == "" {
		layout = time.RFC3339
	}
	return time.Now().Format(layout), nil
}

// fnBase64 encodes its literal argument. Usage: base64(user:pass)
func fnBase64(args string) (string, error) {
	return base64.StdEncoding.EncodeToString([]byte(args)), nil
}
