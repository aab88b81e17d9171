package parts

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownMethod is returned by Parse for an unrecognized method name.
var ErrUnknownMethod = errors.New("parts: unknown grouping method")

// ErrInvalidMethodArgs is returned by Parse when arguments do not fit a method.
var ErrInvalidMethodArgs = errors.New("parts: invalid grouping method arguments")

// Default Sharp parameters: 1 MiB/s and 100ms per request.
const (
	DefaultTransferRate   = 1024 * 1024
	DefaultRequestLatency = 0.1
)

// ParseOption configures Parse.
type ParseOption func(*parseConfig)

type parseConfig struct {
	downloadCost float64
	requestCost  float64
}

// WithCosts sets the cost model of "optimal-split" tokens that carry no
// arguments of their own.
func WithCosts(downloadCost, requestCost float64) ParseOption {
	return func(c *parseConfig) {
		c.downloadCost = downloadCost
		c.requestCost = requestCost
	}
}

// Parse builds a Strategy from a method string such as
// "minimum-split", "blocked(4096)" or "cluster(3)|blocked(1024)".
//
// Tokens are separated by "|". The rightmost token is applied first and every
// token to its left regroups the blocks produced so far. A bare integer is
// shorthand for blocked(N).
func Parse(method string, opts ...ParseOption) (Strategy, error) {
	cfg := parseConfig{downloadCost: DefaultDownloadCost, requestCost: DefaultRequestCost}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.downloadCost < 0 || cfg.requestCost < 0 {
		return nil, fmt.Errorf("%w: costs must be non-negative", ErrInvalidMethodArgs)
	}

	method = strings.TrimSpace(method)
	if method == "" {
		return nil, fmt.Errorf("%w: empty method", ErrUnknownMethod)
	}
	tokens := strings.Split(method, "|")

	var result Strategy
	for i := len(tokens) - 1; i >= 0; i-- {
		s, err := parseToken(strings.TrimSpace(tokens[i]), cfg)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = s
			continue
		}
		result = Pipe{Outer: s, Inner: result}
	}
	return result, nil
}

// MustParse is like Parse but panics on error.
func MustParse(method string, opts ...ParseOption) Strategy {
	s, err := Parse(method, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

func parseToken(token string, cfg parseConfig) (Strategy, error) {
	if n, err := strconv.ParseInt(token, 10, 64); err == nil {
		if n <= 0 {
			return nil, fmt.Errorf("%w: block size %d", ErrInvalidMethodArgs, n)
		}
		return Blocked{Size: n}, nil
	}

	name, args, err := splitCall(token)
	if err != nil {
		return nil, err
	}

	switch name {
	case "minimum-split":
		return OneBlock{}, expectArgs(name, args, 0)
	case "maximum-split":
		return OnePerRecord{}, expectArgs(name, args, 0)
	case "optimal-split", "optimal":
		if len(args) == 0 {
			return CostOptimal{DownloadCost: cfg.downloadCost, RequestCost: cfg.requestCost}, nil
		}
		if err := expectArgs(name, args, 2); err != nil {
			return nil, err
		}
		if args[0] < 0 || args[1] < 0 {
			return nil, fmt.Errorf("%w: %s costs must be non-negative", ErrInvalidMethodArgs, name)
		}
		return CostOptimal{DownloadCost: args[0], RequestCost: args[1]}, nil
	case "sharp":
		rate, latency := float64(DefaultTransferRate), DefaultRequestLatency
		switch len(args) {
		case 0:
		case 1:
			rate = args[0]
		case 2:
			rate, latency = args[0], args[1]
		default:
			return nil, fmt.Errorf("%w: %s takes at most 2 arguments", ErrInvalidMethodArgs, name)
		}
		if rate <= 0 {
			return nil, fmt.Errorf("%w: %s transfer rate must be positive", ErrInvalidMethodArgs, name)
		}
		return Sharp(rate, latency), nil
	case "blocked":
		if err := expectArgs(name, args, 1); err != nil {
			return nil, err
		}
		n, err := positiveInt(name, args[0])
		if err != nil {
			return nil, err
		}
		return Blocked{Size: int64(n)}, nil
	case "cluster":
		if len(args) == 0 {
			return Cluster{MinClusters: DefaultMinClusters}, nil
		}
		if err := expectArgs(name, args, 1); err != nil {
			return nil, err
		}
		n, err := positiveInt(name, args[0])
		if err != nil {
			return nil, err
		}
		return Cluster{MinClusters: n}, nil
	case "auto":
		return Auto{}, expectArgs(name, args, 0)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, name)
}

// splitCall parses "name" or "name(a,b,...)".
func splitCall(token string) (string, []float64, error) {
	open := strings.IndexByte(token, '(')
	if open < 0 {
		return token, nil, nil
	}
	if !strings.HasSuffix(token, ")") || open == 0 {
		return "", nil, fmt.Errorf("%w: malformed token %q", ErrInvalidMethodArgs, token)
	}
	name := strings.TrimSpace(token[:open])
	inner := strings.TrimSpace(token[open+1 : len(token)-1])
	if inner == "" {
		return name, nil, nil
	}
	var args []float64
	for _, a := range strings.Split(inner, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
		if err != nil {
			return "", nil, fmt.Errorf("%w: %q in %q", ErrInvalidMethodArgs, a, token)
		}
		args = append(args, v)
	}
	return name, args, nil
}

func expectArgs(name string, args []float64, n int) error {
	if len(args) != n {
		return fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidMethodArgs, name, n, len(args))
	}
	return nil
}

func positiveInt(name string, v float64) (int, error) {
	if v <= 0 || v != float64(int64(v)) {
		return 0, fmt.Errorf("%w: %s needs a positive integer, got %v", ErrInvalidMethodArgs, name, v)
	}
	return int(v), nil
}
