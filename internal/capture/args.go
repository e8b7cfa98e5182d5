package capture

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownArgument is returned for a /start token that is not recognised.
var ErrUnknownArgument = errors.New("unknown start argument")

// Channel names, which double as stream paths.
const (
	ChannelCxadc    = "cxadc"
	ChannelBaseband = "baseband"
)

// ChannelSpec describes one channel of a session.
type ChannelSpec struct {
	Name       string
	Device     string
	BufferSize int
	Synthetic  bool
	Rate       int
}

// Plan is the parsed form of a start request.
type Plan struct {
	Channels []ChannelSpec
}

// ParsePlan builds a plan from the configured defaults and the decoded
// query tokens of a /start request.
//
// Tokens: cxadcN selects /dev/cxadcN, cxadc=PATH and baseband=PATH override
// device paths, nobaseband drops the baseband channel, synthetic replaces
// both devices with a test pattern.
func ParsePlan(opts Options, args []string) (Plan, error) {
	cxadc := ChannelSpec{
		Name:       ChannelCxadc,
		Device:     opts.CxadcDevice,
		BufferSize: opts.CxadcBuffer,
		Rate:       opts.SyntheticRate,
	}
	baseband := ChannelSpec{
		Name:       ChannelBaseband,
		Device:     opts.BasebandDevice,
		BufferSize: opts.BasebandBuffer,
	}
	if opts.SyntheticRate > 0 {
		baseband.Rate = max(1, opts.SyntheticRate/64)
	}
	withBaseband := true

	for _, arg := range args {
		key, value, hasValue := strings.Cut(arg, "=")
		switch {
		case arg == "":
		case hasValue && key == ChannelCxadc:
			cxadc.Device = value
		case hasValue && key == ChannelBaseband:
			baseband.Device = value
		case !hasValue && isCxadcIndex(arg):
			cxadc.Device = "/dev/" + arg
		case arg == "nobaseband":
			withBaseband = false
		case arg == "synthetic":
			cxadc.Synthetic = true
			baseband.Synthetic = true
		default:
			return Plan{}, fmt.Errorf("%w: %q", ErrUnknownArgument, arg)
		}
	}

	if !cxadc.Synthetic && cxadc.Device == "" {
		return Plan{}, fmt.Errorf("no cxadc device configured")
	}

	plan := Plan{Channels: []ChannelSpec{cxadc}}
	if withBaseband && (baseband.Synthetic || baseband.Device != "") {
		plan.Channels = append(plan.Channels, baseband)
	}
	return plan, nil
}

func isCxadcIndex(s string) bool {
	digits, ok := strings.CutPrefix(s, ChannelCxadc)
	if !ok || digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
