package translate

import (
	"errors"

	"github.com/rexialabs/local_model_gateway/internal/models"
)

// Params is the supported subset of OpenAI generation parameters.
type Params struct {
	Temperature      *float64
	TopP             *float64
	N                *int
	MaxTokens        *int
	PresencePenalty  *float64
	FrequencyPenalty *float64
	Stop             []string
}

// Limits are the fixed backend capability constants per request mode.
type Limits struct {
	NumCtx       int
	VisionNumCtx int
	VisionNumGPU int
}

var (
	ErrTemperatureRange      = errors.New("temperature must be between 0 and 2")
	ErrTopPRange             = errors.New("top_p must be between 0 and 1")
	ErrPresencePenaltyRange  = errors.New("presence_penalty must be between -2 and 2")
	ErrFrequencyPenaltyRange = errors.New("frequency_penalty must be between -2 and 2")
	ErrMultipleCompletions   = errors.New("multiple completions unsupported")
)

// Validate rejects out-of-range values outright. Clamping happens only as a
// second layer inside Options; user input is never silently adjusted.
func (p Params) Validate() error {
	if p.N != nil && *p.N != 1 {
		return ErrMultipleCompletions
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return ErrTemperatureRange
	}
	if p.TopP != nil && (*p.TopP < 0 || *p.TopP > 1) {
		return ErrTopPRange
	}
	if p.PresencePenalty != nil && (*p.PresencePenalty < -2 || *p.PresencePenalty > 2) {
		return ErrPresencePenaltyRange
	}
	if p.FrequencyPenalty != nil && (*p.FrequencyPenalty < -2 || *p.FrequencyPenalty > 2) {
		return ErrFrequencyPenaltyRange
	}
	return nil
}

// Options maps the OpenAI parameters onto backend-native sampling options.
// Vision requests get their own context window plus the all-accelerators
// hint; everything else translates field by field.
func (p Params) Options(vision bool, lim Limits) models.GenerationOptions {
	opts := models.GenerationOptions{
		NumPredict: -1,
		NumCtx:     lim.NumCtx,
	}
	if vision {
		opts.NumCtx = lim.VisionNumCtx
		gpu := lim.VisionNumGPU
		opts.NumGPU = &gpu
	}
	if p.Temperature != nil {
		t := clamp(*p.Temperature, 0, 2)
		opts.Temperature = &t
	}
	if p.TopP != nil {
		tp := clamp(*p.TopP, 0, 1)
		opts.TopP = &tp
	}
	if p.MaxTokens != nil {
		opts.NumPredict = *p.MaxTokens
	}
	if p.FrequencyPenalty != nil {
		// frequency_penalty [-2,2] maps onto the multiplicative repeat
		// penalty: 0 is neutral (1.0), 2 doubles (2.0), -2 disables (0.0).
		rp := clamp(1+*p.FrequencyPenalty/2, 0, 2)
		opts.RepeatPenalty = &rp
	}
	if p.PresencePenalty != nil {
		pp := clamp(*p.PresencePenalty, -2, 2)
		opts.PresencePenalty = &pp
	}
	if len(p.Stop) > 0 {
		opts.Stop = append(opts.Stop, p.Stop...)
	}
	return opts
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
