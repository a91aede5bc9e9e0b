package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/s2s-forecast-service/internal/domain"
)

const defaultHistogramBins = 40

var validate = validator.New()

type stepParams struct {
	Step int `validate:"gte=0"`
}

type pointParams struct {
	Lat float64 `validate:"gte=-90,lte=90"`
	Lon float64 `validate:"gte=-360,lte=360"`
}

type histogramParams struct {
	Step int `validate:"gte=0"`
	Bins int `validate:"gte=1,lte=1000"`
}

func parseStep(r *http.Request) (stepParams, error) {
	var p stepParams
	var err error
	if p.Step, err = intParam(r, "step", 0); err != nil {
		return p, err
	}
	return p, check(p)
}

func parsePoint(r *http.Request) (pointParams, error) {
	var p pointParams
	var err error
	if p.Lat, err = floatParam(r, "lat"); err != nil {
		return p, err
	}
	if p.Lon, err = floatParam(r, "lon"); err != nil {
		return p, err
	}
	return p, check(p)
}

func parseHistogram(r *http.Request) (histogramParams, error) {
	var p histogramParams
	var err error
	if p.Step, err = intParam(r, "step", 0); err != nil {
		return p, err
	}
	if p.Bins, err = intParam(r, "bins", defaultHistogramBins); err != nil {
		return p, err
	}
	return p, check(p)
}

// check runs struct validation and reports the first failing parameter as
// an ErrInvalidArgument.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("%w: %s must satisfy %s=%s, got %v",
			domain.ErrInvalidArgument, strings.ToLower(fe.Field()), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrInvalidArgument, name, raw)
	}
	return v, nil
}

func floatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is required", domain.ErrInvalidArgument, name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number, got %q", domain.ErrInvalidArgument, name, raw)
	}
	return v, nil
}
