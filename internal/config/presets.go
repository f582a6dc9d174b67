package config

import (
	"maps"
	"slices"
	"strings"

	"github.com/san-kum/hydrosim/internal/models"
	"github.com/san-kum/hydrosim/internal/optim"
)

// calibrationSpaces are the default search boxes per model, sampled in
// log space.
var calibrationSpaces = map[string][]optim.Parameter{
	"m01": {
		{Name: "m01_FR_k", Lower: 1e-8, Upper: 1, Log: true},
		{Name: "m01_FR_alpha", Lower: 1, Upper: 10, Log: true},
		{Name: "m01_FR_Ce", Lower: 0.7, Upper: 1.3, Log: true},
	},
	"m02": {
		{Name: "m02_UR_Smax", Lower: 10, Upper: 1000, Log: true},
		{Name: "m02_UR_beta", Lower: 0.01, Upper: 10, Log: true},
		{Name: "m02_FR_k", Lower: 1e-5, Upper: 1, Log: true},
	},
	"m03": {
		{Name: "m03_UR_Smax", Lower: 10, Upper: 1000, Log: true},
		{Name: "m03_UR_beta", Lower: 0.01, Upper: 10, Log: true},
		{Name: "m03_FR_k", Lower: 1e-5, Upper: 1, Log: true},
		{Name: "m03_lag_lag-time", Lower: 1, Upper: 10, Log: true},
	},
	"m04": {
		{Name: "m04_UR_Smax", Lower: 10, Upper: 1000, Log: true},
		{Name: "m04_UR_beta", Lower: 0.01, Upper: 10, Log: true},
		{Name: "m04_FR_k", Lower: 1e-5, Upper: 1, Log: true},
		{Name: "m04_SR_k", Lower: 1e-7, Upper: 1e-2, Log: true},
		{Name: "m04_split_split-par", Lower: 0.01, Upper: 0.99},
	},
}

// CalibrationSpace returns a copy of the default search box of a model,
// or nil for an unknown model.
func CalibrationSpace(model string) []optim.Parameter {
	return slices.Clone(calibrationSpaces[model])
}

// Presets holds a ready-to-run configuration for every model and catchment
// with parameter presets. Forcing is read from data/<Catchment>.csv and the
// first 830 days are simulated.
var Presets = buildPresets()

func buildPresets() map[string]map[string]*Config {
	out := make(map[string]map[string]*Config)
	for model, catchments := range models.Presets {
		out[model] = make(map[string]*Config, len(catchments))
		for catchment, params := range catchments {
			cfg := DefaultConfig()
			cfg.Model = model
			cfg.Catchment = catchment
			cfg.Forcing = ForcingConfig{Path: "data/" + strings.ToUpper(catchment[:1]) + catchment[1:] + ".csv", End: 830}
			cfg.Parameters = maps.Clone(params)
			cfg.Calibration.Parameters = CalibrationSpace(model)
			out[model][catchment] = cfg
		}
	}
	return out
}

// GetPreset returns a copy of the preset, or nil.
func GetPreset(model, catchment string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[catchment]
	if !ok {
		return nil
	}
	c := *cfg
	c.Parameters = maps.Clone(cfg.Parameters)
	c.Calibration.Parameters = slices.Clone(cfg.Calibration.Parameters)
	return &c
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(modelPresets))
}
