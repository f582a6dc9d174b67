package models

import (
	"fmt"
	"maps"
	"sort"
)

// Presets holds calibrated parameter sets per model and catchment.
var Presets = map[string]map[string]map[string]float64{
	"m01": {
		"maimai": {
			"m01_FR_k":     1e-8,
			"m01_FR_alpha": 5.30,
			"m01_FR_Ce":    1.074082613,
		},
		"huewelerbach": {
			"m01_FR_k":     0.003935576215328,
			"m01_FR_alpha": 1.0,
			"m01_FR_Ce":    0.98493884385023,
		},
		"wollefsbach": {
			"m01_FR_k":     1e-8,
			"m01_FR_alpha": 5.57990675511199,
			"m01_FR_Ce":    1.42312151778512,
		},
		"weierbach": {
			"m01_FR_k":     1e-8,
			"m01_FR_alpha": 4.34329024018006,
			"m01_FR_Ce":    0.77318384036332,
		},
	},
	"m02": {
		"maimai": {
			"m02_FR_k":     0.002008225846719,
			"m02_FR_alpha": 2.95777066867277,
			"m02_UR_Ce":    0.998628191394559,
			"m02_UR_Smax":  68.8232043684795,
			"m02_UR_beta":  5.499704486484,
		},
		"huewelerbach": {
			"m02_FR_k":     1e-8,
			"m02_FR_alpha": 5.67905153949512,
			"m02_UR_Ce":    2.58940043581888,
			"m02_UR_Smax":  7928.16810807161,
			"m02_UR_beta":  0.37569024417246,
		},
		"wollefsbach": {
			"m02_FR_k":     0.000850704165825,
			"m02_FR_alpha": 3.97122477852227,
			"m02_UR_Ce":    1.1563965025296,
			"m02_UR_Smax":  62.054665864139,
			"m02_UR_beta":  9.27038361675023,
		},
		"weierbach": {
			"m02_FR_k":     0.002139433659078,
			"m02_FR_alpha": 2.16587447669636,
			"m02_UR_Ce":    0.763629137970332,
			"m02_UR_Smax":  115.798257318686,
			"m02_UR_beta":  10.0,
		},
	},
	"m03": {
		"maimai": {
			"m03_FR_k":         0.002008225846719,
			"m03_FR_alpha":     2.95777066867277,
			"m03_UR_Ce":        0.998628191394559,
			"m03_UR_Smax":      68.8232043684795,
			"m03_UR_beta":      5.499704486484,
			"m03_lag_lag-time": 1.0,
		},
		"huewelerbach": {
			"m03_FR_k":         1e-8,
			"m03_FR_alpha":     5.67905153949512,
			"m03_UR_Ce":        2.58940043581888,
			"m03_UR_Smax":      7928.16810807161,
			"m03_UR_beta":      0.37569024417246,
			"m03_lag_lag-time": 1.0,
		},
		"wollefsbach": {
			"m03_FR_k":         1e-8,
			"m03_FR_alpha":     9.27724341538998,
			"m03_UR_Ce":        1.16154970781699,
			"m03_UR_Smax":      63.4744786006809,
			"m03_UR_beta":      8.84829450076127,
			"m03_lag_lag-time": 1.147729869,
		},
		"weierbach": {
			"m03_FR_k":         1e-8,
			"m03_FR_alpha":     5.21310614901282,
			"m03_UR_Ce":        0.772235647042724,
			"m03_UR_Smax":      116.630704329363,
			"m03_UR_beta":      10.0,
			"m03_lag_lag-time": 2.117041512,
		},
	},
	"m04": {
		"maimai": {
			"m04_FR_k":            0.001,
			"m04_FR_alpha":        3.27613672791991,
			"m04_UR_Ce":           0.894997932365674,
			"m04_UR_Smax":         57.836578528951,
			"m04_UR_beta":         10.0,
			"m04_SR_k":            1e-6,
			"m04_split_split-par": 0.123107044240795,
		},
		"huewelerbach": {
			"m04_FR_k":            0.002128839849116,
			"m04_FR_alpha":        4.4212935509882,
			"m04_UR_Ce":           1.99192496796301,
			"m04_UR_Smax":         2153.01822789773,
			"m04_UR_beta":         0.390898552324631,
			"m04_SR_k":            0.004617020489129,
			"m04_split_split-par": 0.597893083260982,
		},
		"wollefsbach": {
			"m04_FR_k":            0.004070749686149,
			"m04_FR_alpha":        3.45823609934515,
			"m04_UR_Ce":           1.1702127655603,
			"m04_UR_Smax":         61.4514073761881,
			"m04_UR_beta":         10.0,
			"m04_SR_k":            0.000916739466627,
			"m04_split_split-par": 0.0,
		},
		"weierbach": {
			"m04_FR_k":            0.003454773102112,
			"m04_FR_alpha":        2.06272140965805,
			"m04_UR_Ce":           0.771711960349972,
			"m04_UR_Smax":         117.195201845032,
			"m04_UR_beta":         10.0,
			"m04_SR_k":            0.00157523385576,
			"m04_split_split-par": 0.0,
		},
	},
}

// Preset returns a copy of the parameter set of model for catchment.
func Preset(model, catchment string) (map[string]float64, error) {
	byCatchment, ok := Presets[model]
	if !ok {
		return nil, fmt.Errorf("no presets for model: %s", model)
	}
	params, ok := byCatchment[catchment]
	if !ok {
		return nil, fmt.Errorf("no preset %q for model %s", catchment, model)
	}
	return maps.Clone(params), nil
}

func Catchments(model string) []string {
	names := make([]string, 0, len(Presets[model]))
	for name := range Presets[model] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
