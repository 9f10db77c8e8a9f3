package reopt

// Baseline load assumptions per profile. Additional load contributes an
// assumed 4 hours of use per day.
var (
	basePeakKW = map[string]float64{
		"residential": 5.0,
		"commercial":  50.0,
		"industrial":  200.0,
	}
	baseAnnualKWH = map[string]float64{
		"residential": 12000.0,
		"commercial":  60000.0,
		"industrial":  500000.0,
	}
	doeReferenceName = map[string]string{
		"residential": "MidriseApartment",
		"commercial":  "RetailStore",
		"industrial":  "Warehouse",
	}
)

// buildPayload assembles the flat v3 request body.
func buildPayload(job Job) map[string]any {
	profile := job.LoadProfile
	if _, ok := basePeakKW[profile]; !ok {
		profile = "residential"
	}

	peakKW := basePeakKW[profile] + job.AdditionalLoadKW
	annualKWH := baseAnnualKWH[profile] + job.AdditionalLoadKW*4*365

	analysisYears := job.AnalysisYears
	if analysisYears <= 0 {
		analysisYears = 25
	}

	return map[string]any{
		"Scenario": map[string]any{
			"timeout_seconds": 400,
		},
		"Site": map[string]any{
			"latitude":  job.Lat,
			"longitude": job.Lon,
		},
		"Financial": map[string]any{
			"analysis_years":        analysisYears,
			"federal_itc_fraction":  job.FederalITCFraction,
			"third_party_ownership": job.ThirdPartyOwnership,
		},
		"ElectricLoad": map[string]any{
			"load_profile_type":  profile,
			"doe_reference_name": doeReferenceName[profile],
			"load_profile_kw":    peakKW,
			"annual_kwh":         annualKWH,
		},
		"ElectricTariff": map[string]any{
			"urdb_label": job.URDBLabel,
		},
		"PV": map[string]any{
			"max_kw":      1000.0,
			"existing_kw": 0.0,
		},
		"ElectricStorage": map[string]any{
			"max_kw":  1000.0,
			"max_kwh": 4000.0,
		},
	}
}
