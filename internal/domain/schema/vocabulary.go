package schema

// DefaultVocabulary is the controlled disease vocabulary: canonical term to synonyms.
func DefaultVocabulary() map[string][]string {
	return map[string][]string{
		"NSCLC": {
			"non-small cell lung cancer",
			"non-small-cell lung cancer",
			"non small cell lung carcinoma",
			"non-small cell lung carcinoma",
			"advanced non-small cell lung cancer",
			"metastatic non-small cell lung cancer",
		},
		"SCLC":                     {"small cell lung cancer", "small-cell lung carcinoma", "extensive-stage small cell lung cancer"},
		"Breast cancer":            {"breast carcinoma", "metastatic breast cancer", "her2-positive breast cancer", "triple-negative breast cancer", "tnbc"},
		"Melanoma":                 {"malignant melanoma", "cutaneous melanoma", "metastatic melanoma"},
		"Colorectal cancer":        {"crc", "colon cancer", "rectal cancer", "metastatic colorectal cancer"},
		"Prostate cancer":          {"metastatic castration-resistant prostate cancer", "mcrpc", "prostate carcinoma"},
		"Hepatocellular carcinoma": {"hcc", "liver cancer"},
		"Multiple myeloma":         {"myeloma", "relapsed refractory multiple myeloma", "rrmm"},
		"Type 2 diabetes":          {"type 2 diabetes mellitus", "t2dm", "t2d", "diabetes mellitus type 2"},
		"Rheumatoid arthritis":     {"ra"},
		"Alzheimer's disease":      {"alzheimer disease", "alzheimers disease", "ad dementia"},
		"Heart failure":            {"chronic heart failure", "hfref", "heart failure with reduced ejection fraction"},
		"Asthma":                   {"severe asthma", "eosinophilic asthma"},
		"COVID-19":                 {"sars-cov-2 infection", "covid 19", "coronavirus disease 2019"},
	}
}
