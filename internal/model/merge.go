package model

import "go.uber.org/zap"

// ApplyFields folds enrichment field values into a company record. Fill-only
// merge: an existing non-empty field is never overwritten, so earlier
// higher-priority sources win.
func ApplyFields(c *Company, fields map[string]any) {
	for key, v := range fields {
		if v == nil {
			continue
		}
		applyField(c, key, v)
	}
}

func applyField(c *Company, key string, v any) {
	s, _ := v.(string)

	switch key {
	case "name", "company_name":
		if c.Name == "" {
			c.Name = s
		}
	case "legal_name":
		if c.LegalName == "" {
			c.LegalName = s
		}
	case "domain":
		if c.Domain == "" {
			c.Domain = s
		}
	case "website":
		if c.Website == "" {
			c.Website = s
		}
	case "description", "company_description":
		if c.Description == "" {
			c.Description = s
		}
	case "naics_code":
		if c.NAICSCode == "" {
			c.NAICSCode = s
		}
	case "phone":
		if c.Phone == "" {
			c.Phone = s
		}
	case "email":
		if c.Email == "" {
			c.Email = s
		}
	case "street", "address_street":
		if c.Street == "" {
			c.Street = s
		}
	case "city":
		if c.City == "" {
			c.City = s
		}
	case "state":
		if c.State == "" {
			c.State = s
		}
	case "zip_code":
		if c.ZipCode == "" {
			c.ZipCode = s
		}
	case "employee_count_min":
		if n := toInt(v); n > 0 && c.EmployeeCountMin == 0 {
			c.EmployeeCountMin = n
		}
	case "employee_count_max":
		if n := toInt(v); n > 0 && c.EmployeeCountMax == 0 {
			c.EmployeeCountMax = n
		}
	case "revenue_estimate":
		if n := toInt64(v); n > 0 && c.RevenueEstimate == 0 {
			c.RevenueEstimate = n
		}
	case "quality_score":
		if f := toFloat64(v); f > 0 && c.QualityScore == nil {
			c.QualityScore = &f
		}
	case "quality_grade":
		if c.QualityGrade == "" {
			c.QualityGrade = s
		}
	case "tech_stack":
		c.TechStack = appendUniqueStrings(c.TechStack, toStringSlice(v)...)
	default:
		zap.L().Debug("merge: unmapped field key", zap.String("key", key))
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			if s, ok := e.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func appendUniqueStrings(dst []string, values ...string) []string {
	seen := make(map[string]bool, len(dst))
	for _, s := range dst {
		seen[s] = true
	}
	for _, s := range values {
		if s != "" && !seen[s] {
			dst = append(dst, s)
			seen[s] = true
		}
	}
	return dst
}
