package filing

// Section categories form a closed vocabulary so that retrieval filters
// can be validated against it.
const (
	CategoryBusinessOverview    = "business_overview"
	CategoryRiskFactors         = "risk_factors"
	CategoryLegal               = "legal"
	CategoryRegulatory          = "regulatory"
	CategoryMarketInfo          = "market_info"
	CategoryFinancialData       = "financial_data"
	CategoryFinancialDiscussion = "financial_discussion"
	CategoryFinancialStatements = "financial_statements"
	CategoryEventsTransactions  = "events_transactions"
	CategoryCorporateGovernance = "corporate_governance"
	CategoryGuidanceOutlook     = "guidance_outlook"
	CategoryGeneral             = "general"
)

// Categories returns the closed category vocabulary, excluding the
// fallback category "general".
func Categories() []string {
	return []string{
		CategoryBusinessOverview,
		CategoryRiskFactors,
		CategoryLegal,
		CategoryRegulatory,
		CategoryMarketInfo,
		CategoryFinancialData,
		CategoryFinancialDiscussion,
		CategoryFinancialStatements,
		CategoryEventsTransactions,
		CategoryCorporateGovernance,
		CategoryGuidanceOutlook,
	}
}

// ValidCategory reports whether s belongs to the category vocabulary
// (including "general").
func ValidCategory(s string) bool {
	if s == CategoryGeneral {
		return true
	}
	for _, c := range Categories() {
		if s == c {
			return true
		}
	}
	return false
}

// ItemInfo describes one regulatory item of a filing type's taxonomy.
type ItemInfo struct {
	Name     string
	Category string
}

// Item numbering for 10-K follows SEC Regulation S-K, for 10-Q the
// quarterly report form parts, and for 8-K the current report item
// instructions. The maps are keyed by the normalized item code captured
// from the section header ("1A", "2.02", ...). 10-Q item codes carry a
// part prefix ("P1-2") because item numbers repeat across parts.
var (
	items10K = map[string]ItemInfo{
		"1":  {"Item 1 - Business", CategoryBusinessOverview},
		"1A": {"Item 1A - Risk Factors", CategoryRiskFactors},
		"1B": {"Item 1B - Unresolved Staff Comments", CategoryRegulatory},
		"1C": {"Item 1C - Cybersecurity", CategoryRiskFactors},
		"2":  {"Item 2 - Properties", CategoryBusinessOverview},
		"3":  {"Item 3 - Legal Proceedings", CategoryLegal},
		"5":  {"Item 5 - Market Information", CategoryMarketInfo},
		"6":  {"Item 6 - Selected Financial Data", CategoryFinancialData},
		"7":  {"Item 7 - MD&A", CategoryFinancialDiscussion},
		"7A": {"Item 7A - Market Risk Disclosures", CategoryRiskFactors},
		"8":  {"Item 8 - Financial Statements", CategoryFinancialStatements},
		"9":  {"Item 9 - Accountant Disagreements", CategoryRegulatory},
		"9A": {"Item 9A - Controls and Procedures", CategoryRegulatory},
		"9B": {"Item 9B - Other Information", CategoryRegulatory},
	}

	items10Q = map[string]ItemInfo{
		"P1-1":  {"Part I Item 1 - Financial Statements", CategoryFinancialStatements},
		"P1-2":  {"Part I Item 2 - MD&A", CategoryFinancialDiscussion},
		"P1-3":  {"Part I Item 3 - Market Risk", CategoryRiskFactors},
		"P1-4":  {"Part I Item 4 - Controls", CategoryRegulatory},
		"P2-1":  {"Part II Item 1 - Legal Proceedings", CategoryLegal},
		"P2-1A": {"Part II Item 1A - Risk Factors", CategoryRiskFactors},
		"P2-2":  {"Part II Item 2 - Equity Repurchases", CategoryMarketInfo},
		"P2-6":  {"Part II Item 6 - Exhibits", CategoryRegulatory},
	}

	items8K = map[string]ItemInfo{
		"1.01": {"Item 1.01 - Material Agreement", CategoryEventsTransactions},
		"1.02": {"Item 1.02 - Termination of Agreement", CategoryEventsTransactions},
		"1.05": {"Item 1.05 - Cybersecurity Incident", CategoryRiskFactors},
		"2.01": {"Item 2.01 - Acquisition/Disposition", CategoryEventsTransactions},
		"2.02": {"Item 2.02 - Earnings Results", CategoryFinancialDiscussion},
		"2.05": {"Item 2.05 - Exit/Disposal Activities", CategoryEventsTransactions},
		"5.02": {"Item 5.02 - Officer/Director Changes", CategoryCorporateGovernance},
		"5.03": {"Item 5.03 - Bylaws Amendment", CategoryCorporateGovernance},
		"7.01": {"Item 7.01 - Reg FD Disclosure", CategoryGuidanceOutlook},
		"8.01": {"Item 8.01 - Other Events", CategoryGuidanceOutlook},
		"9.01": {"Item 9.01 - Exhibits", CategoryRegulatory},
	}
)

// Items returns the item taxonomy for a filing type. The returned map is
// shared; callers must not mutate it.
func Items(t Type) map[string]ItemInfo {
	switch t {
	case Type10K:
		return items10K
	case Type10Q:
		return items10Q
	case Type8K:
		return items8K
	}
	return nil
}

// LookupItem resolves an item code for the given filing type. The
// category assignment is deterministic: it derives purely from the item
// code, with no external calls.
func LookupItem(t Type, code string) (ItemInfo, bool) {
	info, ok := Items(t)[code]
	return info, ok
}
