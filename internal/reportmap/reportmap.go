// Package reportmap maps backend report type codes to page components.
//
// The catalog is static: the backend names report sections by code and the
// page layer needs the component, title, and menu placement for each. Unknown
// codes resolve to the DEFAULT entry so new backend report types degrade to a
// plain rendering instead of a broken page.
package reportmap

// Entry describes how one report type renders
type Entry struct {
	Component string `json:"component,omitempty"`
	Title     string `json:"title"`
	Icon      string `json:"icon,omitempty"`
	MenuID    string `json:"menuId,omitempty"`
	IconColor string `json:"iconColor,omitempty"`
	IconBg    string `json:"iconBg,omitempty"`
}

// SubItem is one sub-section tab of a report type
type SubItem struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Personal report section codes
const (
	CodeReportOverview = "REPORT_OVERVIEW"
	CodeJudicial       = "FLXG0V4B"
	CodeMarriage       = "IVYZ5733"
	CodeLoan           = "JRZQ0A03"
)

// Enterprise report section codes
const (
	CodeEnterpriseOverview = "ENTERPRISE_REPORT_OVERVIEW"
	CodeEnterpriseJudicial = "QYGL8261"
)

// CodeDefault is the fallback for unknown report types
const CodeDefault = "DEFAULT"

var personal = map[string]Entry{
	CodeReportOverview: {
		Component: "ReportOverview",
		Title:     "报告概况",
		Icon:      "ph:user-circle-bold",
		MenuID:    "report-overview",
		IconColor: "text-blue-600",
		IconBg:    "bg-blue-100",
	},
	CodeJudicial: {
		Component: "JudicialResult",
		Title:     "司法涉诉",
		Icon:      "ph:police-car-bold",
		MenuID:    "judicial-result",
		IconColor: "text-red-600",
		IconBg:    "bg-red-100",
	},
	CodeMarriage: {
		Component: "MarriageResult",
		Title:     "婚姻状况",
		Icon:      "ph:heartbeat-bold",
		MenuID:    "marriage-result",
		IconColor: "text-red-500",
		IconBg:    "bg-red-100",
	},
	CodeLoan: {
		Component: "LoanResult",
		Title:     "多头借贷",
		Icon:      "ph:strategy-bold",
		MenuID:    "loan-result",
		IconColor: "text-orange-500",
		IconBg:    "bg-orange-100",
	},
}

var enterprise = map[string]Entry{
	CodeEnterpriseOverview: {
		Component: "Enterprise_ReportOverview",
		Title:     "企业报告概况",
		Icon:      "ph:buildings-bold",
		MenuID:    "enterprise-report-overview",
		IconColor: "text-blue-600",
		IconBg:    "bg-blue-100",
	},
	CodeEnterpriseJudicial: {
		Component: "Enterprise_JudicialResult",
		Title:     "企业综合涉诉",
		Icon:      "ph:police-car-bold",
		MenuID:    "enterprise-judicial-result",
		IconColor: "text-red-600",
		IconBg:    "bg-red-100",
	},
}

// Judicial and other detail codes used for cards and sub-section tabs.
// These carry no component; the parent report renders them inline.
var common = map[string]Entry{
	"BANKRUPT":     {Title: "破产案件", Icon: "ph:archive-box-bold", IconColor: "text-purple-600", IconBg: "bg-purple-100"},
	"CIVIL":        {Title: "民事案件", Icon: "ph:handshake-bold", IconColor: "text-blue-600", IconBg: "bg-blue-100"},
	"CRIMINAL":     {Title: "刑事案件", Icon: "ph:police-car-bold", IconColor: "text-red-600", IconBg: "bg-red-100"},
	"ADMIN":        {Title: "行政案件", Icon: "ph:bank-bold", IconColor: "text-green-600", IconBg: "bg-green-100"},
	"PRESERVATION": {Title: "非诉保全", Icon: "ph:shield-check-bold", IconColor: "text-yellow-600", IconBg: "bg-yellow-100"},
	"COMPENSATION": {Title: "赔偿案件", Icon: "ph:currency-circle-dollar-bold", IconColor: "text-amber-600", IconBg: "bg-amber-100"},
	"JURISDICTION": {Title: "管辖案件", Icon: "ph:globe-bold", IconColor: "text-cyan-600", IconBg: "bg-cyan-100"},
	"LIMIT_HIGH":   {Title: "限高", Icon: "ph:arrow-fat-lines-up-bold", IconColor: "text-yellow-700", IconBg: "bg-yellow-100"},
	"LIMIT_LOW":    {Title: "失信被执行", Icon: "ph:warning-octagon-bold", IconColor: "text-orange-700", IconBg: "bg-orange-100"},
	"MARRIAGE":     {Title: "婚姻状况", Icon: "ph:heartbeat-bold", IconColor: "text-red-500", IconBg: "bg-red-100"},
	CodeDefault:    {Title: "其他", Icon: "ph:files-bold", IconColor: "text-gray-500", IconBg: "bg-gray-100"},
}

var judicialSubItems = []SubItem{
	{Code: "BANKRUPT", Title: "破产案件"},
	{Code: "CIVIL", Title: "民事案件"},
	{Code: "CRIMINAL", Title: "刑事案件"},
	{Code: "ADMIN", Title: "行政案件"},
	{Code: "PRESERVATION", Title: "非诉保全"},
	{Code: "COMPENSATION", Title: "赔偿案件"},
	{Code: "JURISDICTION", Title: "管辖案件"},
	{Code: "LIMIT_HIGH", Title: "限高"},
	{Code: "LIMIT_LOW", Title: "失信被执行"},
}

var subItems = map[string][]SubItem{
	CodeJudicial:           judicialSubItems,
	CodeMarriage:           {{Code: "MARRIAGE", Title: "婚姻状况"}},
	CodeLoan:               {{Code: CodeLoan, Title: "多头借贷"}},
	CodeEnterpriseJudicial: judicialSubItems,
}

// JudicialDetailItems lists the detail codes shown as cards in a judicial
// report, in display order. The two execution-limit codes render as tabs
// only, so they are not part of this list.
var JudicialDetailItems = []string{
	"BANKRUPT",
	"CIVIL",
	"CRIMINAL",
	"ADMIN",
	"PRESERVATION",
	"COMPENSATION",
	"JURISDICTION",
}

// Lookup resolves a report type code to its entry, falling back to DEFAULT
func Lookup(code string) Entry {
	if entry, ok := personal[code]; ok {
		return entry
	}
	if entry, ok := enterprise[code]; ok {
		return entry
	}
	if entry, ok := common[code]; ok {
		return entry
	}
	return common[CodeDefault]
}

// IsEnterprise reports whether the code names an enterprise report section
func IsEnterprise(code string) bool {
	_, ok := enterprise[code]
	return ok
}

// SubItems returns the sub-section tabs for a report type (nil if it has none)
func SubItems(code string) []SubItem {
	return subItems[code]
}

// Catalog returns the full merged code-to-entry map. Personal and enterprise
// entries shadow common ones on duplicate codes.
func Catalog() map[string]Entry {
	merged := make(map[string]Entry, len(personal)+len(enterprise)+len(common))
	for code, entry := range common {
		merged[code] = entry
	}
	for code, entry := range enterprise {
		merged[code] = entry
	}
	for code, entry := range personal {
		merged[code] = entry
	}
	return merged
}
