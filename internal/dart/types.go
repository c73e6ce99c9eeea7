// Package dart is the client for the DART open API: structured
// financial statements, disclosure list search, and raw filing
// documents.
package dart

// ReportCode identifies the DART periodic report kind.
type ReportCode string

const (
	ReportAnnual ReportCode = "11011" // 사업보고서
	ReportQ1     ReportCode = "11013" // 1분기보고서
	ReportQ2     ReportCode = "11012" // 반기보고서
	ReportQ3     ReportCode = "11014" // 3분기보고서
)

// ReportCodeForQuarter maps a fiscal quarter to its report code. The
// fourth quarter has no standalone filing; the annual report covers it.
func ReportCodeForQuarter(quarter int) (ReportCode, bool) {
	switch quarter {
	case 1:
		return ReportQ1, true
	case 2:
		return ReportQ2, true
	case 3:
		return ReportQ3, true
	case 4:
		return ReportAnnual, true
	default:
		return "", false
	}
}

// statementResponse is the fnlttSinglAcntAll envelope.
type statementResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	List    []statementRow `json:"list"`
}

// statementRow is one account line as returned by the API.
type statementRow struct {
	SjDiv        string `json:"sj_div"`
	AccountID    string `json:"account_id"`
	AccountNm    string `json:"account_nm"`
	ThstrmAmount string `json:"thstrm_amount"`
	FsDiv        string `json:"fs_div"`
}

// listResponse is the disclosure-search envelope.
type listResponse struct {
	Status  string       `json:"status"`
	Message string       `json:"message"`
	List    []Disclosure `json:"list"`
}

// Disclosure is one entry of the disclosure list.
type Disclosure struct {
	CorpCode   string `json:"corp_code"`
	ReportName string `json:"report_nm"`
	ReceiptNo  string `json:"rcept_no"`
	FlrName    string `json:"flr_nm"`
	ReceiptDt  string `json:"rcept_dt"`
}

// API status codes. 013 means the query matched no filings, which is
// structural absence rather than an error.
const (
	statusOK     = "000"
	statusNoData = "013"
)
