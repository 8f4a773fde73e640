package entity

// Processing log operations, one per input kind
const (
	OperationImportXML     = "import_xml"
	OperationImportPDF     = "import_pdf"
	OperationImportCSV     = "import_csv"
	OperationImportXLSX    = "import_xlsx"
	OperationImportArchive = "import_zip"
	OperationImportOther   = "import_unknown"
)

// Processing log statuses
const (
	LogStatusSuccess   = "success"
	LogStatusError     = "error"
	LogStatusDuplicate = "duplicate"
)
