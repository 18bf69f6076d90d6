package sales

// InvoiceColumns is the fixed column set of a printed invoice
var InvoiceColumns = []string{"S.No", "Item Code", "Description", "Quantity", "Unit Price", "Total"}

// Company is the issuer shown in the document header
type Company struct {
	Name    string
	Address string
	Phone   string
}

// InvoiceDocument is a printable invoice: header fields, one row of
// preformatted cells per invoice line (see InvoiceColumns) and the total.
type InvoiceDocument struct {
	Title           string
	Company         Company
	Number          string
	IssuedOn        string
	DueOn           string
	CustomerName    string
	CustomerAddress string
	CustomerPhone   string
	Currency        string
	Rows            [][]string
	Total           string
}
