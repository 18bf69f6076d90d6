package invoicing

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/textile/backend/internal/domain/sales"
	"github.com/textile/backend/internal/domain/shared"
)

const documentDateLayout = "02 Jan 2006"

// DocumentTitle is printed above every invoice
const DocumentTitle = "INVOICE"

// documentHeader holds the fields a printed invoice cannot do without
type documentHeader struct {
	CompanyName   string `json:"companyName" validate:"required"`
	InvoiceNumber string `json:"invoiceNumber" validate:"required"`
	Date          string `json:"date" validate:"required"`
	CustomerName  string `json:"customerName" validate:"required"`
	Items         int    `json:"items" validate:"gt=0"`
}

func newDocumentValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkDocument returns a PreconditionError naming every missing header field
func checkDocument(v *validator.Validate, doc *sales.InvoiceDocument) error {
	header := documentHeader{
		CompanyName:   strings.TrimSpace(doc.Company.Name),
		InvoiceNumber: strings.TrimSpace(doc.Number),
		Date:          strings.TrimSpace(doc.IssuedOn),
		CustomerName:  strings.TrimSpace(doc.CustomerName),
		Items:         len(doc.Rows),
	}
	err := v.Struct(header)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return shared.NewPreconditionError("render invoice", fields...)
}

// documentFormatter renders amounts, quantities and dates for print
type documentFormatter struct {
	printer *message.Printer
}

func newDocumentFormatter(tag language.Tag) *documentFormatter {
	return &documentFormatter{printer: message.NewPrinter(tag)}
}

func (f *documentFormatter) money(d decimal.Decimal) string {
	return f.printer.Sprintf("%v", number.Decimal(d.Round(2).InexactFloat64(), number.Scale(2)))
}

func (f *documentFormatter) quantity(q int64) string {
	return f.printer.Sprintf("%v", number.Decimal(q))
}

func (f *documentFormatter) date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(documentDateLayout)
}

// buildDocument lays an invoice out in the fixed printed column set
func (f *documentFormatter) buildDocument(company sales.Company, inv *sales.Invoice, customer *sales.Customer) *sales.InvoiceDocument {
	doc := &sales.InvoiceDocument{
		Title:        DocumentTitle,
		Company:      company,
		IssuedOn:     f.date(inv.IssuedOn),
		DueOn:        f.date(inv.DueOn),
		CustomerName: inv.CustomerName,
		Currency:     inv.Currency,
		Total:        f.money(inv.Total),
		Rows:         make([][]string, 0, len(inv.Items)),
	}
	if inv.Number > 0 {
		doc.Number = strconv.FormatInt(inv.Number, 10)
	}
	if customer != nil {
		if doc.CustomerName == "" {
			doc.CustomerName = customer.DisplayName()
		}
		doc.CustomerAddress = customer.Address
		doc.CustomerPhone = customer.Phone
	}

	for i, item := range inv.Items {
		doc.Rows = append(doc.Rows, []string{
			strconv.Itoa(i + 1),
			item.Code,
			item.Description,
			f.quantity(item.Quantity),
			f.money(item.UnitPrice),
			f.money(item.Total),
		})
	}
	return doc
}
