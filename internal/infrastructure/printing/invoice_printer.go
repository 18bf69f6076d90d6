package printing

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/textile/backend/internal/domain/sales"
	"go.uber.org/zap"
)

const invoiceLayout = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}} {{.Number}}</title>
<style>
body { font-family: "Helvetica Neue", Arial, sans-serif; font-size: 11px; color: #222; }
.header { display: flex; justify-content: space-between; margin-bottom: 18px; }
.company h1 { font-size: 18px; margin: 0 0 4px 0; }
.title { text-align: right; }
.title h2 { font-size: 22px; margin: 0; letter-spacing: 2px; }
.meta td { padding: 1px 6px; }
.bill-to { margin-bottom: 14px; }
table.lines { width: 100%; border-collapse: collapse; }
table.lines th { background: #f0f0f0; border-bottom: 1px solid #999; padding: 6px; text-align: left; }
table.lines td { border-bottom: 1px solid #ddd; padding: 5px 6px; }
table.lines td.num, table.lines th.num { text-align: right; }
.total { margin-top: 12px; text-align: right; font-size: 13px; font-weight: bold; }
</style>
</head>
<body>
<div class="header">
  <div class="company">
    <h1>{{.Company.Name}}</h1>
    {{with .Company.Address}}<div>{{.}}</div>{{end}}
    {{with .Company.Phone}}<div>{{.}}</div>{{end}}
  </div>
  <div class="title">
    <h2>{{.Title}}</h2>
    <table class="meta">
      <tr><td>Invoice #</td><td>{{.Number}}</td></tr>
      <tr><td>Date</td><td>{{.IssuedOn}}</td></tr>
      {{with .DueOn}}<tr><td>Due</td><td>{{.}}</td></tr>{{end}}
    </table>
  </div>
</div>
<div class="bill-to">
  <strong>Bill To</strong>
  <div>{{.CustomerName}}</div>
  {{with .CustomerAddress}}<div>{{.}}</div>{{end}}
  {{with .CustomerPhone}}<div>{{.}}</div>{{end}}
</div>
<table class="lines">
  <thead>
    <tr>{{range $i, $c := .Columns}}<th{{if numeric $i}} class="num"{{end}}>{{$c}}</th>{{end}}</tr>
  </thead>
  <tbody>
    {{range .Rows}}<tr>{{range $i, $cell := .}}<td{{if numeric $i}} class="num"{{end}}>{{$cell}}</td>{{end}}</tr>
    {{end}}
  </tbody>
</table>
<div class="total">Total: {{.Currency}} {{.Total}}</div>
</body>
</html>
`

const pageFooter = `<div style="font-size:8px;width:100%;text-align:center;color:#888;">` +
	`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`

// invoicePage is the template data: the document plus the column headings
type invoicePage struct {
	*sales.InvoiceDocument
	Columns []string
}

// InvoicePrinter lays out invoice documents as HTML and prints them through a
// PDFRenderer.
type InvoicePrinter struct {
	renderer PDFRenderer
	layout   *template.Template
	paper    PaperSize
	timeout  time.Duration
	logger   *zap.Logger
}

// InvoicePrinterOption configures an InvoicePrinter
type InvoicePrinterOption func(*InvoicePrinter)

// WithPaperSize selects the paper format (A4 by default)
func WithPaperSize(p PaperSize) InvoicePrinterOption {
	return func(ip *InvoicePrinter) {
		ip.paper = p
	}
}

// WithRenderTimeout bounds a single render
func WithRenderTimeout(d time.Duration) InvoicePrinterOption {
	return func(ip *InvoicePrinter) {
		ip.timeout = d
	}
}

// NewInvoicePrinter creates a printer on top of renderer
func NewInvoicePrinter(renderer PDFRenderer, logger *zap.Logger, opts ...InvoicePrinterOption) *InvoicePrinter {
	if logger == nil {
		logger = zap.NewNop()
	}
	ip := &InvoicePrinter{
		renderer: renderer,
		layout: template.Must(template.New("invoice").Funcs(template.FuncMap{
			// quantity, unit price and total columns are right aligned
			"numeric": func(i int) bool { return i >= 3 },
		}).Parse(invoiceLayout)),
		paper:  PaperSizeA4,
		logger: logger.Named("invoice_printer"),
	}
	for _, opt := range opts {
		opt(ip)
	}
	return ip
}

// RenderHTML lays the document out as a standalone HTML page
func (p *InvoicePrinter) RenderHTML(doc *sales.InvoiceDocument) (string, error) {
	var buf bytes.Buffer
	if err := p.layout.Execute(&buf, invoicePage{InvoiceDocument: doc, Columns: sales.InvoiceColumns}); err != nil {
		return "", NewRenderError(ErrCodeTemplateFailed, "failed to lay out invoice", err)
	}
	return buf.String(), nil
}

// RenderInvoice prints the document to PDF
func (p *InvoicePrinter) RenderInvoice(ctx context.Context, doc *sales.InvoiceDocument) ([]byte, error) {
	page, err := p.RenderHTML(doc)
	if err != nil {
		return nil, err
	}

	result, err := p.renderer.Render(ctx, &RenderRequest{
		HTML:        page,
		PaperSize:   p.paper,
		Orientation: OrientationPortrait,
		Margins:     DefaultMargins(),
		Title:       doc.Title + " " + doc.Number,
		FooterHTML:  pageFooter,
		Timeout:     p.timeout,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("invoice printed",
		zap.String("invoice_number", doc.Number),
		zap.Int("lines", len(doc.Rows)),
		zap.Int("pages", result.PageCount))
	return result.PDFData, nil
}

// Close releases the underlying renderer
func (p *InvoicePrinter) Close() error {
	return p.renderer.Close()
}
