// Package printing turns invoice documents into PDF files.
//
// InvoicePrinter lays a sales.InvoiceDocument out as HTML with a fixed
// template and hands the page to a PDFRenderer. ChromedpRenderer is the
// production renderer; it drives a headless Chrome over the DevTools
// protocol, either launched locally or reached through RemoteURL.
//
//	renderer := NewChromedpRenderer(&ChromedpConfig{ExecPath: "/usr/bin/chromium", NoSandbox: true})
//	printer := NewInvoicePrinter(renderer, logger)
//	defer printer.Close()
//
//	pdf, err := printer.RenderInvoice(ctx, doc)
package printing
