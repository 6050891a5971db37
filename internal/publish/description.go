package publish

import "strings"

// Describe builds the multi-line deal description typed into the wizard.
func Describe(req Request, sourceLabel string) string {
	var b strings.Builder
	b.WriteString(req.Title)
	b.WriteString("\n\n")
	b.WriteString("Enlace: ")
	b.WriteString(req.URL)
	b.WriteByte('\n')
	if req.Image != "" {
		b.WriteString("Imagen: ")
		b.WriteString(req.Image)
		b.WriteByte('\n')
	}
	switch {
	case req.Price != nil && req.RRP != nil:
		b.WriteString("Precio: " + FormatPrice(*req.Price) + " € (PVP " + FormatPrice(*req.RRP) + " €)\n")
	case req.Price != nil:
		b.WriteString("Precio: " + FormatPrice(*req.Price) + " €\n")
	case req.RRP != nil:
		b.WriteString("PVP: " + FormatPrice(*req.RRP) + " €\n")
	}
	if sourceLabel != "" {
		b.WriteByte('\n')
		b.WriteString(sourceLabel)
	}
	return strings.TrimRight(b.String(), "\n")
}
