package service

import (
	"bytes"
	"html/template"

	"github.com/wb-go/wbf/ginext"

	"studioBooker/internal/model"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; max-width: 40em; margin: 3em auto;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
{{if .Bookings}}<ul>
{{range .Bookings}}<li>{{.Date}} {{.StartTime}}–{{.EndTime}}, {{.Name}} ({{.Status}})</li>
{{end}}</ul>
{{end}}</body>
</html>
`))

type page struct {
	Title    string
	Message  string
	Bookings []model.Booking
}

func renderPage(c *ginext.Context, status int, p page) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, p); err != nil {
		c.String(status, p.Title)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
