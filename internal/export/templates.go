package export

import (
	"bytes"
	"html/template"
	"time"
)

var tableTemplate = template.Must(template.New("table").Parse(tableTemplateHTML))

// TableData holds data for table template rendering
type TableData struct {
	Title         string
	StatusHeading string
	GeneratedAt   time.Time
	Rows          []Row
}

// RenderTableHTML renders the table template with provided data
func RenderTableHTML(data TableData) (string, error) {
	var buf bytes.Buffer
	if err := tableTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const tableTemplateHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.4; margin: 2rem; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 1.5rem; }
    table { border-collapse: collapse; width: 100%; font-size: 0.85em; }
    th { text-align: left; background: #f0f0f0; border-bottom: 2px solid #333; padding: 6px 8px; }
    td { border-bottom: 1px solid #ddd; padding: 6px 8px; }
    tr:nth-child(even) td { background: #fafafa; }
    .pending { color: #a33; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">Generated {{.GeneratedAt.Format "Jan 2, 2006 15:04"}} | {{len .Rows}} files</div>
  <table>
    <thead>
      <tr>
        <th>Customer no.</th>
        <th>Customer</th>
        <th>Project</th>
        <th>Folder</th>
        <th>File</th>
        <th>Uploaded</th>
        <th>{{.StatusHeading}}</th>
      </tr>
    </thead>
    <tbody>
      {{range .Rows}}
      <tr>
        <td>{{.CustomerNumber}}</td>
        <td>{{.CustomerName}}</td>
        <td>{{.ProjectName}}</td>
        <td>{{.FolderName}}</td>
        <td>{{.FileName}}</td>
        <td>{{.UploadedAt.Format "Jan 2, 2006"}}</td>
        {{if .StatusDone}}<td>{{.StatusLabel}}</td>{{else}}<td class="pending">{{.StatusLabel}}</td>{{end}}
      </tr>
      {{end}}
    </tbody>
  </table>
</body>
</html>`
