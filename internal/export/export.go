package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/zapcampanha/console/internal/model"
)

// Artifact é um arquivo pronto para download, montado a partir de dados já
// buscados. Nada aqui consulta o backend.
type Artifact struct {
	Filename string
	MIME     string
	Content  []byte
}

// Filename monta o nome no padrão <entidade>_<timestamp>.<ext>.
func Filename(entity, ext string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", entity, at.Format("20060102_150405"), ext)
}

// DailyStatsCSV serializa as estatísticas diárias de um relatório.
func DailyStatsCSV(stats []model.DailyStat, at time.Time) (Artifact, error) {
	data, err := gocsv.MarshalBytes(&stats)
	if err != nil {
		return Artifact{}, fmt.Errorf("export: gerar csv: %w", err)
	}
	return Artifact{
		Filename: Filename("analytics", "csv", at),
		MIME:     "text/csv",
		Content:  data,
	}, nil
}

var analyticsTmpl = template.Must(template.New("analytics").Parse(`<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>Relatório de Campanhas</title></head>
<body>
<h1>Relatório de Campanhas</h1>
<p>Gerado em {{.GeneratedAt}}</p>
<h2>Visão geral</h2>
<ul>
<li>Mensagens enviadas: {{.Analytics.Overview.TotalMessages}}</li>
<li>Taxa de entrega: {{printf "%.1f" .Analytics.Overview.DeliveryRate}}%</li>
<li>Taxa de leitura: {{printf "%.1f" .Analytics.Overview.ReadRate}}%</li>
</ul>
<h2>Por dia</h2>
<table border="1">
<tr><th>Data</th><th>Enviadas</th><th>Entregues</th><th>Lidas</th></tr>
{{range .Analytics.DailyStats}}<tr><td>{{.Date}}</td><td>{{.Sent}}</td><td>{{.Delivered}}</td><td>{{.Read}}</td></tr>
{{end}}</table>
</body>
</html>
`))

// AnalyticsHTML monta o relatório completo em HTML.
func AnalyticsHTML(analytics model.Analytics, at time.Time) (Artifact, error) {
	var buf bytes.Buffer
	err := analyticsTmpl.Execute(&buf, struct {
		GeneratedAt string
		Analytics   model.Analytics
	}{
		GeneratedAt: at.Format("02/01/2006 15:04"),
		Analytics:   analytics,
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("export: gerar html: %w", err)
	}
	return Artifact{
		Filename: Filename("analytics", "html", at),
		MIME:     "text/html; charset=utf-8",
		Content:  buf.Bytes(),
	}, nil
}

// CampaignsTXT monta um resumo plano das campanhas.
func CampaignsTXT(campaigns []model.Campaign, at time.Time) Artifact {
	var b strings.Builder
	fmt.Fprintf(&b, "Campanhas (%d) - %s\n\n", len(campaigns), at.Format("02/01/2006 15:04"))
	for _, cp := range campaigns {
		fmt.Fprintf(&b, "%s [%s]\n", cp.Name, cp.Status)
		fmt.Fprintf(&b, "  conta: %s\n", cp.AccountID)
		fmt.Fprintf(&b, "  progresso: %d/%d enviadas, %d falhas, %d pendentes\n\n",
			cp.Progress.Sent, cp.Progress.Total, cp.Progress.Failed, cp.Progress.Pending)
	}
	return Artifact{
		Filename: Filename("campanhas", "txt", at),
		MIME:     "text/plain; charset=utf-8",
		Content:  []byte(b.String()),
	}
}
