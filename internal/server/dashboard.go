package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/pagesplit/pagesplit/internal/stats"
)

const dashboardCSS = `
body{font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',sans-serif;margin:2rem auto;max-width:60rem;padding:0 1rem;color:#1a1a1a}
table{border-collapse:collapse;width:100%}
th,td{text-align:left;padding:.5rem .75rem;border-bottom:1px solid #e2e2e2}
th{font-size:.8rem;text-transform:uppercase;color:#666}
.status{font-size:.75rem;padding:.15rem .5rem;border-radius:.75rem;background:#eee}
.status.running{background:#d2f4dd}
.status.paused{background:#fdeccc}
.status.completed{background:#d8e6fd}
.control{color:#666;font-size:.8rem}
.winner{font-weight:600;color:#176b2c}
.confident{color:#176b2c}
a{color:#2457d6;text-decoration:none}
`

var listTemplate = template.Must(template.New("list").Parse(`<!DOCTYPE html>
<html><head><title>pagesplit</title><style>{{.CSS}}</style></head><body>
<h1>Experiments</h1>
{{if not .Experiments}}<p>No experiments yet. Create one with <code>pagesplit create</code>.</p>{{end}}
<table>
<tr><th>Name</th><th>Type</th><th>Status</th><th>Variants</th><th>Visitors</th><th>Conversions</th><th>Rate</th></tr>
{{range .Experiments}}
<tr>
  <td><a href="/dashboard/experiment/{{.Name}}">{{.Name}}</a></td>
  <td>{{.Type}}</td>
  <td><span class="status {{.Status}}">{{.Status}}</span></td>
  <td>{{.VariantCount}}</td>
  <td>{{.Visitors}}</td>
  <td>{{.Conversions}}</td>
  <td>{{.Rate}}</td>
</tr>
{{end}}
</table>
<p><a href="/dashboard?logout=1">Log out</a></p>
</body></html>`))

var detailTemplate = template.Must(template.New("detail").Parse(`<!DOCTYPE html>
<html><head><title>{{.Name}} · pagesplit</title><style>{{.CSS}}</style></head><body>
<p><a href="/dashboard">&larr; All experiments</a></p>
<h1>{{.Name}} <span class="status {{.Status}}">{{.Status}}</span></h1>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p>Type: {{.Type}} &middot; Traffic: {{.TrafficSplit}}&#37; &middot; Selector: <code>{{.Selector}}</code></p>
<table>
<tr><th>Variant</th><th>Visitors</th><th>Conversions</th><th>Rate</th><th>95&#37; CI</th><th>vs control</th></tr>
{{range .Variants}}
<tr{{if .IsWinner}} class="winner"{{end}}>
  <td>{{.Name}}{{if .IsControl}} <span class="control">(control)</span>{{end}}{{if .IsWinner}} &#127942;{{end}}</td>
  <td>{{.Visitors}}</td>
  <td>{{.Conversions}}</td>
  <td>{{.Rate}}</td>
  <td>{{.CI}}</td>
  <td>{{.Confidence}}</td>
</tr>
{{end}}
</table>
<p{{if .Confident}} class="confident"{{end}}>{{.Verdict}}</p>
</body></html>`))

type listPageData struct {
	CSS         template.CSS
	Experiments []listPageItem
}

type listPageItem struct {
	Name         string
	Type         string
	Status       string
	VariantCount int
	Visitors     int
	Conversions  int
	Rate         string
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	// Handle logout
	if r.URL.Query().Get("logout") == "1" {
		http.SetCookie(w, &http.Cookie{
			Name:   tokenCookieName,
			Value:  "",
			Path:   "/",
			MaxAge: -1,
		})
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}

	experiments, err := s.store.ListExperiments(r.Context(), "")
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	data := listPageData{CSS: template.CSS(dashboardCSS)}
	for _, exp := range experiments {
		counts, err := s.store.GetVariantCounts(r.Context(), exp.ID)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		result := stats.Analyze(exp, counts)
		data.Experiments = append(data.Experiments, listPageItem{
			Name:         exp.Name,
			Type:         string(exp.Type),
			Status:       string(exp.Status),
			VariantCount: len(exp.Variants),
			Visitors:     result.TotalVisitors,
			Conversions:  result.TotalConversions,
			Rate:         fmt.Sprintf("%.1f%%", result.ConversionRate),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := listTemplate.Execute(w, data); err != nil {
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

type detailPageData struct {
	CSS          template.CSS
	Name         string
	Description  string
	Type         string
	Status       string
	TrafficSplit float64
	Selector     string
	Variants     []detailPageVariant
	Confident    bool
	Verdict      string
}

type detailPageVariant struct {
	Name        string
	IsControl   bool
	IsWinner    bool
	Visitors    int
	Conversions int
	Rate        string
	CI          string
	Confidence  string
}

func (s *Server) handleDashboardDetail(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/dashboard/experiment/")
	exp, err := s.store.GetExperiment(r.Context(), name)
	if err != nil {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}

	counts, err := s.store.GetVariantCounts(r.Context(), exp.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	result := stats.Analyze(exp, counts)

	winnerByID := map[string]bool{}
	if winner := exp.Winner(); winner != nil {
		winnerByID[winner.ID] = true
	}

	data := detailPageData{
		CSS:          template.CSS(dashboardCSS),
		Name:         exp.Name,
		Description:  exp.Description,
		Type:         string(exp.Type),
		Status:       string(exp.Status),
		TrafficSplit: exp.TrafficSplit,
		Selector:     exp.TargetSelector,
		Confident:    result.Confident,
	}
	for _, vr := range result.Variants {
		confidence := "-"
		if !vr.IsControl {
			confidence = fmt.Sprintf("%.1f%%", vr.Confidence*100)
		}
		ci := "N/A"
		if vr.Visitors > 0 {
			ci = fmt.Sprintf("[%.1f%%, %.1f%%]", vr.CILower, vr.CIUpper)
		}
		data.Variants = append(data.Variants, detailPageVariant{
			Name:        vr.Name,
			IsControl:   vr.IsControl,
			IsWinner:    winnerByID[vr.ID],
			Visitors:    vr.Visitors,
			Conversions: vr.Conversions,
			Rate:        fmt.Sprintf("%.2f%%", vr.Rate),
			CI:          ci,
			Confidence:  confidence,
		})
	}
	data.Verdict = verdict(exp.Status == "completed", result)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := detailTemplate.Execute(w, data); err != nil {
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

func verdict(completed bool, result *stats.Result) string {
	leadingName := ""
	for _, vr := range result.Variants {
		if vr.ID == result.LeadingID {
			leadingName = vr.Name
		}
	}
	confPct := result.ConfidenceLevel * 100

	switch {
	case completed && result.WinnerID != "":
		return fmt.Sprintf("Completed: %q won at %.1f%% confidence.", leadingName, confPct)
	case completed:
		return "Completed without a statistically significant winner."
	case result.Confident:
		return fmt.Sprintf("%.1f%% confident %q is the winner.", confPct, leadingName)
	case confPct >= 90:
		return fmt.Sprintf("%.1f%% confident %q beats control (not yet significant).", confPct, leadingName)
	default:
		return "Not enough data to determine a winner."
	}
}
