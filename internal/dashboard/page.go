package dashboard

import (
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"
)

var pageTemplate = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <meta charset="UTF-8">
    <style>
        body { font-family: 'Segoe UI', Tahoma, sans-serif; margin: 0; padding: 20px; background-color: #f5f5f5; }
        .container { max-width: 1100px; margin: 0 auto; }
        .header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 20px; border-radius: 10px; margin-bottom: 20px; }
        .card { background: white; border-radius: 10px; padding: 20px; margin-bottom: 20px; box-shadow: 0 4px 6px rgba(0,0,0,0.1); }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px; border-bottom: 1px solid #eee; }
        th { background-color: #f8f9fa; }
        .best { font-weight: bold; color: #28a745; }
        .failure { color: #dc3545; }
        progress { width: 100%; }
    </style>
</head>
<body>
<div class="container">
    <div class="header"><h1>{{.Title}}</h1></div>
    <div class="card">
        <button id="run">Run evaluation</button>
        <span id="status"></span>
        <progress id="progress" value="0" max="1"></progress>
    </div>
    <div class="card">
        <h3>Leaderboard</h3>
        <div id="meta"></div>
        <table>
            <thead><tr><th>#</th><th>Model</th><th>Accuracy</th><th>Precision</th><th>Recall</th><th>F1</th><th>ROC AUC</th></tr></thead>
            <tbody id="board"></tbody>
        </table>
    </div>
    <div class="card">
        <h3>Failures</h3>
        <ul id="failures"></ul>
    </div>
</div>
<script>
const metrics = ["accuracy", "precision", "recall", "f1", "roc_auc"];
function cell(v, best) { return '<td' + (best ? ' class="best"' : '') + '>' + v.toFixed(4) + '</td>'; }
async function load() {
    const res = await fetch('/api/report/latest');
    if (!res.ok) { document.getElementById('meta').textContent = 'No runs yet.'; return; }
    const r = await res.json();
    document.getElementById('meta').textContent =
        'Run ' + r.run_id + ': ' + r.test_size + ' matches, baseline accuracy ' + r.baseline_accuracy.toFixed(4);
    const best = r.best || {};
    document.getElementById('board').innerHTML = r.no_usable_models
        ? '<tr><td colspan="7">No usable models.</td></tr>'
        : r.leaderboard.map(e => '<tr><td>' + e.rank + '</td><td>' + e.model + '</td>' +
            metrics.map(m => cell(e.metrics[m], best[m] === e.model)).join('') + '</tr>').join('');
    document.getElementById('failures').innerHTML = (r.failures || []).map(f =>
        '<li class="failure">' + f.model + ' [' + f.kind + ']: ' + f.error + '</li>').join('');
}
document.getElementById('run').onclick = async () => {
    const res = await fetch('/api/evaluate', {method: 'POST'});
    if (res.status === 409) document.getElementById('status').textContent = 'A run is already in progress.';
};
const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
ws.onmessage = (msg) => {
    const e = JSON.parse(msg.data);
    const status = document.getElementById('status');
    if (e.type === 'progress') {
        const bar = document.getElementById('progress');
        bar.max = e.progress.total; bar.value = e.progress.done;
        status.textContent = 'Evaluated ' + e.progress.model + ' (' + e.progress.done + '/' + e.progress.total + ')';
    } else if (e.type === 'completed') {
        status.textContent = 'Run complete.'; load();
    } else if (e.type === 'failed') {
        status.textContent = 'Run failed: ' + e.error;
    } else if (e.type === 'status' && e.busy) {
        status.textContent = 'A run is in progress.';
    }
};
load();
</script>
</body>
</html>
`))

// handleDashboard serves the single-page leaderboard view
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if err := pageTemplate.Execute(w, map[string]string{"Title": "Model Arena"}); err != nil {
		log.Error().Err(err).Msg("Failed to render dashboard")
	}
}
