package server

import (
	"encoding/json"
	"html/template"
	"log/slog"
)

func mustJSONTemplateJS(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Default().Error("json marshal error for template data", "err", err)
		return template.JS("null")
	}
	return template.JS(b)
}

var indexPageTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html lang="pt-BR">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{ .title }}</title>
  <style>
    :root {
      --bg: #f3f0e7;
      --ink: #0f172a;
      --muted: #667085;
      --line: rgba(15, 23, 42, 0.12);
      --card: rgba(255,255,255,0.9);
      --brand: #0f766e;
      --warn: #b91c1c;
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      color: var(--ink);
      font-family: "Georgia", "Times New Roman", serif;
      background: linear-gradient(180deg, #f7f4ec 0%, #f3f0e7 40%, #efede6 100%);
    }
    .shell { max-width: 980px; margin: 0 auto; padding: 24px 20px 56px; }
    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 16px;
      padding: 18px 20px;
      margin-bottom: 18px;
    }
    h1 { margin: 0 0 6px; font-size: 28px; }
    .muted { color: var(--muted); }
    button {
      border: 0;
      border-radius: 999px;
      padding: 10px 18px;
      background: var(--brand);
      color: #fff;
      font: inherit;
      cursor: pointer;
    }
    button:disabled { opacity: 0.5; cursor: default; }
    #log {
      font-family: ui-monospace, "SFMono-Regular", Menlo, monospace;
      font-size: 13px;
      white-space: pre-wrap;
      max-height: 420px;
      overflow-y: auto;
      margin: 12px 0 0;
    }
    .error { color: var(--warn); }
    input[type=search] {
      width: 100%;
      padding: 10px 12px;
      border-radius: 10px;
      border: 1px solid var(--line);
      font: inherit;
    }
    table { width: 100%; border-collapse: collapse; margin-top: 12px; font-size: 14px; }
    th, td { text-align: left; padding: 6px 8px; border-bottom: 1px solid var(--line); }
    td.num { text-align: right; font-variant-numeric: tabular-nums; }
  </style>
</head>
<body>
  <div class="shell">
    <div class="card">
      <h1>Preços unitários SETOP</h1>
      <p class="muted" id="status">Nenhuma coleta executada.</p>
      <button id="start">Iniciar coleta</button>
      <div id="log"></div>
    </div>
    <div class="card">
      <input type="search" id="q" placeholder="Buscar por código, descrição ou região" />
      <div id="results"></div>
    </div>
  </div>
  <script>
    const initialStatus = {{ .status_json }};
    const logEl = document.getElementById("log");
    const statusEl = document.getElementById("status");
    const startBtn = document.getElementById("start");

    function describe(s) {
      if (!s) return "Nenhuma coleta executada.";
      const c = s.counters || {};
      return "Execução " + s.run_id + ": " + s.state +
        " (" + (c.accepted || 0) + " registros, " + (c.failed_documents || 0) + " planilhas com falha)";
    }
    function append(text, cls) {
      const line = document.createElement("div");
      line.textContent = text;
      if (cls) line.className = cls;
      logEl.appendChild(line);
      logEl.scrollTop = logEl.scrollHeight;
    }
    function refreshStatus() {
      fetch("/runs/current").then(r => r.ok ? r.json() : null).then(s => {
        statusEl.textContent = describe(s);
      });
    }
    function follow() {
      const es = new EventSource("/scraper/progress/");
      es.onmessage = ev => append(ev.data, ev.data.startsWith("Erro") ? "error" : "");
      es.addEventListener("end", ev => {
        append(ev.data);
        es.close();
        startBtn.disabled = false;
        refreshStatus();
      });
      es.onerror = () => { es.close(); startBtn.disabled = false; };
    }
    startBtn.addEventListener("click", () => {
      startBtn.disabled = true;
      logEl.textContent = "";
      fetch("/scraper/", { method: "POST" }).then(r => r.json().then(body => ({ ok: r.ok, body }))).then(({ ok, body }) => {
        if (!ok) {
          append(body.error || "Falha ao iniciar", "error");
          startBtn.disabled = false;
          return;
        }
        statusEl.textContent = "Execução " + body.run_id + " iniciada.";
        follow();
      });
    });
    statusEl.textContent = describe(initialStatus);
    if (initialStatus && initialStatus.state !== "completed" && initialStatus.state !== "failed") {
      startBtn.disabled = true;
      follow();
    }

    let timer = null;
    document.getElementById("q").addEventListener("input", ev => {
      clearTimeout(timer);
      const q = ev.target.value.trim();
      timer = setTimeout(() => {
        if (q.length > 0 && q.length < 3) return;
        fetch("/records?q=" + encodeURIComponent(q)).then(r => r.ok ? r.json() : null).then(page => {
          const box = document.getElementById("results");
          box.textContent = "";
          if (!page) return;
          const table = document.createElement("table");
          const head = table.insertRow();
          ["Código", "Descrição", "Unidade", "Custo", "Região", "Ano"].forEach(h => {
            const th = document.createElement("th");
            th.textContent = h;
            head.appendChild(th);
          });
          (page.items || []).forEach(it => {
            const row = table.insertRow();
            [it.codigo, it.descricao, it.unidade, it.custo_unitario, it.regiao, it.ano].forEach((v, i) => {
              const td = row.insertCell();
              td.textContent = v;
              if (i === 3) td.className = "num";
            });
          });
          box.appendChild(table);
          const info = document.createElement("p");
          info.className = "muted";
          info.textContent = page.total + " registros";
          box.appendChild(info);
        });
      }, 250);
    });
  </script>
</body>
</html>
`))
