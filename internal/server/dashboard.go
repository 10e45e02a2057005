package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Detections · GameGuard</title>
    <link rel="icon" href="data:image/svg+xml,<svg xmlns='http://www.w3.org/2000/svg' viewBox='0 0 100 100'><text y='.9em' font-size='90'>◉</text></svg>">
    <link rel="preconnect" href="https://fonts.googleapis.com">
    <link rel="preconnect" href="https://fonts.gstatic.com" crossorigin>
    <link href="https://fonts.googleapis.com/css2?family=Inter:wght@400;500;600&family=JetBrains+Mono:wght@400;500&display=swap" rel="stylesheet">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        :root {
            --bg: #09090b; --bg-subtle: #18181b; --border: #27272a;
            --text: #fafafa; --text-secondary: #a1a1aa; --text-tertiary: #52525b;
            --accent: #22c55e; --warn: #f59e0b; --danger: #ef4444;
        }
        body {
            font-family: 'Inter', -apple-system, sans-serif;
            background: var(--bg); color: var(--text);
            min-height: 100vh; font-size: 14px;
            -webkit-font-smoothing: antialiased;
        }
        .mono { font-family: 'JetBrains Mono', monospace; }
        .container { max-width: 800px; margin: 0 auto; padding: 0 24px; }
        header {
            border-bottom: 1px solid var(--border); padding: 16px 0;
            position: sticky; top: 0; background: var(--bg); z-index: 100;
        }
        .header-inner { display: flex; justify-content: space-between; align-items: center; }
        .logo { display: flex; align-items: center; gap: 10px; text-decoration: none; color: var(--text); }
        .logo-mark { width: 24px; height: 24px; background: var(--accent); border-radius: 6px; }
        .logo-text { font-weight: 600; font-size: 15px; }
        nav { display: flex; gap: 32px; }
        nav a { color: var(--text-secondary); text-decoration: none; font-size: 13px; transition: color 0.15s; }
        nav a:hover, nav a.active { color: var(--text); }

        .feed-header {
            padding: 48px 0 24px;
            display: flex; justify-content: space-between; align-items: flex-end;
            border-bottom: 1px solid var(--border);
        }
        .feed-title { font-size: 24px; font-weight: 600; margin-bottom: 4px; }
        .feed-desc { color: var(--text-secondary); }
        .live-badge {
            display: flex; align-items: center; gap: 8px;
            background: var(--bg-subtle); border: 1px solid var(--border);
            padding: 8px 14px; border-radius: 20px; font-size: 13px; color: var(--text-secondary);
        }
        .live-dot {
            width: 8px; height: 8px; background: var(--accent); border-radius: 50%;
            animation: pulse 2s ease-in-out infinite;
        }
        .live-dot.off { background: var(--text-tertiary); animation: none; }
        @keyframes pulse { 0%, 100% { opacity: 1; } 50% { opacity: 0.4; } }

        .det-list { padding: 0; }
        .det {
            display: grid; grid-template-columns: 1fr auto;
            gap: 16px; padding: 20px 0; border-bottom: 1px solid var(--border);
            align-items: start; animation: slideIn 0.3s ease-out;
        }
        @keyframes slideIn { from { opacity: 0; transform: translateY(-8px); } to { opacity: 1; transform: translateY(0); } }

        .det-player {
            background: var(--bg-subtle); padding: 6px 12px; border-radius: 6px;
            font-weight: 500; font-size: 13px; display: inline-block; margin-bottom: 8px;
        }
        .det-meta { color: var(--text-secondary); font-size: 13px; display: flex; gap: 8px; align-items: center; }
        .det-tag {
            background: var(--bg); border: 1px solid var(--border);
            padding: 2px 8px; border-radius: 4px; font-size: 11px;
            text-transform: uppercase; color: var(--text-tertiary);
        }
        .det-tag.block { color: var(--danger); border-color: var(--danger); }
        .det-tag.flagged { color: var(--warn); border-color: var(--warn); }
        .det-right { text-align: right; }
        .det-score { font-size: 18px; font-weight: 600; }
        .det-score.allow { color: var(--accent); }
        .det-score.block { color: var(--danger); }
        .det-time { font-size: 12px; color: var(--text-tertiary); margin-top: 4px; }

        .empty { text-align: center; padding: 80px 24px; color: var(--text-tertiary); }

        footer { border-top: 1px solid var(--border); padding: 24px 0; margin-top: 48px; text-align: center; color: var(--text-tertiary); font-size: 13px; }
        footer a { color: var(--text-secondary); text-decoration: none; margin: 0 12px; }
    </style>
</head>
<body>
    <header><div class="container header-inner">
        <a href="/" class="logo"><div class="logo-mark"></div><span class="logo-text">GameGuard</span></a>
        <nav>
            <a href="/" class="active">Detections</a>
            <a href="/v1/alerts">Alerts API</a>
            <a href="/metrics">Metrics</a>
        </nav>
    </div></header>
    <main class="container">
        <div class="feed-header">
            <div>
                <h1 class="feed-title">Detection Feed</h1>
                <p class="feed-desc">Every analyzed session, streamed as it happens</p>
            </div>
            <div class="live-badge"><span class="live-dot" id="dot"></span> <span id="conn">Connecting</span></div>
        </div>
        <div class="det-list" id="feed"><div class="empty">Waiting for detections...</div></div>
    </main>
    <footer><div class="container"><a href="/api">API</a><a href="/health">Health</a></div></footer>
    <script>
        const feed = document.getElementById('feed');
        const maxRows = 100;
        let empty = true;

        const short = a => a && a.length > 12 ? a.slice(0,8)+'…'+a.slice(-4) : (a || 'unknown');

        function row(ev) {
            const d = ev.data || {};
            const blocked = !!d.shouldBlock;
            const score = d.overallRiskScore != null ? d.overallRiskScore.toFixed(1) : '—';
            const el = document.createElement('div');
            el.className = 'det';
            el.innerHTML =
                '<div>'+
                    '<div class="det-player mono">'+short(d.playerAddress)+'</div>'+
                    '<div class="det-meta">'+
                        '<span class="det-tag'+(blocked ? ' block' : (d.findings > 0 ? ' flagged' : ''))+'">'+
                            (blocked ? 'blocked' : (d.findings > 0 ? d.findings+' findings' : 'clean'))+
                        '</span>'+
                        (d.blockReason ? '<span>'+d.blockReason+'</span>' : '')+
                        (d.trustLevel ? '<span class="det-tag">'+d.trustLevel+' trust</span>' : '')+
                    '</div>'+
                '</div>'+
                '<div class="det-right">'+
                    '<div class="det-score mono '+(blocked ? 'block' : 'allow')+'">'+score+'</div>'+
                    '<div class="det-time">'+new Date(ev.timestamp).toLocaleTimeString()+'</div>'+
                '</div>';
            return el;
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/ws');
            ws.onopen = () => {
                document.getElementById('conn').textContent = 'Live';
                document.getElementById('dot').classList.remove('off');
                // Only plain detection events; block/critical duplicates carry the same data
                ws.send(JSON.stringify({eventTypes: ['detection']}));
            };
            ws.onmessage = e => {
                const ev = JSON.parse(e.data);
                if (empty) { feed.innerHTML = ''; empty = false; }
                feed.prepend(row(ev));
                while (feed.children.length > maxRows) feed.removeChild(feed.lastChild);
            };
            ws.onclose = () => {
                document.getElementById('conn').textContent = 'Reconnecting';
                document.getElementById('dot').classList.add('off');
                setTimeout(connect, 3000);
            };
        }
        connect();
    </script>
</body>
</html>`

func dashboardHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, dashboardHTML)
}
