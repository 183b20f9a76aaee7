package viewer

import (
	"html"
	"strings"
)

// HelpText is shown under the canvas.
const HelpText = "q or esc to quit | s to take screenshot"

const indexHTML = `
<!DOCTYPE html>
<html>
<head>
    <title>{{TITLE}}</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { background: #111; color: #ddd; font-family: sans-serif; margin: 0; }
        .app { display: flex; flex-direction: column; align-items: center; padding: 12px; }
        .canvas { max-width: 100%; border: 1px solid #333; }
        .help { margin-top: 8px; font-size: 14px; color: #999; }
        .status { margin-top: 4px; font-family: monospace; font-size: 13px; }
    </style>
</head>
<body>
    <div class="app">
        <h3>{{TITLE}}</h3>
        <img class="canvas" src="/stream" alt="canvas">
        <div class="help">{{HELP}}</div>
        <div class="status" id="status">connecting...</div>
    </div>
    <script>
        let ws = null;
        function connect() {
            const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(proto + location.host + '/ws');
            ws.onclose = () => setTimeout(connect, 1000);
        }
        connect();

        document.addEventListener('keydown', (ev) => {
            const key = ev.key;
            if (key !== 'q' && key !== 'Q' && key !== 's' && key !== 'S' && key !== 'Escape') {
                return;
            }
            const msg = JSON.stringify({ key: key });
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(msg);
            } else {
                fetch('/api/key', { method: 'POST', headers: { 'Content-Type': 'application/json' }, body: msg });
            }
        });

        const status = document.getElementById('status');
        const events = new EventSource('/api/status/stream');
        events.onmessage = (ev) => {
            const st = JSON.parse(ev.data);
            const state = st.done ? 'done' : (st.recording ? 'recording' : 'pre-roll');
            status.textContent = st.time + ' | tick ' + st.tick + ' | ' + state + (st.slide ? ' | ' + st.slide : '');
        };
    </script>
</body>
</html>
`

func renderIndex(title string) string {
	r := strings.NewReplacer(
		"{{TITLE}}", html.EscapeString(title),
		"{{HELP}}", html.EscapeString(HelpText),
	)
	return r.Replace(indexHTML)
}
