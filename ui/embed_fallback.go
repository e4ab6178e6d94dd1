//go:build !ui_embed

// Package ui provides a minimal built-in dashboard when the full frontend
// is not embedded.
package ui

import (
	"net/http"
)

// fallbackPage is a self-contained status page. It shows the slot grid,
// reports page visibility, and tails the session event stream so the
// server can be operated without the full frontend build.
const fallbackPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>CamGrid</title>
<style>
body { margin: 0; background: #111; color: #ddd; font: 14px/1.4 system-ui, sans-serif; }
header { padding: 8px 16px; background: #1a1a1a; display: flex; justify-content: space-between; }
#grid { display: grid; gap: 4px; padding: 4px; }
.slot { background: #222; border: 1px solid #333; min-height: 120px; padding: 8px; position: relative; }
.slot .name { font-weight: 600; }
.slot .state { position: absolute; bottom: 8px; left: 8px; color: #888; }
.slot.playing .state { color: #5c5; }
.slot.stalled .state, .slot.recovering .state { color: #ca4; }
#log { height: 160px; overflow-y: auto; font-family: monospace; font-size: 12px; padding: 4px 16px; color: #777; }
</style>
</head>
<body>
<header><span>CamGrid</span><a href="/docs" style="color:#58a">API docs</a></header>
<div id="grid"></div>
<div id="log"></div>
<script>
const grid = document.getElementById('grid');
const log = document.getElementById('log');
const slots = {};

function line(msg) {
  const div = document.createElement('div');
  div.textContent = new Date().toLocaleTimeString() + ' ' + msg;
  log.prepend(div);
  while (log.childElementCount > 200) log.lastChild.remove();
}

async function loadSlots() {
  const res = await fetch('/api/slots');
  if (!res.ok) return;
  const data = await res.json();
  grid.style.gridTemplateColumns = 'repeat(' + data.grid.columns + ', 1fr)';
  grid.innerHTML = '';
  for (const slot of data.slots || []) {
    const el = document.createElement('div');
    el.className = 'slot';
    el.innerHTML = '<span class="name"></span><span class="state">idle</span>';
    el.querySelector('.name').textContent = slot.name || ('Slot ' + slot.index);
    grid.appendChild(el);
    slots[slot.index] = el;
  }
}

function connectEvents() {
  const es = new EventSource('/api/events');
  es.addEventListener('session-state-changed', (ev) => {
    const e = JSON.parse(ev.data);
    const el = slots[e.slot];
    if (el) {
      el.className = 'slot ' + e.to;
      el.querySelector('.state').textContent = e.to;
    }
    line('slot ' + e.slot + ': ' + e.from + ' -> ' + e.to);
  });
  es.addEventListener('retry-scheduled', (ev) => {
    const e = JSON.parse(ev.data);
    line('slot ' + e.slot + ': retry #' + e.retry_count + ' in ' + e.delay_ms + 'ms' + (e.cooldown ? ' (cooldown)' : ''));
  });
  es.addEventListener('session-recovered', (ev) => {
    const e = JSON.parse(ev.data);
    line('slot ' + e.slot + ': recovered (' + e.reason + ')');
  });
  es.addEventListener('slot-config-applied', () => loadSlots());
  es.onerror = () => { es.close(); setTimeout(connectEvents, 3000); };
}

function reportVisibility() {
  fetch('/api/visibility', {
    method: 'POST',
    headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({visible: document.visibilityState === 'visible'}),
  }).catch(() => {});
}

document.addEventListener('visibilitychange', reportVisibility);
loadSlots().then(connectEvents);
reportVisibility();
</script>
</body>
</html>
`

// Handler returns an http.Handler serving the built-in fallback page.
func Handler() (http.Handler, error) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(fallbackPage))
	}), nil
}
