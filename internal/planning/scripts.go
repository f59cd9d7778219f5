package planning

import (
	"encoding/json"
	"fmt"

	"github.com/colthorp/planning-cli-go/internal/portal"
)

// Scripts evaluated inside the planning view. Arguments are JSON-encoded so
// selectors and labels never need manual escaping. Every script returns a
// value because the engine rejects an undefined result.

func jsonArg(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// discoverScript returns the event ids referenced by the planning view.
func discoverScript(p portal.Profile) string {
	return fmt.Sprintf(`((sel, attr, pattern) => {
  const re = new RegExp(pattern);
  const ids = [];
  document.querySelectorAll(sel).forEach(e => {
    const m = (e.getAttribute(attr) || '').match(re);
    if (m && m[1]) ids.push(m[1]);
  });
  return ids;
})(%s, %s, %s)`, jsonArg(p.EventSelector), jsonArg(p.EventIDAttr), jsonArg(p.EventIDPattern))
}

// annotateScript appends each event's detail label to its cell and returns
// the number of annotated cells.
func annotateScript(p portal.Profile, labels map[string]string) string {
	return fmt.Sprintf(`((sel, attr, pattern, labels) => {
  const re = new RegExp(pattern);
  let n = 0;
  document.querySelectorAll(sel).forEach(e => {
    const m = (e.getAttribute(attr) || '').match(re);
    if (!m || !labels[m[1]]) return;
    const d = document.createElement('div');
    d.className = 'planning-detail';
    d.textContent = labels[m[1]];
    e.appendChild(d);
    n++;
  });
  return n;
})(%s, %s, %s, %s)`, jsonArg(p.EventSelector), jsonArg(p.EventIDAttr), jsonArg(p.EventIDPattern), jsonArg(labels))
}

// cleanupScript removes visual noise and returns the number of removed nodes.
func cleanupScript(p portal.Profile) string {
	return fmt.Sprintf(`((sels) => {
  let n = 0;
  sels.forEach(s => document.querySelectorAll(s).forEach(e => { e.remove(); n++; }));
  return n;
})(%s)`, jsonArg(p.NoiseSelectors))
}
